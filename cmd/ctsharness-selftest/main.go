package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"ctsharness/internal/cli"
	"ctsharness/internal/version"
)

const programName = "ctsharness-selftest"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	return runWith(args, out, errOut, runSelftest)
}

func runWith(args []string, out io.Writer, errOut io.Writer, selftest func(Config, io.Writer, io.Writer) error) int {
	cfg, err := parseArgs(args, errOut)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitCodeSuccess
		}
		fmt.Fprintln(errOut, err)
		return exitCodeUsage
	}
	if cfg.ShowVersion {
		fmt.Fprintln(out, version.Banner(programName))
		return exitCodeSuccess
	}
	if selftest == nil {
		return exitCodeSuccess
	}
	if err := selftest(cfg, out, errOut); err != nil {
		return handleSelftestError(err, errOut)
	}
	return exitCodeSuccess
}

func handleSelftestError(err error, errOut io.Writer) int {
	fmt.Fprintf(errOut, "%s: %v\n", programName, err)
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return exitCodeFailure
}
