package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"ctsharness/internal/cli"
)

type Config struct {
	ConfigPath   string
	ScenarioPath string
	DumpDir      string
	LogLevel     string
	OTelLogPath  string
	BulkUnits    int
	Metrics      bool
	ShowVersion  bool
}

func parseArgs(args []string, errOut io.Writer) (Config, error) {
	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	fs.SetOutput(errOut)
	configFlag := fs.String("config", "", "Settings file (TOML), layered over the built-in defaults")
	scenarioFlag := fs.String("scenario", "", "Scenario file (YAML); defaults to the bundled smoke scenario")
	dumpFlag := fs.String("dump-dir", "", "Directory for zstd dumps of mismatching frames")
	levelFlag := fs.String("log-level", "", "Log level override (debug, info, warning, error)")
	otelFlag := fs.String("otel-log", "", "Write OpenTelemetry log records to this file as JSON lines")
	bulkFlag := fs.Int("bulk", 0, "Units for the time-boxed bulk phase (0 skips it)")
	metricsFlag := fs.Bool("metrics", true, "Print the metrics exposition after the run")
	helpVersion := cli.AddHelpVersionFlags(fs, "Show this help message", "Print version and exit")
	fs.Usage = func() {
		printHelp(fs.Output())
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if helpVersion.Help {
		fs.Usage()
		return Config{}, flag.ErrHelp
	}
	if helpVersion.Version {
		return Config{ShowVersion: true}, nil
	}
	if fs.NArg() != 0 {
		fs.Usage()
		return Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if *bulkFlag < 0 {
		return Config{}, fmt.Errorf("bulk must not be negative")
	}

	return Config{
		ConfigPath:   strings.TrimSpace(*configFlag),
		ScenarioPath: strings.TrimSpace(*scenarioFlag),
		DumpDir:      strings.TrimSpace(*dumpFlag),
		LogLevel:     strings.TrimSpace(*levelFlag),
		OTelLogPath:  strings.TrimSpace(*otelFlag),
		BulkUnits:    *bulkFlag,
		Metrics:      *metricsFlag,
	}, nil
}

func printHelp(out io.Writer) {
	fmt.Fprintf(out, "Usage: %s [options]\n", programName)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Drive simulated cameras through the collectors and verify every frame")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	cli.WriteOption(out, "--config PATH", "Settings file (TOML)")
	cli.WriteOption(out, "--scenario PATH", "Scenario file (YAML, default: bundled smoke)")
	cli.WriteOption(out, "--dump-dir DIR", "Write mismatching frames here")
	cli.WriteOption(out, "--log-level LEVEL", "debug, info, warning or error")
	cli.WriteOption(out, "--otel-log PATH", "Export OpenTelemetry log records as JSON lines")
	cli.WriteOption(out, "--bulk N", "Run N units in the time-boxed bulk phase")
	cli.WriteOption(out, "--metrics=false", "Skip the metrics exposition")
	cli.WriteOption(out, "--help", "Show this help message")
	cli.WriteOption(out, "--version", "Print version and exit")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Exit codes:")
	fmt.Fprintln(out, "  0  Success")
	fmt.Fprintln(out, "  1  Usage or configuration error")
	fmt.Fprintln(out, "  2  Timed out waiting for events")
	fmt.Fprintln(out, "  3  Frame mismatch or leaked frame")
	fmt.Fprintln(out, "  4  Other failure")
}
