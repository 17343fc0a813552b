package main

const (
	exitCodeSuccess  = 0
	exitCodeUsage    = 1
	exitCodeTimeout  = 2
	exitCodeMismatch = 3
	exitCodeFailure  = 4
)
