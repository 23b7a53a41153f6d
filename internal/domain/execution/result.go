package execution

import "time"

// Result captures the outcome of one successful script run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int64
	Duration time.Duration
	// Value is the value produced by in-process runtimes, if any.
	Value any
}
