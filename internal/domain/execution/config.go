package execution

import "time"

// LoopForever asks the engine to repeat an execution until it is interrupted.
const LoopForever = -1

// Config describes how a submitted script is run.
//
// A zero value Config runs the script once, immediately, with no working
// directory.
type Config struct {
	WorkingDirectory string
	// Delay is waited before the first run.
	Delay time.Duration
	// LoopTimes is the number of runs. Zero means one; LoopForever repeats
	// until interrupted.
	LoopTimes int
	// Interval is waited between consecutive runs.
	Interval time.Duration
	// Arguments are exposed to the script by the runtime module.
	Arguments map[string]any
	// Limits bounds every single run of the script.
	Limits RunLimits
}

// RunLimits describes optional resource boundaries for a single script run.
//
// A zero value RunLimits imposes no additional restrictions.
type RunLimits struct {
	// TimeLimit caps how long one run is allowed to take. Zero means no limit.
	TimeLimit time.Duration
	// MemoryLimitBytes caps the memory of container-backed runs. Zero means no limit.
	MemoryLimitBytes int64
}

// Normalized returns a copy with defaults applied and negative values clamped.
func (c Config) Normalized() Config {
	if c.LoopTimes == 0 || c.LoopTimes < LoopForever {
		c.LoopTimes = 1
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.Interval < 0 {
		c.Interval = 0
	}
	if c.Limits.TimeLimit < 0 {
		c.Limits.TimeLimit = 0
	}
	if c.Limits.MemoryLimitBytes < 0 {
		c.Limits.MemoryLimitBytes = 0
	}
	return c
}

// Repeats reports whether the run with zero-based index iteration should happen.
func (c Config) Repeats(iteration int) bool {
	return c.LoopTimes == LoopForever || iteration < c.LoopTimes
}
