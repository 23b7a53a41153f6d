package docker

import "scriptd/internal/domain/execution"

// Config describes the container used to run Python scripts.
type Config struct {
	Image string
	// Workdir is the container directory the host working directory is
	// mounted on, read-only.
	Workdir       string
	DefaultLimits execution.RunLimits
}
