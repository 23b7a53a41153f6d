package runtime

import (
	"context"

	"scriptd/internal/domain/execution"
)

// PreparedScript is a script loaded by a module and ready to be run one or
// more times.
type PreparedScript interface {
	Run(ctx context.Context) (*execution.Result, error)
	Close() error
}

// Module provides runtime support for a specific script language.
type Module interface {
	Language() execution.Language
	Prepare(ctx context.Context, script execution.ScriptHandle, cfg execution.Config) (PreparedScript, error)
	Close() error
}
