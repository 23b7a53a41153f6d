package ports

import (
	"context"

	"scriptd/internal/domain/execution"
)

// ScriptEngine accepts scripts for asynchronous execution.
//
// Execute returns as soon as the script is scheduled. A non-nil error means
// the script never started and the listener will never be invoked.
type ScriptEngine interface {
	Execute(ctx context.Context, script execution.ScriptHandle, listener execution.Listener, cfg *execution.Config) (*execution.Execution, error)
}
