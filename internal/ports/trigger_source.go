package ports

import (
	"context"

	"scriptd/internal/domain/execution"
)

// TriggerSource yields task triggers. It returns io.EOF once exhausted.
type TriggerSource interface {
	NextTrigger(ctx context.Context) (execution.Trigger, error)
}
