package ports

import (
	"context"

	"scriptd/internal/domain/execution"
)

// NotificationPublisher delivers completion notifications to an external system.
type NotificationPublisher interface {
	Publish(ctx context.Context, notification execution.Notification) error
	Close() error
}
