// Package notifier turns the terminal callback of an execution into a single
// completion notification.
package notifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"scriptd/internal/domain/execution"
	"scriptd/internal/ports"
)

const defaultPublishTimeout = 5 * time.Second

var _ execution.Listener = (*Notifier)(nil)

// Notifier publishes one Notification per callback it receives. It holds no
// per-execution state and is safe to call from any goroutine.
type Notifier struct {
	publishers []ports.NotificationPublisher
	logger     *zap.Logger
	timeout    time.Duration
	now        func() time.Time
}

// Option customises a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger used to report publish failures.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithPublishTimeout bounds each publish call.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.timeout = timeout
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) {
		if now != nil {
			n.now = now
		}
	}
}

// New constructs a Notifier delivering to every publisher.
func New(publishers []ports.NotificationPublisher, opts ...Option) *Notifier {
	n := &Notifier{
		publishers: publishers,
		logger:     zap.NewNop(),
		timeout:    defaultPublishTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// OnSuccess publishes a success notification. The result is not part of the
// payload.
func (n *Notifier) OnSuccess(exec *execution.Execution, _ any) {
	n.publish(Build(exec, nil, n.now()))
}

// OnException publishes an interrupted or failed notification positioned at
// the first source-aware error in err's chain.
func (n *Notifier) OnException(exec *execution.Execution, err error) {
	n.publish(Build(exec, err, n.now()))
}

// Build derives the notification for an execution that ended with err. A nil
// err yields a success notification.
func Build(exec *execution.Execution, err error, at time.Time) execution.Notification {
	notification := execution.Notification{
		Event:       execution.EventExecutionFinished,
		ExecutionID: exec.ID(),
		Script:      exec.Script().Name(),
		Outcome:     execution.OutcomeSuccess,
		Line:        execution.UnknownLine,
		Column:      execution.UnknownColumn,
		Timestamp:   at.UTC(),
	}
	if err == nil {
		return notification
	}

	notification.Line, notification.Column, _ = execution.SourcePosition(err)
	if execution.IsInterrupted(err) {
		notification.Outcome = execution.OutcomeInterrupted
		return notification
	}

	message := err.Error()
	notification.Outcome = execution.OutcomeFailed
	notification.Message = &message
	return notification
}

func (n *Notifier) publish(notification execution.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	for _, publisher := range n.publishers {
		if err := publisher.Publish(ctx, notification); err != nil {
			n.logger.Warn("publish notification",
				zap.String("execution_id", notification.ExecutionID),
				zap.String("outcome", string(notification.Outcome)),
				zap.Error(err),
			)
		}
	}
}
