// Package trigger runs configured tasks in response to trigger messages.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"scriptd/internal/app/dispatcher"
	"scriptd/internal/app/tasks"
	"scriptd/internal/domain/execution"
	"scriptd/internal/ports"
)

// TaskRunner submits a task for execution.
type TaskRunner interface {
	RunTask(ctx context.Context, task tasks.Task, args map[string]any) (*execution.Execution, error)
}

// TaskLookup resolves an action to its task.
type TaskLookup interface {
	Lookup(action string) (tasks.Task, bool)
}

// ErrUnknownAction is reported for triggers whose action has no task.
var ErrUnknownAction = errors.New("unknown action")

// Dispatch reports what happened to one trigger.
type Dispatch struct {
	Trigger   execution.Trigger
	Execution *execution.Execution
	Err       error
}

// Service coordinates trigger consumption and task submission.
type Service struct {
	runner TaskRunner
	tasks  TaskLookup
	logger *zap.Logger
}

// NewService constructs a Service.
func NewService(runner TaskRunner, lookup TaskLookup, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{runner: runner, tasks: lookup, logger: logger}
}

// Consume pulls triggers from source and runs the matching tasks, keeping at
// most maxParallel triggered executions in flight.
//
// If maxTriggers is greater than zero consumption stops after that many
// triggers. Otherwise it keeps consuming until the context is cancelled or the
// source signals completion via io.EOF. On io.EOF or maxTriggers, Consume
// waits for the executions it started to settle.
//
// When onDispatch is provided it is invoked once per consumed trigger.
func (s *Service) Consume(
	ctx context.Context,
	source ports.TriggerSource,
	maxTriggers int,
	maxParallel int,
	onDispatch func(Dispatch),
) error {
	if maxParallel <= 0 {
		maxParallel = 1
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxParallel)
	processed := 0

	finish := func(err error) error {
		wg.Wait()
		return err
	}

	for {
		if maxTriggers > 0 && processed >= maxTriggers {
			return finish(nil)
		}

		trigger, err := source.NextTrigger(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return finish(nil)
			}

			return finish(fmt.Errorf("get next trigger: %w", err))
		}
		processed++

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return finish(nil)
		}

		dispatch := s.dispatch(ctx, trigger)
		if onDispatch != nil {
			onDispatch(dispatch)
		}
		if dispatch.Execution == nil {
			<-sem
			continue
		}

		wg.Add(1)
		go func(exec *execution.Execution) {
			defer wg.Done()
			defer func() { <-sem }()

			select {
			case <-exec.Done():
			case <-ctx.Done():
			}
		}(dispatch.Execution)
	}
}

func (s *Service) dispatch(ctx context.Context, trigger execution.Trigger) Dispatch {
	fields := []zap.Field{zap.String("trigger_id", trigger.ID), zap.String("action", trigger.Action)}

	task, ok := s.tasks.Lookup(trigger.Action)
	if !ok {
		s.logger.Warn("trigger skipped", append(fields, zap.Error(ErrUnknownAction))...)
		return Dispatch{Trigger: trigger, Err: fmt.Errorf("%w %q", ErrUnknownAction, trigger.Action)}
	}

	exec, err := s.runner.RunTask(ctx, task, map[string]any{
		dispatcher.TriggerArgument: triggerPayload(trigger),
	})
	if err != nil {
		s.logger.Warn("trigger dispatch failed", append(fields, zap.Error(err))...)
		return Dispatch{Trigger: trigger, Err: err}
	}
	if exec == nil {
		return Dispatch{Trigger: trigger}
	}

	s.logger.Info("trigger dispatched", append(fields, zap.String("execution_id", exec.ID()))...)
	return Dispatch{Trigger: trigger, Execution: exec}
}

func triggerPayload(trigger execution.Trigger) map[string]any {
	args := trigger.Args
	if args == nil {
		args = map[string]any{}
	}
	return map[string]any{
		"id":     trigger.ID,
		"action": trigger.Action,
		"args":   args,
	}
}
