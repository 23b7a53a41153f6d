// Package dispatcher submits scripts to the script engine.
package dispatcher

import (
	"context"
	"errors"
	"maps"
	"time"

	"go.uber.org/zap"

	"scriptd/internal/app/tasks"
	"scriptd/internal/domain/execution"
	"scriptd/internal/ports"
)

// TriggerArgument is the argument name under which a task receives the
// payload of the trigger that started it.
const TriggerArgument = "trigger"

// Dispatcher builds execution configs for script handles and hands them to
// the engine. Submission failures never reach the notification channel: they
// are returned to the caller and shown through the Alerter.
type Dispatcher struct {
	engine      ports.ScriptEngine
	alerter     ports.Alerter
	newListener func() execution.Listener
	scriptDir   string
	logger      *zap.Logger
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithAlerter sets where submission failures are shown.
func WithAlerter(alerter ports.Alerter) Option {
	return func(d *Dispatcher) {
		d.alerter = alerter
	}
}

// WithNotifier sets the factory of listeners attached by RunWithNotification.
func WithNotifier(factory func() execution.Listener) Option {
	return func(d *Dispatcher) {
		d.newListener = factory
	}
}

// WithScriptDir sets the working directory used for inline scripts that do
// not carry one.
func WithScriptDir(dir string) Option {
	return func(d *Dispatcher) {
		d.scriptDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New constructs a Dispatcher. engine may be nil, in which case every
// submission fails with execution.ErrEngineUnavailable.
func New(engine ports.ScriptEngine, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		engine: engine,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run submits handle without a listener. The config is nil when no working
// directory can be determined.
func (d *Dispatcher) Run(ctx context.Context, handle execution.ScriptHandle) (*execution.Execution, error) {
	return d.submit(ctx, handle, nil, d.baseConfig(handle))
}

// RunRepeated submits handle to run loopTimes times, waiting delay before the
// first run and interval between runs. It is a no-op returning nil, nil when
// the handle has no working directory.
func (d *Dispatcher) RunRepeated(ctx context.Context, handle execution.ScriptHandle, loopTimes int, delay, interval time.Duration) (*execution.Execution, error) {
	cfg := d.baseConfig(handle)
	if cfg == nil {
		d.logger.Debug("repeated run skipped: no working directory", zap.Stringer("script", handle))
		return nil, nil
	}
	cfg.LoopTimes = loopTimes
	cfg.Delay = delay
	cfg.Interval = interval
	return d.submit(ctx, handle, nil, cfg)
}

// RunWithNotification is Run with a fresh completion notifier attached.
func (d *Dispatcher) RunWithNotification(ctx context.Context, handle execution.ScriptHandle) (*execution.Execution, error) {
	return d.submit(ctx, handle, d.listener(), d.baseConfig(handle))
}

// RunTask runs a configured task. args are merged over the task's own
// arguments.
func (d *Dispatcher) RunTask(ctx context.Context, task tasks.Task, args map[string]any) (*execution.Execution, error) {
	handle, err := task.Handle()
	if err != nil {
		return nil, d.fail(task.Script, err)
	}

	cfg := d.baseConfig(handle)
	if cfg == nil {
		cfg = &execution.Config{}
	}
	cfg.LoopTimes = task.LoopTimes
	cfg.Delay = task.Delay
	cfg.Interval = task.Interval
	cfg.Limits.TimeLimit = task.TimeLimit
	cfg.Arguments = make(map[string]any, len(task.Arguments)+len(args))
	maps.Copy(cfg.Arguments, task.Arguments)
	maps.Copy(cfg.Arguments, args)

	var listener execution.Listener
	if task.Notify {
		listener = d.listener()
	}
	return d.submit(ctx, handle, listener, cfg)
}

func (d *Dispatcher) baseConfig(handle execution.ScriptHandle) *execution.Config {
	dir, ok := handle.WorkingDir()
	if !ok && handle.Inline() && d.scriptDir != "" {
		dir, ok = d.scriptDir, true
	}
	if !ok {
		return nil
	}
	return &execution.Config{WorkingDirectory: dir}
}

func (d *Dispatcher) listener() execution.Listener {
	if d.newListener == nil {
		return nil
	}
	return d.newListener()
}

func (d *Dispatcher) submit(ctx context.Context, handle execution.ScriptHandle, listener execution.Listener, cfg *execution.Config) (*execution.Execution, error) {
	if d.engine == nil {
		return nil, d.fail(handle.String(), execution.ErrEngineUnavailable)
	}

	exec, err := d.engine.Execute(ctx, handle, listener, cfg)
	if err != nil {
		return nil, d.fail(handle.String(), err)
	}
	if exec == nil {
		return nil, d.fail(handle.String(), execution.ErrEngineUnavailable)
	}

	d.logger.Debug("script submitted",
		zap.String("execution_id", exec.ID()),
		zap.Stringer("script", handle),
		zap.Bool("notify", listener != nil),
	)
	return exec, nil
}

func (d *Dispatcher) fail(script string, err error) error {
	var submitErr *execution.SubmissionError
	if !errors.As(err, &submitErr) {
		submitErr = &execution.SubmissionError{Script: script, Err: err}
	}

	d.logger.Warn("script submission failed", zap.String("script", script), zap.Error(submitErr))
	if d.alerter != nil {
		d.alerter.Alert(submitErr.Error())
	}
	return submitErr
}
