package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"scriptd/internal/domain/execution"
	"scriptd/internal/ports"
)

var _ ports.ScriptEngine = (*Service)(nil)

// Service is the script engine: it owns one goroutine per submitted
// execution and settles every execution exactly once.
type Service struct {
	registry *Registry
	logger   *zap.Logger

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
	closed  bool
	wg      sync.WaitGroup
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the logger used for execution lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs an engine dispatching to the modules of registry.
func NewService(registry *Registry, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		logger:   zap.NewNop(),
		running:  make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute schedules script and returns immediately. The execution outlives
// ctx cancellation; use Stop to interrupt it.
func (s *Service) Execute(ctx context.Context, script execution.ScriptHandle, listener execution.Listener, cfg *execution.Config) (*execution.Execution, error) {
	var config execution.Config
	if cfg != nil {
		config = *cfg
	}
	config = config.Normalized()

	if _, err := s.registry.moduleFor(script.Language()); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, execution.ErrEngineUnavailable
	}

	exec := execution.NewExecution(script, config, listener)
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	s.running[exec.ID()] = cancel
	s.wg.Add(1)

	s.logger.Debug("execution submitted",
		zap.String("execution_id", exec.ID()),
		zap.Stringer("script", script),
		zap.String("workdir", config.WorkingDirectory),
		zap.Int("loop_times", config.LoopTimes),
	)

	go s.run(runCtx, cancel, exec)
	return exec, nil
}

// Languages lists the script languages the engine can run.
func (s *Service) Languages() []execution.Language {
	return s.registry.Languages()
}

// Stop interrupts the execution with the given ID. It reports whether the
// execution was still running.
func (s *Service) Stop(id string) bool {
	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		cancel(execution.ErrInterrupted)
	}
	return ok
}

// StopAll interrupts every running execution and returns how many were stopped.
func (s *Service) StopAll() int {
	s.mu.Lock()
	cancels := make([]context.CancelCauseFunc, 0, len(s.running))
	for _, cancel := range s.running {
		cancels = append(cancels, cancel)
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel(execution.ErrInterrupted)
	}
	return len(cancels)
}

// Running returns the IDs of executions that have not settled yet.
func (s *Service) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close rejects new submissions, interrupts running executions, waits for
// them to settle and releases module resources.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.StopAll()
	s.wg.Wait()
	return s.registry.Close()
}

func (s *Service) run(ctx context.Context, cancel context.CancelCauseFunc, exec *execution.Execution) {
	defer s.wg.Done()

	result, err := s.loop(ctx, exec)
	if err != nil && errors.Is(context.Cause(ctx), execution.ErrInterrupted) && !execution.IsInterrupted(err) {
		err = fmt.Errorf("%w: %w", execution.ErrInterrupted, err)
	}

	s.mu.Lock()
	delete(s.running, exec.ID())
	s.mu.Unlock()
	cancel(nil)

	fields := []zap.Field{zap.String("execution_id", exec.ID()), zap.Stringer("script", exec.Script())}
	switch {
	case err == nil:
		s.logger.Debug("execution finished", fields...)
	case execution.IsInterrupted(err):
		s.logger.Info("execution interrupted", fields...)
	default:
		s.logger.Warn("execution failed", append(fields, zap.Error(err))...)
	}

	var value any
	if result != nil {
		value = result
	}
	exec.Finish(value, err)
}

func (s *Service) loop(ctx context.Context, exec *execution.Execution) (*execution.Result, error) {
	cfg := exec.Config()

	prepared, err := s.registry.Prepare(ctx, exec.Script(), cfg)
	if err != nil {
		return nil, err
	}
	defer prepared.Close()

	var last *execution.Result
	for iteration := 0; cfg.Repeats(iteration); iteration++ {
		wait := cfg.Interval
		if iteration == 0 {
			wait = cfg.Delay
		}
		if err := sleep(ctx, wait); err != nil {
			return last, err
		}

		result, err := prepared.Run(ctx)
		if err != nil {
			if cfg.LoopTimes != 1 {
				err = fmt.Errorf("iteration %d: %w", iteration+1, err)
			}
			return result, err
		}
		last = result
	}

	return last, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
