package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"scriptd/internal/app/dispatcher"
	"scriptd/internal/app/notifier"
	"scriptd/internal/domain/execution"
	"scriptd/internal/infra/bus"
	"scriptd/internal/infra/console"
	kafkainfra "scriptd/internal/infra/kafka"
	"scriptd/internal/ports"
	runtimex "scriptd/internal/runtime"
	"scriptd/internal/runtime/docker"
	"scriptd/internal/runtime/yaegi"
)

// app is the composed process: engine, notification channels and dispatcher.
type app struct {
	logger     *zap.Logger
	engine     *runtimex.Service
	bus        *bus.Bus
	publishers []ports.NotificationPublisher
	dispatcher *dispatcher.Dispatcher

	closeOnce sync.Once
	closeErr  error
}

func newApp(cfg appConfig, logger *zap.Logger, alerts io.Writer) (*app, error) {
	modules := []runtimex.Module{yaegi.New(yaegi.Config{Unrestricted: cfg.Unrestricted})}
	if cfg.DockerEnabled {
		module, err := docker.New(cfg.Docker)
		if err != nil {
			return nil, err
		}
		modules = append(modules, module)
	}

	registry, err := runtimex.NewRegistry(modules...)
	if err != nil {
		return nil, fmt.Errorf("runtime registry: %w", err)
	}
	engine := runtimex.NewService(registry, runtimex.WithLogger(logger.Named("engine")))

	notifications := bus.New(0, logger.Named("bus"))
	publishers := []ports.NotificationPublisher{notifications}
	if cfg.kafkaEnabled() {
		publisher, err := kafkainfra.NewPublisher(kafkainfra.PublisherConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.NotificationsTopic,
		})
		if err != nil {
			return nil, errors.Join(fmt.Errorf("kafka publisher: %w", err), engine.Close())
		}
		publishers = append(publishers, publisher)
	}

	notifierLogger := logger.Named("notifier")
	return &app{
		logger:     logger,
		engine:     engine,
		bus:        notifications,
		publishers: publishers,
		dispatcher: dispatcher.New(engine,
			dispatcher.WithAlerter(console.NewAlerter(alerts, logger)),
			dispatcher.WithNotifier(func() execution.Listener {
				return notifier.New(publishers, notifier.WithLogger(notifierLogger))
			}),
			dispatcher.WithScriptDir(cfg.ScriptDir),
			dispatcher.WithLogger(logger.Named("dispatcher")),
		),
	}, nil
}

// await blocks until exec settles, interrupting it when ctx ends first.
func (a *app) await(ctx context.Context, exec *execution.Execution) execution.Completion {
	select {
	case <-exec.Done():
	case <-ctx.Done():
		a.engine.Stop(exec.ID())
		<-exec.Done()
	}
	completion, _ := exec.Completion()
	return completion
}

// Close interrupts running executions, waits for their notifications and
// closes every publisher.
func (a *app) Close() error {
	a.closeOnce.Do(func() {
		errs := []error{a.engine.Close()}
		for _, publisher := range a.publishers {
			errs = append(errs, publisher.Close())
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
