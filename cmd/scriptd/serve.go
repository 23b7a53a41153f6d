package main

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scriptd/internal/app/producer"
	"scriptd/internal/app/tasks"
	"scriptd/internal/app/trigger"
	"scriptd/internal/infra/console"
	kafkainfra "scriptd/internal/infra/kafka"
	"scriptd/internal/ports"
)

// serve consumes triggers until the source is exhausted or ctx ends. Without
// Kafka brokers the triggers come from actions.
func serve(ctx context.Context, cfg appConfig, actions []string, out, alerts io.Writer) error {
	registry, err := tasks.Load(cfg.TasksFile, logger.Named("tasks"))
	if err != nil {
		return err
	}

	source, closeSource, err := triggerSource(cfg, actions)
	if err != nil {
		return err
	}
	defer closeSource()

	a, err := newApp(cfg, logger, alerts)
	if err != nil {
		return err
	}
	defer a.Close()

	notifications, _ := a.bus.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		console.Print(out, notifications)
	}()

	logger.Info("serving tasks",
		zap.String("tasks_file", cfg.TasksFile),
		zap.Strings("actions", registry.Actions()),
		zap.Any("languages", a.engine.Languages()),
		zap.Bool("kafka", cfg.kafkaEnabled()),
	)

	g, gctx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gctx)
	g.Go(func() error {
		return registry.Watch(watchCtx)
	})
	g.Go(func() error {
		defer stopWatch()
		service := trigger.NewService(a.dispatcher, registry, logger.Named("trigger"))
		return service.Consume(gctx, source, cfg.MaxTriggers, cfg.MaxParallel, func(d trigger.Dispatch) {
			if d.Err != nil {
				logger.Debug("trigger not dispatched", zap.String("trigger_id", d.Trigger.ID), zap.Error(d.Err))
			}
		})
	})

	runErr := g.Wait()
	closeErr := a.Close()
	<-printed
	return errors.Join(runErr, closeErr)
}

func triggerSource(cfg appConfig, actions []string) (ports.TriggerSource, func(), error) {
	if !cfg.kafkaEnabled() {
		return producer.NewService(producer.FromActions(actions...)...), func() {}, nil
	}

	consumer, err := kafkainfra.NewConsumer(kafkainfra.Config{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.TriggersTopic,
		GroupID: cfg.GroupID,
	})
	if err != nil {
		return nil, nil, err
	}
	return consumer, func() {
		if err := consumer.Close(); err != nil {
			logger.Warn("failed to close kafka consumer", zap.Error(err))
		}
	}, nil
}
