package kafka

import (
	"context"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"scriptd/internal/domain/execution"
	"scriptd/internal/ports"
)

// Config names the cluster, topic and consumer group triggers are read from.
// Zero fetch settings fall back to kafka-go friendly defaults.
type Config struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
}

const defaultGroupID = "scriptd"

var _ ports.TriggerSource = (*Consumer)(nil)

// Consumer reads trigger envelopes as a member of a consumer group, so several
// scriptd processes share one triggers topic.
type Consumer struct {
	reader messageReader
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// NewConsumer joins the trigger consumer group described by cfg.
func NewConsumer(cfg Config) (*Consumer, error) {
	if err := validateTopic("trigger consumer", cfg.Brokers, cfg.Topic); err != nil {
		return nil, err
	}
	if cfg.GroupID == "" {
		cfg.GroupID = defaultGroupID
	}

	readerConfig := kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	}

	if readerConfig.MinBytes == 0 {
		readerConfig.MinBytes = 1
	}
	if readerConfig.MaxBytes == 0 {
		readerConfig.MaxBytes = 10 * 1024 * 1024
	}
	if readerConfig.MaxWait == 0 {
		readerConfig.MaxWait = time.Second
	}

	return newConsumer(kafkago.NewReader(readerConfig)), nil
}

func newConsumer(reader messageReader) *Consumer {
	return &Consumer{reader: reader}
}

// NextTrigger blocks until a trigger arrives or ctx ends. A done envelope
// yields io.EOF so the trigger loop drains and stops.
func (c *Consumer) NextTrigger(ctx context.Context) (execution.Trigger, error) {
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return execution.Trigger{}, fmt.Errorf("read trigger: %w", err)
	}

	return decodeTriggerMessage(msg)
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
