package kafka

import (
	"context"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"scriptd/internal/domain/execution"
	"scriptd/internal/ports"
)

var _ ports.NotificationPublisher = (*Publisher)(nil)

// PublisherConfig names the cluster and topic that receive completion
// notifications.
type PublisherConfig struct {
	Brokers []string
	Topic   string
}

// Publisher writes one message per settled execution. Messages are keyed by
// execution ID so every notification of an execution lands on one partition.
type Publisher struct {
	writer messageWriter
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewPublisher returns a Publisher for cfg. No connection is made until the
// first notification is published.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if err := validateTopic("notification publisher", cfg.Brokers, cfg.Topic); err != nil {
		return nil, err
	}

	return newPublisher(&kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		AllowAutoTopicCreation: true,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
	}), nil
}

func newPublisher(writer messageWriter) *Publisher {
	return &Publisher{writer: writer}
}

func (p *Publisher) Publish(ctx context.Context, notification execution.Notification) error {
	if p.writer == nil {
		return fmt.Errorf("notification publisher has no writer")
	}

	payload, err := encodeNotification(notification)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(notification.ExecutionID),
		Value: payload,
		Time:  notification.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("write notification for execution %s: %w", notification.ExecutionID, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func validateTopic(role string, brokers []string, topic string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("kafka %s: no brokers configured", role)
	}
	if topic == "" {
		return fmt.Errorf("kafka %s: topic must be set", role)
	}
	return nil
}
