package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"scriptd/internal/domain/execution"
)

func TestNewConsumerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewConsumer(Config{}); err == nil || !strings.Contains(err.Error(), "trigger consumer: no brokers") {
		t.Fatalf("expected missing brokers error, got %v", err)
	}
	if _, err := NewConsumer(Config{Brokers: []string{"localhost:9092"}}); err == nil || !strings.Contains(err.Error(), "trigger consumer: topic") {
		t.Fatalf("expected missing topic error, got %v", err)
	}
}

func TestNewConsumerAppliesDefaults(t *testing.T) {
	t.Parallel()

	consumer, err := NewConsumer(Config{
		Brokers: []string{"localhost:9092"},
		Topic:   "triggers",
	})
	if err != nil {
		t.Fatalf("NewConsumer returned error: %v", err)
	}
	if err := consumer.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestConsumerNextTriggerParsesEnvelope(t *testing.T) {
	t.Parallel()

	envelope := triggerEnvelope{
		Action: "backup",
		Args:   map[string]any{"target": "s3", "retries": 3},
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("failed to marshal envelope: %v", err)
	}

	reader := &fakeReader{messages: []kafkago.Message{{Key: []byte("trigger-1"), Value: payload}}}
	consumer := newConsumer(reader)

	trigger, err := consumer.NextTrigger(context.Background())
	if err != nil {
		t.Fatalf("NextTrigger returned error: %v", err)
	}

	if trigger.ID != "trigger-1" {
		t.Fatalf("expected trigger ID from key, got %q", trigger.ID)
	}
	if trigger.Action != "backup" {
		t.Fatalf("unexpected action: %q", trigger.Action)
	}
	if trigger.Args["target"] != "s3" {
		t.Fatalf("unexpected target arg: %v", trigger.Args["target"])
	}
	if trigger.Args["retries"] != float64(3) {
		t.Fatalf("unexpected retries arg: %v", trigger.Args["retries"])
	}
}

func TestConsumerFallsBackToTopicOffsetID(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{messages: []kafkago.Message{{Topic: "triggers", Offset: 12, Value: []byte(`{"action":"ping"}`)}}}
	trigger, err := newConsumer(reader).NextTrigger(context.Background())
	if err != nil {
		t.Fatalf("NextTrigger returned error: %v", err)
	}
	if trigger.ID != "triggers:12" {
		t.Fatalf("unexpected trigger ID %q", trigger.ID)
	}
}

func TestConsumerNextTriggerValidationErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload string
		match   string
	}{
		{name: "missing action", payload: `{"type":"trigger"}`, match: "missing action"},
		{name: "unknown type", payload: `{"type":"weird","action":"a"}`, match: "unknown message type"},
		{name: "malformed", payload: `{`, match: "decode message"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			reader := &fakeReader{messages: []kafkago.Message{{Value: []byte(tc.payload)}}}
			consumer := newConsumer(reader)

			_, err := consumer.NextTrigger(context.Background())
			if err == nil || !strings.Contains(err.Error(), tc.match) {
				t.Fatalf("expected error containing %q, got %v", tc.match, err)
			}
		})
	}
}

func TestConsumerNextTriggerDoneMessage(t *testing.T) {
	t.Parallel()

	payload, _ := json.Marshal(triggerEnvelope{Type: messageTypeDone})
	reader := &fakeReader{messages: []kafkago.Message{{Value: payload}}}
	consumer := newConsumer(reader)

	_, err := consumer.NextTrigger(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF for done message, got %v", err)
	}
}

func TestConsumerCloseProxiesUnderlyingReader(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{}
	consumer := newConsumer(reader)

	if err := consumer.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if !reader.closed {
		t.Fatalf("expected reader to be closed")
	}
}

func TestPublisherValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewPublisher(PublisherConfig{}); err == nil || !strings.Contains(err.Error(), "notification publisher: no brokers") {
		t.Fatalf("expected missing brokers error, got %v", err)
	}
	if _, err := NewPublisher(PublisherConfig{Brokers: []string{"localhost:9092"}}); err == nil || !strings.Contains(err.Error(), "notification publisher: topic") {
		t.Fatalf("expected missing topic error, got %v", err)
	}
}

func TestNewPublisherValidConfig(t *testing.T) {
	t.Parallel()

	publisher, err := NewPublisher(PublisherConfig{Brokers: []string{"localhost:9092"}, Topic: "script-notifications"})
	if err != nil {
		t.Fatalf("NewPublisher returned error: %v", err)
	}
	if err := publisher.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestPublisherPublishesFailedNotification(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	publisher := newPublisher(writer)

	message := "job.go:7:2: boom"
	notification := execution.Notification{
		Event:       execution.EventExecutionFinished,
		ExecutionID: "exec-42",
		Script:      "job.go",
		Outcome:     execution.OutcomeFailed,
		Message:     &message,
		Line:        7,
		Column:      2,
		Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	if err := publisher.Publish(context.Background(), notification); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	if len(writer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(writer.messages))
	}
	if string(writer.messages[0].Key) != "exec-42" {
		t.Fatalf("expected message keyed by execution ID, got %q", writer.messages[0].Key)
	}
	if !writer.messages[0].Time.Equal(notification.Timestamp) {
		t.Fatalf("expected message time %v, got %v", notification.Timestamp, writer.messages[0].Time)
	}

	fields := decodeFields(t, writer.messages[0].Value)
	expect := map[string]any{
		"event":         "execution.finished",
		"execution_id":  "exec-42",
		"script":        "job.go",
		"outcome":       "failed",
		"message":       message,
		"line_number":   float64(7),
		"column_number": float64(2),
		"timestamp":     "2024-05-01T12:00:00Z",
	}
	for key, want := range expect {
		if fields[key] != want {
			t.Fatalf("field %q: expected %v, got %v", key, want, fields[key])
		}
	}

	if err := publisher.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if !writer.closed {
		t.Fatalf("expected writer to be closed")
	}
}

func TestNotificationEnvelopeOptionalFields(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		notification execution.Notification
		present      []string
		absent       []string
	}{
		{
			name:         "success omits error fields",
			notification: execution.Notification{Outcome: execution.OutcomeSuccess, Line: -1},
			absent:       []string{"message", "line_number", "column_number"},
		},
		{
			name:         "interrupted carries position without message",
			notification: execution.Notification{Outcome: execution.OutcomeInterrupted, Line: 3},
			present:      []string{"line_number", "column_number"},
			absent:       []string{"message"},
		},
		{
			name:         "failed with unknown position",
			notification: execution.Notification{Outcome: execution.OutcomeFailed, Line: -1, Message: new(string)},
			present:      []string{"message", "line_number", "column_number"},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			payload, err := encodeNotification(tc.notification)
			if err != nil {
				t.Fatalf("encodeNotification returned error: %v", err)
			}
			fields := decodeFields(t, payload)
			for _, key := range tc.present {
				if _, ok := fields[key]; !ok {
					t.Fatalf("expected field %q in %s", key, payload)
				}
			}
			for _, key := range tc.absent {
				if _, ok := fields[key]; ok {
					t.Fatalf("unexpected field %q in %s", key, payload)
				}
			}
			if fields["event"] != execution.EventExecutionFinished {
				t.Fatalf("expected default event, got %v", fields["event"])
			}
		})
	}
}

func TestPublisherPublishErrors(t *testing.T) {
	t.Parallel()

	t.Run("writer nil", func(t *testing.T) {
		publisher := &Publisher{}
		err := publisher.Publish(context.Background(), execution.Notification{})
		if err == nil || !strings.Contains(err.Error(), "no writer") {
			t.Fatalf("expected missing writer error, got %v", err)
		}
	})

	t.Run("writer failure", func(t *testing.T) {
		publisher := newPublisher(&fakeWriter{err: errors.New("boom")})
		err := publisher.Publish(context.Background(), execution.Notification{ExecutionID: "123"})
		if err == nil || !strings.Contains(err.Error(), "write notification for execution 123") {
			t.Fatalf("expected write failure, got %v", err)
		}
	})
}

func TestPublisherCloseWithNilWriter(t *testing.T) {
	t.Parallel()

	publisher := &Publisher{}
	if err := publisher.Close(); err != nil {
		t.Fatalf("Close should succeed when writer nil, got %v", err)
	}
}

func decodeFields(t *testing.T, payload []byte) map[string]any {
	t.Helper()
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	return fields
}

func TestConsumerNextTriggerWrapsReadErrors(t *testing.T) {
	t.Parallel()

	consumer := newConsumer(&fakeReader{err: context.Canceled})

	_, err := consumer.NextTrigger(context.Background())
	if !errors.Is(err, context.Canceled) || !strings.Contains(err.Error(), "read trigger") {
		t.Fatalf("expected wrapped context.Canceled, got %v", err)
	}
}

type fakeReader struct {
	messages []kafkago.Message
	err      error
	index    int
	closed   bool
}

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafkago.Message, error) {
	if r.index < len(r.messages) {
		msg := r.messages[r.index]
		r.index++
		return msg, nil
	}
	if r.err != nil {
		return kafkago.Message{}, r.err
	}
	return kafkago.Message{}, io.EOF
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}
