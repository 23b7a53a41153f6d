package kafka

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"scriptd/internal/domain/execution"
)

const (
	messageTypeTrigger = "trigger"
	messageTypeDone    = "done"
)

type triggerEnvelope struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Action string         `json:"action"`
	Args   map[string]any `json:"args,omitempty"`
}

type notificationEnvelope struct {
	Event       string            `json:"event"`
	ExecutionID string            `json:"execution_id"`
	Script      string            `json:"script"`
	Outcome     execution.Outcome `json:"outcome"`
	Message     *string           `json:"message,omitempty"`
	Line        *int              `json:"line_number,omitempty"`
	Column      *int              `json:"column_number,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

func decodeTriggerMessage(msg kafkago.Message) (execution.Trigger, error) {
	var envelope triggerEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return execution.Trigger{}, fmt.Errorf("decode message: %w", err)
	}

	msgType := envelope.Type
	if msgType == "" {
		msgType = messageTypeTrigger
	}

	switch msgType {
	case messageTypeTrigger:
		return envelope.toTrigger(msg)
	case messageTypeDone:
		return execution.Trigger{}, io.EOF
	default:
		return execution.Trigger{}, fmt.Errorf("unknown message type %q", msgType)
	}
}

func (e triggerEnvelope) toTrigger(msg kafkago.Message) (execution.Trigger, error) {
	if e.Action == "" {
		return execution.Trigger{}, fmt.Errorf("trigger message missing action")
	}

	triggerID := e.ID
	if triggerID == "" {
		triggerID = string(msg.Key)
	}
	if triggerID == "" {
		triggerID = fmt.Sprintf("%s:%d", msg.Topic, msg.Offset)
	}

	return execution.Trigger{
		ID:     triggerID,
		Action: e.Action,
		Args:   e.Args,
	}, nil
}

func encodeNotification(notification execution.Notification) ([]byte, error) {
	payload, err := json.Marshal(makeNotificationEnvelope(notification))
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	return payload, nil
}

func makeNotificationEnvelope(n execution.Notification) notificationEnvelope {
	envelope := notificationEnvelope{
		Event:       n.Event,
		ExecutionID: n.ExecutionID,
		Script:      n.Script,
		Outcome:     n.Outcome,
		Timestamp:   n.Timestamp.UTC(),
	}
	if envelope.Event == "" {
		envelope.Event = execution.EventExecutionFinished
	}
	if envelope.Timestamp.IsZero() {
		envelope.Timestamp = time.Now().UTC()
	}

	if n.HasPosition() {
		line, column := n.Line, n.Column
		envelope.Line = &line
		envelope.Column = &column
		envelope.Message = n.Message
	}
	return envelope
}
