package execution

import "time"

// EventExecutionFinished identifies completion notifications.
const EventExecutionFinished = "execution.finished"

// Outcome classifies how an execution ended.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeFailed      Outcome = "failed"
)

// Notification is published once per execution that reached a terminal state.
type Notification struct {
	Event       string
	ExecutionID string
	Script      string
	Outcome     Outcome
	// Message is nil when no error message applies.
	Message   *string
	Line      int
	Column    int
	Timestamp time.Time
}

// HasPosition reports whether the line/column fields belong on the wire.
func (n Notification) HasPosition() bool {
	return n.Outcome != OutcomeSuccess
}

// Trigger asks for the task bound to Action to be run.
type Trigger struct {
	ID     string
	Action string
	Args   map[string]any
}
