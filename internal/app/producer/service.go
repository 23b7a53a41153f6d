package producer

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"scriptd/internal/domain/execution"
	"scriptd/internal/ports"
)

// Service implements ports.TriggerSource over an in-memory queue.
type Service struct {
	mu       sync.Mutex
	triggers []execution.Trigger
	index    int
}

var _ ports.TriggerSource = (*Service)(nil)

// NewService builds a producer that yields triggers in order and then io.EOF.
func NewService(triggers ...execution.Trigger) *Service {
	s := &Service{}
	for _, trigger := range triggers {
		s.AddTrigger(trigger)
	}
	return s
}

// NextTrigger returns the next queued trigger.
func (s *Service) NextTrigger(ctx context.Context) (execution.Trigger, error) {
	select {
	case <-ctx.Done():
		return execution.Trigger{}, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index >= len(s.triggers) {
		return execution.Trigger{}, io.EOF
	}

	trigger := s.triggers[s.index]
	s.index++

	return trigger, nil
}

// AddTrigger appends a trigger, assigning an ID when it has none.
func (s *Service) AddTrigger(trigger execution.Trigger) {
	if trigger.ID == "" {
		trigger.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.triggers = append(s.triggers, trigger)
}

// FromActions builds triggers for the given actions with no arguments.
func FromActions(actions ...string) []execution.Trigger {
	triggers := make([]execution.Trigger, 0, len(actions))
	for _, action := range actions {
		triggers = append(triggers, execution.Trigger{Action: action})
	}
	return triggers
}
