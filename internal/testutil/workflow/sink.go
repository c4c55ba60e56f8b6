package workflow

import (
	"context"
	"sync"

	"github.com/eleven-am/loom/internal/domain"
)

// RecordingSink captures published events in order.
type RecordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *RecordingSink) Publish(_ context.Context, event domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *RecordingSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

func (s *RecordingSink) Types(executionID string) []domain.EventType {
	var out []domain.EventType
	for _, e := range s.Events() {
		if executionID == "" || e.ExecutionID == executionID {
			out = append(out, e.Type)
		}
	}
	return out
}

// NodeEvents returns "<type>:<node>" for node events of an execution.
func (s *RecordingSink) NodeEvents(executionID string) []string {
	var out []string
	for _, e := range s.Events() {
		if e.NodeID != "" && (executionID == "" || e.ExecutionID == executionID) {
			out = append(out, string(e.Type)+":"+e.NodeID)
		}
	}
	return out
}
