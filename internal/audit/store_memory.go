package audit

import (
	"context"
	"sync"

	id "idcapture/pkg/domain"
	dErrors "idcapture/pkg/domain-errors"
)

// InMemoryStore keeps trails for the life of the process.
type InMemoryStore struct {
	mu     sync.RWMutex
	trails map[id.FlowID][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{trails: make(map[id.FlowID][]Event)}
}

// Append rejects events that do not belong to a flow.
func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	if event.FlowID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "audit event without flow")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trails[event.FlowID] = append(s.trails[event.FlowID], event)
	return nil
}

// ListByFlow returns a copy of the flow's trail; an unknown flow has an empty one.
func (s *InMemoryStore) ListByFlow(_ context.Context, flowID id.FlowID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trail := s.trails[flowID]
	out := make([]Event, len(trail))
	copy(out, trail)
	return out, nil
}
