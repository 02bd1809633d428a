package interfaces_test

import (
	"context"
	"testing"
	"time"

	"scpchat/pkg/interfaces"
)

type memoryStore struct {
	events []interfaces.Event
}

func (m *memoryStore) Record(e interfaces.Event) { m.events = append(m.events, e) }

func (m *memoryStore) RecentEvents(ctx context.Context, limit int) ([]interfaces.Event, error) {
	out := make([]interfaces.Event, 0, limit)
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

func (m *memoryStore) Flush(ctx context.Context) error       { return nil }
func (m *memoryStore) HealthCheck(ctx context.Context) error { return nil }
func (m *memoryStore) Close() error                          { return nil }

func TestInterfaces_Compliance(t *testing.T) {
	var _ interfaces.EventRecorder = interfaces.NopRecorder{}
	var _ interfaces.AuditStore = &memoryStore{}
}

func TestNopRecorder_DiscardsEvents(t *testing.T) {
	var r interfaces.EventRecorder = interfaces.NopRecorder{}
	r.Record(interfaces.Event{ClientID: "c1", Kind: interfaces.EventConnected, OccurredAt: time.Now()})
}

func TestAuditStore_RecentEventsNewestFirst(t *testing.T) {
	store := &memoryStore{}
	for _, kind := range []interfaces.EventKind{
		interfaces.EventConnected,
		interfaces.EventAuthenticated,
		interfaces.EventJoined,
	} {
		store.Record(interfaces.Event{ClientID: "c1", Kind: kind})
	}

	events, err := store.RecentEvents(context.Background(), 2)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 2 || events[0].Kind != interfaces.EventJoined {
		t.Errorf("unexpected events %+v", events)
	}
}
