package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	dbconfig "scpchat/pkg/database"
	"scpchat/pkg/interfaces"
)

func setupTestDB(t *testing.T) *Manager {
	t.Helper()
	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "audit.db")
	config.RetryDelay = 10 * time.Millisecond

	manager, err := NewManager(config)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() {
		if err := manager.Close(); err != nil {
			t.Logf("Failed to close manager: %v", err)
		}
	})
	return manager
}

func flush(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}

func event(clientID string, kind interfaces.EventKind, detail string, at time.Time) interfaces.Event {
	return interfaces.Event{
		ClientID:   clientID,
		Kind:       kind,
		Detail:     detail,
		RemoteAddr: "127.0.0.1:50000",
		Transport:  "tcp",
		OccurredAt: at,
	}
}

func TestManager_Compliance(t *testing.T) {
	var _ interfaces.AuditStore = &Manager{}
}

func TestManager_NewManagerMigratesSchema(t *testing.T) {
	m := setupTestDB(t)

	if err := dbconfig.NewSchemaValidator(m.GetDB()).Validate(); err != nil {
		t.Errorf("schema should be valid after NewManager: %v", err)
	}
	if err := m.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestManager_ReopenKeepsHistory(t *testing.T) {
	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "audit.db")

	first, err := NewManager(config)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	first.Record(event("c1", interfaces.EventConnected, "", time.Now()))
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := NewManager(config)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	events, err := second.RecentEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected event to survive reopen, got %d", len(events))
	}
}

func TestManager_RecordLifecycle(t *testing.T) {
	m := setupTestDB(t)
	base := time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC)

	m.Record(event("c1", interfaces.EventConnected, "", base))
	m.Record(event("c1", interfaces.EventAuthenticated, "alice", base.Add(time.Second)))
	m.Record(event("c1", interfaces.EventJoined, "general", base.Add(2*time.Second)))
	m.Record(event("c1", interfaces.EventLeft, "general", base.Add(3*time.Second)))
	m.Record(event("c1", interfaces.EventDisconnected, "", base.Add(4*time.Second)))
	flush(t, m)

	events, err := m.RecentEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}

	wantKinds := []interfaces.EventKind{
		interfaces.EventDisconnected,
		interfaces.EventLeft,
		interfaces.EventJoined,
		interfaces.EventAuthenticated,
		interfaces.EventConnected,
	}
	if len(events) != len(wantKinds) {
		t.Fatalf("expected %d events, got %d", len(wantKinds), len(events))
	}
	for i, kind := range wantKinds {
		if events[i].Kind != kind {
			t.Errorf("event %d: expected %s, got %s", i, kind, events[i].Kind)
		}
		if events[i].ID == "" {
			t.Errorf("event %d has no id", i)
		}
		if events[i].Transport != "tcp" || events[i].RemoteAddr != "127.0.0.1:50000" {
			t.Errorf("event %d lost connection info: %+v", i, events[i])
		}
	}
	if events[2].Detail != "general" {
		t.Errorf("expected joined detail 'general', got %q", events[2].Detail)
	}
	if !events[4].OccurredAt.Equal(base) {
		t.Errorf("expected connected at %v, got %v", base, events[4].OccurredAt)
	}

	var username string
	var disconnected bool
	err = m.GetDB().QueryRow(
		"SELECT username, disconnected_at IS NOT NULL FROM connections WHERE client_id = ?", "c1",
	).Scan(&username, &disconnected)
	if err != nil {
		t.Fatalf("query connection: %v", err)
	}
	if username != "alice" {
		t.Errorf("expected username alice, got %q", username)
	}
	if !disconnected {
		t.Error("expected disconnected_at to be set")
	}
}

func TestManager_RecordWithoutConnectedEvent(t *testing.T) {
	m := setupTestDB(t)

	m.Record(event("late", interfaces.EventAuthenticated, "bob", time.Now()))
	flush(t, m)

	events, err := m.RecentEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != interfaces.EventAuthenticated {
		t.Errorf("expected the authenticated event, got %+v", events)
	}
}

func TestManager_RecentEventsLimit(t *testing.T) {
	m := setupTestDB(t)
	base := time.Now()

	for i := 0; i < 20; i++ {
		m.Record(event(fmt.Sprintf("c%d", i), interfaces.EventConnected, "", base.Add(time.Duration(i)*time.Millisecond)))
	}
	flush(t, m)

	events, err := m.RecentEvents(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	if events[0].ClientID != "c19" {
		t.Errorf("expected newest client c19 first, got %s", events[0].ClientID)
	}
}

func TestManager_ConcurrentRecord(t *testing.T) {
	m := setupTestDB(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("client-%d", i)
			m.Record(event(id, interfaces.EventConnected, "", time.Now()))
			m.Record(event(id, interfaces.EventDisconnected, "", time.Now()))
		}(i)
	}
	wg.Wait()
	flush(t, m)

	var count int
	if err := m.GetDB().QueryRow("SELECT COUNT(*) FROM session_events").Scan(&count); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 20 {
		t.Errorf("expected 20 events, got %d", count)
	}
}

func TestManager_CloseDrainsQueue(t *testing.T) {
	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "audit.db")

	m, err := NewManager(config)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	for i := 0; i < 50; i++ {
		m.Record(event(fmt.Sprintf("c%d", i), interfaces.EventConnected, "", time.Now()))
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewManager(config)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	events, err := reopened.RecentEvents(context.Background(), 100)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 50 {
		t.Errorf("expected all 50 queued events written before close, got %d", len(events))
	}
}

func TestManager_AfterClose(t *testing.T) {
	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "audit.db")

	m, err := NewManager(config)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}

	m.Record(event("c1", interfaces.EventConnected, "", time.Now()))

	if err := m.Flush(context.Background()); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("expected ErrManagerClosed from Flush, got %v", err)
	}
	if err := m.HealthCheck(context.Background()); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("expected ErrManagerClosed from HealthCheck, got %v", err)
	}
}

func TestManager_FlushHonoursContext(t *testing.T) {
	m := setupTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Flush(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("expected nil or context.Canceled, got %v", err)
	}
}

func TestManager_WriteRejectedDuringShutdown(t *testing.T) {
	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "audit.db")
	config.QueueSize = 1

	m, err := NewManager(config)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	ctx := context.Background()

	// Hold the writer inside the first operation.
	started := make(chan struct{})
	release := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		first <- m.executeWrite(ctx, func(*sql.DB) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// Fill the one-slot queue.
	queued := make(chan error, 1)
	go func() {
		queued <- m.executeWrite(ctx, func(*sql.DB) error { return nil })
	}()
	deadline := time.Now().Add(2 * time.Second)
	for len(m.writeChannel) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Second write never queued")
		}
		time.Sleep(time.Millisecond)
	}

	// This one blocks on the full queue until shutdown begins.
	blocked := make(chan error, 1)
	go func() {
		blocked <- m.executeWrite(ctx, func(*sql.DB) error { return nil })
	}()
	time.Sleep(50 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- m.Close() }()

	select {
	case err := <-blocked:
		if !errors.Is(err, ErrShuttingDown) {
			t.Errorf("Expected ErrShuttingDown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Blocked write was not released by shutdown")
	}

	close(release)
	for name, ch := range map[string]chan error{"first": first, "queued": queued, "close": closed} {
		select {
		case err := <-ch:
			if err != nil {
				t.Errorf("%s: unexpected error %v", name, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s did not finish", name)
		}
	}
}

func TestManager_InvalidConfig(t *testing.T) {
	config := dbconfig.DefaultConfig()
	config.DatabasePath = ""
	if _, err := NewManager(config); err == nil {
		t.Error("expected NewManager to reject an empty path")
	}
}
