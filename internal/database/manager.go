// Package database is the sqlite connection audit store. Writes go through a
// single goroutine; reads use the connection pool directly.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	dbconfig "scpchat/pkg/database"
	"scpchat/pkg/interfaces"
)

var (
	ErrManagerClosed = errors.New("audit store is closed")
	ErrShuttingDown  = errors.New("audit store is shutting down")
)

// Manager implements interfaces.AuditStore on sqlite.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

// writeOperation is one unit of work for the writer. result is nil for
// fire-and-forget writes.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies the embedded migrations, checks the
// resulting schema and starts the writer.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	migrations := dbconfig.NewEmbeddedMigrationManager(db)
	applied, err := migrations.ApplyMigrations()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if len(applied) > 0 {
		log.Printf("Applied audit migrations %v", applied)
	}
	if err := migrations.ValidateSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit schema invalid: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, config.QueueSize),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop runs every write in a single goroutine. On shutdown it drains
// whatever is still queued before returning.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			m.apply(op)
		case <-m.shutdown:
			for {
				select {
				case op := <-m.writeChannel:
					m.apply(op)
				default:
					log.Println("Audit write loop shutting down")
					return
				}
			}
		}
	}
}

// apply runs op, retrying once after RetryDelay.
func (m *Manager) apply(op writeOperation) {
	err := op.operation(m.db)
	if err != nil {
		log.Printf("Audit write failed, retrying in %v: %v", m.config.RetryDelay, err)
		time.Sleep(m.config.RetryDelay)
		err = op.operation(m.db)
		if err != nil {
			log.Printf("Audit write failed after retry: %v", err)
		}
	}
	if op.result != nil {
		op.result <- err
	}
}

// executeWrite queues a write and waits for its result.
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrShuttingDown
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Record queues event without waiting. When the queue is full or the store is
// closed the event is dropped and logged.
func (m *Manager) Record(event interfaces.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	event.OccurredAt = event.OccurredAt.UTC()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}

	op := writeOperation{operation: func(db *sql.DB) error {
		return insertEvent(db, event)
	}}
	select {
	case m.writeChannel <- op:
	default:
		log.Printf("Audit queue full, dropping %s event for client %s", event.Kind, event.ClientID)
	}
}

func insertEvent(db *sql.DB, event interfaces.Event) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// The connection row is created by whichever event arrives first, so a
	// dropped "connected" event does not orphan the rest.
	_, err = tx.Exec(`
		INSERT OR IGNORE INTO connections (client_id, remote_addr, transport, connected_at)
		VALUES (?, ?, ?, ?)
	`, event.ClientID, event.RemoteAddr, transportOrDefault(event.Transport), event.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to upsert connection: %w", err)
	}

	switch event.Kind {
	case interfaces.EventAuthenticated:
		_, err = tx.Exec(`UPDATE connections SET username = ? WHERE client_id = ?`, event.Detail, event.ClientID)
	case interfaces.EventDisconnected:
		_, err = tx.Exec(`UPDATE connections SET disconnected_at = ? WHERE client_id = ?`, event.OccurredAt, event.ClientID)
	}
	if err != nil {
		return fmt.Errorf("failed to update connection: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO session_events (id, client_id, kind, detail, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`, event.ID, event.ClientID, string(event.Kind), event.Detail, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return tx.Commit()
}

func transportOrDefault(t string) string {
	if t == "" {
		return "tcp"
	}
	return t
}

// Flush returns once every event recorded before the call has been written.
func (m *Manager) Flush(ctx context.Context) error {
	return m.executeWrite(ctx, func(*sql.DB) error { return nil })
}

// RecentEvents returns at most limit events, newest first.
func (m *Manager) RecentEvents(ctx context.Context, limit int) ([]interfaces.Event, error) {
	query := `
		SELECT e.id, e.client_id, e.kind, e.detail, c.remote_addr, c.transport, e.occurred_at
		FROM session_events e
		JOIN connections c ON c.client_id = e.client_id
		ORDER BY e.occurred_at DESC, e.rowid DESC
		LIMIT ?
	`

	rows, err := m.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]interfaces.Event, 0, limit)
	for rows.Next() {
		var event interfaces.Event
		var kind string
		if err := rows.Scan(
			&event.ID,
			&event.ClientID,
			&kind,
			&event.Detail,
			&event.RemoteAddr,
			&event.Transport,
			&event.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		event.Kind = interfaces.EventKind(kind)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrManagerClosed
	}

	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM connections").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying database handle.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close stops accepting events, writes what is already queued and closes the
// database. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -16000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	return nil
}
