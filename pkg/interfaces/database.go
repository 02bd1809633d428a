package interfaces

import "context"

// AuditStore persists lifecycle events and serves them back for inspection.
type AuditStore interface {
	EventRecorder

	// RecentEvents returns at most limit events, newest first.
	RecentEvents(ctx context.Context, limit int) ([]Event, error)

	// Flush waits until every event recorded so far has been written.
	Flush(ctx context.Context) error

	HealthCheck(ctx context.Context) error
	Close() error
}
