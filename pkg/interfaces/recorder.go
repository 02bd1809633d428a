// Package interfaces holds the contracts between the chat core and the
// optional connection audit store.
package interfaces

import "time"

// EventKind names a connection lifecycle event.
type EventKind string

const (
	EventConnected     EventKind = "connected"
	EventAuthenticated EventKind = "authenticated"
	EventJoined        EventKind = "joined"
	EventLeft          EventKind = "left"
	EventDisconnected  EventKind = "disconnected"
)

// Event is one lifecycle record. Detail carries the username for
// EventAuthenticated and the room id for EventJoined and EventLeft. Chat
// content is never recorded.
type Event struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"client_id"`
	Kind       EventKind `json:"kind"`
	Detail     string    `json:"detail,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Transport  string    `json:"transport,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventRecorder receives lifecycle events from connection handlers.
// Record must not block on I/O; implementations queue or drop.
type EventRecorder interface {
	Record(event Event)
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) Record(Event) {}
