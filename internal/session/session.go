// Package session holds the per-connection state machine:
// Connected → Authenticated → InRoom, and Closed from any state.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"scpchat/pkg/protocol"
)

// ClientID identifies one connection for the lifetime of the process.
type ClientID string

// NewClientID returns a fresh random identifier. Identifiers are never reused.
func NewClientID() ClientID {
	return ClientID(uuid.NewString())
}

func (id ClientID) String() string {
	return string(id)
}

type State int

const (
	StateConnected State = iota
	StateAuthenticated
	StateInRoom
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateAuthenticated:
		return "Authenticated"
	case StateInRoom:
		return "InRoom"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is the server-side record of one connection.
//
// Username is set iff State is Authenticated or InRoom; CurrentRoom is set iff
// State is InRoom. Sessions are owned by the directory and only mutated under
// its write lock. The outbound sequence counter lives on the client's queue,
// which stamps frames as they are enqueued.
type Session struct {
	ID          ClientID
	Username    string
	CurrentRoom string
	State       State
	ConnectedAt time.Time
}

func New(id ClientID) *Session {
	return &Session{
		ID:          id,
		State:       StateConnected,
		ConnectedAt: time.Now(),
	}
}

// Authenticate moves a Connected session to Authenticated.
func (s *Session) Authenticate(username string) error {
	if username == "" {
		return ErrEmptyUsername
	}
	if s.State != StateConnected {
		return fmt.Errorf("%w: already authenticated as %s", ErrInvalidState, s.Username)
	}
	s.Username = username
	s.State = StateAuthenticated
	return nil
}

// EnterRoom moves an authenticated session into roomID. A session already in
// a room moves directly; the caller is responsible for leaving the old room's
// membership first.
func (s *Session) EnterRoom(roomID string) error {
	if roomID == "" {
		return ErrEmptyRoomID
	}
	if s.State != StateAuthenticated && s.State != StateInRoom {
		return fmt.Errorf("%w: cannot join a room while %s", ErrInvalidState, s.State)
	}
	s.CurrentRoom = roomID
	s.State = StateInRoom
	return nil
}

// LeaveRoom returns an InRoom session to Authenticated and reports the room it left.
func (s *Session) LeaveRoom() (string, error) {
	if s.State != StateInRoom {
		return "", fmt.Errorf("%w: not in a room", ErrInvalidState)
	}
	roomID := s.CurrentRoom
	s.CurrentRoom = ""
	s.State = StateAuthenticated
	return roomID, nil
}

// Close is terminal and valid from any state.
func (s *Session) Close() {
	s.Username = ""
	s.CurrentRoom = ""
	s.State = StateClosed
}

func (s *Session) IsAuthenticated() bool {
	return s.State == StateAuthenticated || s.State == StateInRoom
}

func (s *Session) InRoom() bool {
	return s.State == StateInRoom
}

// CheckPreconditions rejects a request the session's state does not allow.
// Connect and Ping are never gated here.
func (s *Session) CheckPreconditions(t protocol.MessageType) error {
	if s.State == StateClosed {
		return fmt.Errorf("%w: session closed", ErrInvalidState)
	}
	if t.RequiresAuth() && !s.IsAuthenticated() {
		return fmt.Errorf("%w: %s requires authentication", ErrInvalidState, t)
	}
	if t.RequiresRoom() && !s.InRoom() {
		return fmt.Errorf("%w: %s requires joining a room first", ErrInvalidState, t)
	}
	return nil
}
