package client

import (
	"sync"

	"scpchat/internal/session"
	"scpchat/pkg/protocol"
)

// State mirrors the server's view of this client. It only moves on server
// acknowledgements and notifications, never on what the user asked for.
type State struct {
	mu              sync.RWMutex
	id              string
	username        string
	currentRoom     string
	sessionState    session.State
	pendingUsername string
}

func NewState() *State {
	return &State{sessionState: session.StateConnected}
}

// Snapshot is a consistent copy of State.
type Snapshot struct {
	ID           string
	Username     string
	CurrentRoom  string
	SessionState session.State
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:           s.id,
		Username:     s.username,
		CurrentRoom:  s.currentRoom,
		SessionState: s.sessionState,
	}
}

// Sent notes an outgoing request. A Connect's username is held as pending
// until the server acknowledges it.
func (s *State) Sent(msg protocol.Message) {
	if m, ok := msg.(protocol.Connect); ok {
		s.mu.Lock()
		s.pendingUsername = m.Username
		s.mu.Unlock()
	}
}

// Apply updates the mirror from one server message.
func (s *State) Apply(msg protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := msg.(type) {
	case protocol.ConnectAck:
		s.id = m.ClientID
		if s.pendingUsername != "" {
			s.username = s.pendingUsername
			s.pendingUsername = ""
		}
		s.sessionState = session.StateAuthenticated
	case protocol.ConnectError:
		s.pendingUsername = ""
	case protocol.JoinRoomAck:
		s.currentRoom = m.RoomID
		s.sessionState = session.StateInRoom
	case protocol.UserLeft:
		if m.Username == s.username && m.RoomID == s.currentRoom {
			s.currentRoom = ""
			s.sessionState = session.StateAuthenticated
		}
	}
}

// Closed marks the session over once the connection is gone.
func (s *State) Closed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentRoom = ""
	s.sessionState = session.StateClosed
}
