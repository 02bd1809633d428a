// Package room models chat rooms and their membership. Rooms carry no
// locking of their own; the directory guards every access.
package room

import (
	"sort"
	"time"

	"scpchat/internal/session"
)

// Definition describes a room created at startup.
type Definition struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// DefaultRooms returns the rooms every server starts with.
func DefaultRooms() []Definition {
	return []Definition{
		{ID: "general", DisplayName: "General"},
		{ID: "tech", DisplayName: "Tech Talk"},
		{ID: "random", DisplayName: "Random"},
	}
}

type Room struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
	members     map[session.ClientID]string
}

func New(def Definition) *Room {
	name := def.DisplayName
	if name == "" {
		name = def.ID
	}
	return &Room{
		ID:          def.ID,
		DisplayName: name,
		CreatedAt:   time.Now(),
		members:     make(map[session.ClientID]string),
	}
}

// Add records id as a member under username. Re-adding replaces the username.
func (r *Room) Add(id session.ClientID, username string) {
	r.members[id] = username
}

// Remove drops id and reports the username it was holding.
func (r *Room) Remove(id session.ClientID) (string, bool) {
	username, ok := r.members[id]
	if ok {
		delete(r.members, id)
	}
	return username, ok
}

func (r *Room) Has(id session.ClientID) bool {
	_, ok := r.members[id]
	return ok
}

func (r *Room) Len() int {
	return len(r.members)
}

// Usernames returns member usernames sorted alphabetically.
func (r *Room) Usernames() []string {
	names := make([]string, 0, len(r.members))
	for _, username := range r.members {
		names = append(names, username)
	}
	sort.Strings(names)
	return names
}

// Members returns the client ids currently in the room, in no particular order.
func (r *Room) Members() []session.ClientID {
	ids := make([]session.ClientID, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}
