// Package directory is the single source of truth for which clients are
// connected, which usernames they hold, and which room each one is in.
package directory

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"scpchat/internal/queue"
	"scpchat/internal/room"
	"scpchat/internal/session"
	"scpchat/pkg/protocol"
)

// Directory owns every session, room, username and outbound queue.
//
// All mutations take the write lock for the whole operation, so no other
// writer observes a half-applied join or removal. Notifications produced by a
// mutation are enqueued while the lock is still held, which keeps each
// client's view ordered: a joiner sees its JoinRoomAck before any message
// sent to the room after it joined. Enqueueing never blocks, so the lock is
// never held across network I/O.
type Directory struct {
	mu        sync.RWMutex
	sessions  map[session.ClientID]*session.Session
	queues    map[session.ClientID]*queue.Outbound
	usernames map[string]session.ClientID
	rooms     map[string]*room.Room
	roomOrder []string
}

// New creates a directory holding the given rooms. Duplicate ids keep the
// first definition.
func New(defs []room.Definition) *Directory {
	d := &Directory{
		sessions:  make(map[session.ClientID]*session.Session),
		queues:    make(map[session.ClientID]*queue.Outbound),
		usernames: make(map[string]session.ClientID),
		rooms:     make(map[string]*room.Room),
	}
	for _, def := range defs {
		if _, exists := d.rooms[def.ID]; exists || def.ID == "" {
			continue
		}
		d.rooms[def.ID] = room.New(def)
		d.roomOrder = append(d.roomOrder, def.ID)
	}
	return d
}

// Register creates a Connected session for id and stores its queue.
func (d *Directory) Register(id session.ClientID, q *queue.Outbound) error {
	if q == nil {
		return ErrNilQueue
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.sessions[id]; exists {
		return fmt.Errorf("%w: %s", ErrClientExists, id)
	}
	d.sessions[id] = session.New(id)
	d.queues[id] = q
	return nil
}

// Authenticate claims username for id and enqueues the ConnectAck.
func (d *Directory) Authenticate(id session.ClientID, username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sess, ok := d.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	if sess.State != session.StateConnected {
		return fmt.Errorf("%w: already connected as %s", session.ErrInvalidState, sess.Username)
	}
	if _, taken := d.usernames[username]; taken {
		return fmt.Errorf("%w: %s", ErrUsernameTaken, username)
	}
	if err := sess.Authenticate(username); err != nil {
		return err
	}
	d.usernames[username] = id

	d.deliverLocked(id, protocol.ConnectAck{
		ClientID: id.String(),
		Message:  fmt.Sprintf("Welcome, %s!", username),
	})
	return nil
}

// JoinRoom moves id into roomID and returns the room's members.
//
// A client already in another room leaves it first, and that room's other
// members get UserLeft. The joiner then gets JoinRoomAck and the new room's
// other members get UserJoined. Joining the room the client is already in
// only repeats the ack.
func (d *Directory) JoinRoom(id session.ClientID, roomID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	target, ok := d.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	sess, ok := d.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	if !sess.IsAuthenticated() {
		return nil, fmt.Errorf("%w: join requires authentication", session.ErrInvalidState)
	}

	if sess.CurrentRoom == roomID {
		users := target.Usernames()
		d.deliverLocked(id, protocol.JoinRoomAck{RoomID: roomID, Users: users})
		return users, nil
	}

	if sess.InRoom() {
		if previous, ok := d.rooms[sess.CurrentRoom]; ok {
			previous.Remove(id)
			d.broadcastLocked(previous, protocol.UserLeft{Username: sess.Username, RoomID: previous.ID}, id)
		}
	}

	if err := sess.EnterRoom(roomID); err != nil {
		return nil, err
	}
	target.Add(id, sess.Username)

	users := target.Usernames()
	d.deliverLocked(id, protocol.JoinRoomAck{RoomID: roomID, Users: users})
	d.broadcastLocked(target, protocol.UserJoined{Username: sess.Username, RoomID: roomID}, id)
	return users, nil
}

// LeaveRoom takes id out of its current room and returns that room's id.
// The room's remaining members and the leaver itself receive UserLeft.
func (d *Directory) LeaveRoom(id session.ClientID) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sess, ok := d.sessions[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	roomID, err := sess.LeaveRoom()
	if err != nil {
		return "", err
	}

	notice := protocol.UserLeft{Username: sess.Username, RoomID: roomID}
	if r, ok := d.rooms[roomID]; ok {
		r.Remove(id)
		d.broadcastLocked(r, notice, id)
	}
	d.deliverLocked(id, notice)
	return roomID, nil
}

// BroadcastToRoom enqueues msg for every member of roomID except exclude.
// An unknown room is a no-op. Pass an empty exclude to reach everyone.
func (d *Directory) BroadcastToRoom(roomID string, msg protocol.Message, exclude session.ClientID) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if r, ok := d.rooms[roomID]; ok {
		d.broadcastLocked(r, msg, exclude)
	}
}

// SendRoomMessage relays content from id to every member of id's room,
// the sender included.
func (d *Directory) SendRoomMessage(id session.ClientID, content string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sess, ok := d.sessions[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	if !sess.InRoom() {
		return "", fmt.Errorf("%w: not in a room", session.ErrInvalidState)
	}
	r, ok := d.rooms[sess.CurrentRoom]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrRoomNotFound, sess.CurrentRoom)
	}

	d.broadcastLocked(r, protocol.RoomMessage{
		From:      sess.Username,
		Content:   content,
		Timestamp: time.Now().UTC(),
		RoomID:    r.ID,
	}, "")
	return r.ID, nil
}

// SendPrivate delivers content to the client holding toUsername. Callers
// reject self-addressed messages before calling.
func (d *Directory) SendPrivate(fromUsername, toUsername, content string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	toID, ok := d.usernames[toUsername]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, toUsername)
	}
	q, ok := d.queues[toID]
	if !ok {
		return fmt.Errorf("%w: %s has no live connection", ErrUserNotFound, toUsername)
	}
	err := q.Push(protocol.PrivateMessageReceived{
		From:      fromUsername,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUserNotFound, toUsername, err)
	}
	return nil
}

// Remove deletes id entirely: its username is released, its room membership
// ends with a UserLeft to the remaining members, and its queue is closed so
// the writer can drain and stop. Removing an unknown id is a no-op.
func (d *Directory) Remove(id session.ClientID) (session.Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sess, ok := d.sessions[id]
	if !ok {
		return session.Session{}, false
	}
	removed := *sess

	if sess.Username != "" && d.usernames[sess.Username] == id {
		delete(d.usernames, sess.Username)
	}
	if sess.InRoom() {
		if r, ok := d.rooms[sess.CurrentRoom]; ok {
			r.Remove(id)
			d.broadcastLocked(r, protocol.UserLeft{Username: sess.Username, RoomID: r.ID}, id)
		}
	}

	sess.Close()
	delete(d.sessions, id)
	if q, ok := d.queues[id]; ok {
		q.Close()
		delete(d.queues, id)
	}
	return removed, true
}

// Session returns a copy of id's session.
func (d *Directory) Session(id session.ClientID) (session.Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sess, ok := d.sessions[id]
	if !ok {
		return session.Session{}, false
	}
	return *sess, true
}

// ListRooms maps every room id to its member count.
func (d *Directory) ListRooms() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	counts := make(map[string]int, len(d.rooms))
	for id, r := range d.rooms {
		counts[id] = r.Len()
	}
	return counts
}

// RoomMembers returns the sorted usernames in roomID.
func (d *Directory) RoomMembers(roomID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return r.Usernames(), nil
}

// caller holds d.mu (read or write)
func (d *Directory) broadcastLocked(r *room.Room, msg protocol.Message, exclude session.ClientID) {
	for _, member := range r.Members() {
		if member == exclude {
			continue
		}
		q, ok := d.queues[member]
		if !ok {
			continue
		}
		if err := q.Push(msg); err != nil {
			log.Printf("Dropping %s for client %s in room %s: %v", msg.Type(), member, r.ID, err)
		}
	}
}

// caller holds d.mu (read or write)
func (d *Directory) deliverLocked(id session.ClientID, msg protocol.Message) {
	q, ok := d.queues[id]
	if !ok {
		return
	}
	if err := q.Push(msg); err != nil {
		log.Printf("Dropping %s for client %s: %v", msg.Type(), id, err)
	}
}

// RoomInfo is a point-in-time view of one room.
type RoomInfo struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Members     []string  `json:"members"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserInfo is a point-in-time view of one authenticated client.
type UserInfo struct {
	ClientID    string    `json:"client_id"`
	Username    string    `json:"username"`
	Room        string    `json:"room,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Rooms returns every room in definition order.
func (d *Directory) Rooms() []RoomInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	infos := make([]RoomInfo, 0, len(d.roomOrder))
	for _, id := range d.roomOrder {
		infos = append(infos, roomInfo(d.rooms[id]))
	}
	return infos
}

func (d *Directory) Room(id string) (RoomInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[id]
	if !ok {
		return RoomInfo{}, false
	}
	return roomInfo(r), true
}

// Users returns authenticated clients sorted by username.
func (d *Directory) Users() []UserInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	users := make([]UserInfo, 0, len(d.usernames))
	for username, id := range d.usernames {
		sess, ok := d.sessions[id]
		if !ok {
			continue
		}
		users = append(users, UserInfo{
			ClientID:    id.String(),
			Username:    username,
			Room:        sess.CurrentRoom,
			ConnectedAt: sess.ConnectedAt,
		})
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users
}

// Stats returns counters for health reporting.
func (d *Directory) Stats() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	inRoom := 0
	for _, sess := range d.sessions {
		if sess.InRoom() {
			inRoom++
		}
	}
	return map[string]int{
		"total_connections": len(d.sessions),
		"authenticated":     len(d.usernames),
		"in_room":           inRoom,
		"rooms":             len(d.rooms),
	}
}

func roomInfo(r *room.Room) RoomInfo {
	return RoomInfo{
		ID:          r.ID,
		DisplayName: r.DisplayName,
		Members:     r.Usernames(),
		CreatedAt:   r.CreatedAt,
	}
}
