package client

import (
	"fmt"
	"sort"
	"strings"

	"scpchat/pkg/protocol"
)

const clockFormat = "15:04:05"

// Render formats a server message for the terminal.
func Render(msg protocol.Message) string {
	switch m := msg.(type) {
	case protocol.ConnectAck:
		return fmt.Sprintf("[SERVER] %s\nYour Client ID: %s", m.Message, m.ClientID)
	case protocol.ConnectError:
		return fmt.Sprintf("[SERVER ERROR] Connection failed: %s", m.Reason)
	case protocol.JoinRoomAck:
		return fmt.Sprintf("[SERVER] Joined room: #%s\nUsers in #%s: %s", m.RoomID, m.RoomID, strings.Join(m.Users, ", "))
	case protocol.JoinRoomError:
		return fmt.Sprintf("[SERVER ERROR] Failed to join room: %s", m.Reason)
	case protocol.UserJoined:
		return fmt.Sprintf("[ROOM #%s] %s has joined.", m.RoomID, m.Username)
	case protocol.UserLeft:
		return fmt.Sprintf("[ROOM #%s] %s has left.", m.RoomID, m.Username)
	case protocol.RoomMessage:
		return fmt.Sprintf("[#%s] <%s> %s: %s", m.RoomID, m.Timestamp.Local().Format(clockFormat), m.From, m.Content)
	case protocol.PrivateMessageReceived:
		return fmt.Sprintf("[PRIVATE from %s] <%s>: %s", m.From, m.Timestamp.Local().Format(clockFormat), m.Content)
	case protocol.RoomList:
		return renderRoomList(m)
	case protocol.UserList:
		return renderUserList(m)
	case protocol.ErrorMessage:
		return fmt.Sprintf("[SERVER ERROR] Code: %s, Message: %s", m.Code, m.Message)
	case protocol.Pong:
		return "[SERVER] Pong!"
	default:
		return fmt.Sprintf("[SERVER] Received unexpected message type: %s", msg.Type())
	}
}

func renderRoomList(m protocol.RoomList) string {
	var b strings.Builder
	b.WriteString("[SERVER] Available Rooms:")
	if len(m.Rooms) == 0 {
		b.WriteString("\n  No rooms available.")
		return b.String()
	}

	ids := make([]string, 0, len(m.Rooms))
	for id := range m.Rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "\n  - #%s (%d users)", id, m.Rooms[id])
	}
	return b.String()
}

func renderUserList(m protocol.UserList) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[SERVER] Users in #%s:", m.RoomID)
	if len(m.Users) == 0 {
		b.WriteString("\n  No users in this room.")
		return b.String()
	}
	for _, u := range m.Users {
		fmt.Fprintf(&b, "\n  - %s", u)
	}
	return b.String()
}
