// Package protocol implements the SCP wire format: the message variants,
// the versioned frame envelope and its length-prefixed framing.
package protocol

import (
	"time"
)

// MessageType is the wire tag of a message variant.
type MessageType string

// Client to server requests.
const (
	TypeConnect        MessageType = "Connect"
	TypeJoinRoom       MessageType = "JoinRoom"
	TypeLeaveRoom      MessageType = "LeaveRoom"
	TypeSendMessage    MessageType = "SendMessage"
	TypePrivateMessage MessageType = "PrivateMessage"
	TypeListRooms      MessageType = "ListRooms"
	TypeListUsers      MessageType = "ListUsers"
	TypeDisconnect     MessageType = "Disconnect"
	TypePing           MessageType = "Ping"
)

// Server to client responses and notifications.
const (
	TypeConnectAck             MessageType = "ConnectAck"
	TypeConnectError           MessageType = "ConnectError"
	TypeJoinRoomAck            MessageType = "JoinRoomAck"
	TypeJoinRoomError          MessageType = "JoinRoomError"
	TypeUserJoined             MessageType = "UserJoined"
	TypeUserLeft               MessageType = "UserLeft"
	TypeRoomMessage            MessageType = "RoomMessage"
	TypePrivateMessageReceived MessageType = "PrivateMessageReceived"
	TypeRoomList               MessageType = "RoomList"
	TypeUserList               MessageType = "UserList"
	TypeError                  MessageType = "Error"
	TypePong                   MessageType = "Pong"
)

// IsRequest reports whether t is sent by clients to the server.
func (t MessageType) IsRequest() bool {
	switch t {
	case TypeConnect, TypeJoinRoom, TypeLeaveRoom, TypeSendMessage, TypePrivateMessage,
		TypeListRooms, TypeListUsers, TypeDisconnect, TypePing:
		return true
	default:
		return false
	}
}

// RequiresAuth reports whether the sender must hold a username.
func (t MessageType) RequiresAuth() bool {
	switch t {
	case TypeJoinRoom, TypeLeaveRoom, TypeSendMessage, TypePrivateMessage,
		TypeListRooms, TypeListUsers, TypeDisconnect:
		return true
	default:
		return false
	}
}

// RequiresRoom reports whether the sender must currently be in a room.
func (t MessageType) RequiresRoom() bool {
	return t == TypeSendMessage || t == TypeListUsers
}

// Message is one variant of the closed SCP message set.
type Message interface {
	Type() MessageType
}

// ErrorCode classifies an Error message.
type ErrorCode string

const (
	CodeUsernameAlreadyTaken ErrorCode = "UsernameAlreadyTaken"
	CodeRoomNotFound         ErrorCode = "RoomNotFound"
	CodeUserNotFound         ErrorCode = "UserNotFound"
	CodeInvalidState         ErrorCode = "InvalidState"
	CodeInvalidFormat        ErrorCode = "InvalidFormat"
	CodeMessageTooLarge      ErrorCode = "MessageTooLarge"
	CodeRateLimitExceeded    ErrorCode = "RateLimitExceeded" // reserved
	CodeInternalError        ErrorCode = "InternalError"
)

type Connect struct {
	Username string `json:"username"`
}

type JoinRoom struct {
	RoomID string `json:"room_id"`
}

type LeaveRoom struct{}

type SendMessage struct {
	Content string `json:"content"`
}

type PrivateMessage struct {
	TargetUser string `json:"target_user"`
	Content    string `json:"content"`
}

type ListRooms struct{}

type ListUsers struct{}

type Disconnect struct{}

type Ping struct{}

type ConnectAck struct {
	ClientID string `json:"client_id"`
	Message  string `json:"message"`
}

type ConnectError struct {
	Reason string `json:"reason"`
}

type JoinRoomAck struct {
	RoomID string   `json:"room_id"`
	Users  []string `json:"users"`
}

type JoinRoomError struct {
	Reason string `json:"reason"`
}

type UserJoined struct {
	Username string `json:"username"`
	RoomID   string `json:"room_id"`
}

type UserLeft struct {
	Username string `json:"username"`
	RoomID   string `json:"room_id"`
}

type RoomMessage struct {
	From      string    `json:"from"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	RoomID    string    `json:"room_id"`
}

type PrivateMessageReceived struct {
	From      string    `json:"from"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomList maps every room id to its member count.
type RoomList struct {
	Rooms map[string]int `json:"rooms"`
}

type UserList struct {
	Users  []string `json:"users"`
	RoomID string   `json:"room_id"`
}

// ErrorMessage is the "Error" variant. It is named so it is not mistaken for
// a Go error value.
type ErrorMessage struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type Pong struct{}

func (Connect) Type() MessageType                { return TypeConnect }
func (JoinRoom) Type() MessageType               { return TypeJoinRoom }
func (LeaveRoom) Type() MessageType              { return TypeLeaveRoom }
func (SendMessage) Type() MessageType            { return TypeSendMessage }
func (PrivateMessage) Type() MessageType         { return TypePrivateMessage }
func (ListRooms) Type() MessageType              { return TypeListRooms }
func (ListUsers) Type() MessageType              { return TypeListUsers }
func (Disconnect) Type() MessageType             { return TypeDisconnect }
func (Ping) Type() MessageType                   { return TypePing }
func (ConnectAck) Type() MessageType             { return TypeConnectAck }
func (ConnectError) Type() MessageType           { return TypeConnectError }
func (JoinRoomAck) Type() MessageType            { return TypeJoinRoomAck }
func (JoinRoomError) Type() MessageType          { return TypeJoinRoomError }
func (UserJoined) Type() MessageType             { return TypeUserJoined }
func (UserLeft) Type() MessageType               { return TypeUserLeft }
func (RoomMessage) Type() MessageType            { return TypeRoomMessage }
func (PrivateMessageReceived) Type() MessageType { return TypePrivateMessageReceived }
func (RoomList) Type() MessageType               { return TypeRoomList }
func (UserList) Type() MessageType               { return TypeUserList }
func (ErrorMessage) Type() MessageType           { return TypeError }
func (Pong) Type() MessageType                   { return TypePong }
