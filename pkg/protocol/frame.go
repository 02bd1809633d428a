package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// ProtocolVersion is the only version this implementation speaks.
	ProtocolVersion uint8 = 1

	// MaxMessageSize bounds the encoded frame payload, excluding the length prefix.
	MaxMessageSize = 65536

	// HeaderSize is the width of the big-endian length prefix.
	HeaderSize = 4
)

// Frame is the unit exchanged on the wire.
type Frame struct {
	Version   uint8
	SessionID *string
	Sequence  uint64
	Message   Message
	Timestamp time.Time
}

// NewFrame wraps msg in a current-version frame stamped with the current time.
// Session id and sequence are left for the sender to fill in.
func NewFrame(msg Message) Frame {
	return Frame{
		Version:   ProtocolVersion,
		Message:   msg,
		Timestamp: time.Now().UTC(),
	}
}

// WithSession returns a copy of f carrying the given session id.
func (f Frame) WithSession(id string) Frame {
	f.SessionID = &id
	return f
}

// Validate rejects frames of another protocol version and frames whose
// encoded payload exceeds MaxMessageSize.
func (f Frame) Validate() error {
	_, err := Encode(f)
	return err
}

type wireFrame struct {
	Version   uint8           `json:"version"`
	SessionID *string         `json:"session_id"`
	Sequence  uint64          `json:"sequence"`
	Message   json.RawMessage `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

type envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// unit variants carry no data object on the wire
var unitTypes = map[MessageType]bool{
	TypeLeaveRoom:  true,
	TypeListRooms:  true,
	TypeListUsers:  true,
	TypeDisconnect: true,
	TypePing:       true,
	TypePong:       true,
}

var decoders = map[MessageType]func(json.RawMessage) (Message, error){
	TypeConnect:                decodeData[Connect],
	TypeJoinRoom:               decodeData[JoinRoom],
	TypeLeaveRoom:              decodeData[LeaveRoom],
	TypeSendMessage:            decodeData[SendMessage],
	TypePrivateMessage:         decodeData[PrivateMessage],
	TypeListRooms:              decodeData[ListRooms],
	TypeListUsers:              decodeData[ListUsers],
	TypeDisconnect:             decodeData[Disconnect],
	TypePing:                   decodeData[Ping],
	TypeConnectAck:             decodeData[ConnectAck],
	TypeConnectError:           decodeData[ConnectError],
	TypeJoinRoomAck:            decodeData[JoinRoomAck],
	TypeJoinRoomError:          decodeData[JoinRoomError],
	TypeUserJoined:             decodeData[UserJoined],
	TypeUserLeft:               decodeData[UserLeft],
	TypeRoomMessage:            decodeData[RoomMessage],
	TypePrivateMessageReceived: decodeData[PrivateMessageReceived],
	TypeRoomList:               decodeData[RoomList],
	TypeUserList:               decodeData[UserList],
	TypeError:                  decodeData[ErrorMessage],
	TypePong:                   decodeData[Pong],
}

func decodeData[T Message](data json.RawMessage) (Message, error) {
	var m T
	if len(data) == 0 || string(data) == "null" {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// MarshalMessage encodes msg as {"type": ..., "data": {...}}.
func MarshalMessage(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidFormat)
	}
	env := envelope{Type: msg.Type()}
	if !unitTypes[env.Type] {
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", env.Type, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// UnmarshalMessage is the inverse of MarshalMessage.
func UnmarshalMessage(b []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	decode, ok := decoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
	msg, err := decode(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s data: %v", ErrInvalidFormat, env.Type, err)
	}
	return msg, nil
}

func (f Frame) MarshalJSON() ([]byte, error) {
	msg, err := MarshalMessage(f.Message)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireFrame{
		Version:   f.Version,
		SessionID: f.SessionID,
		Sequence:  f.Sequence,
		Message:   msg,
		Timestamp: f.Timestamp.UTC(),
	})
}

func (f *Frame) UnmarshalJSON(b []byte) error {
	var w wireFrame
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if len(w.Message) == 0 || string(w.Message) == "null" {
		return fmt.Errorf("%w: missing message", ErrInvalidFormat)
	}
	msg, err := UnmarshalMessage(w.Message)
	if err != nil {
		return err
	}
	*f = Frame{
		Version:   w.Version,
		SessionID: w.SessionID,
		Sequence:  w.Sequence,
		Message:   msg,
		Timestamp: w.Timestamp,
	}
	return nil
}

// Encode serializes f into a wire payload, enforcing the version and size
// bounds before anything reaches a socket.
func Encode(f Frame) ([]byte, error) {
	if f.Version != ProtocolVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, f.Version, ProtocolVersion)
	}
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxMessageSize {
		return nil, &SizeError{Size: len(payload), Limit: MaxMessageSize}
	}
	return payload, nil
}

// Decode parses a wire payload. Payloads of another protocol version decode
// but are reported with ErrUnsupportedVersion.
func Decode(payload []byte) (Frame, error) {
	if len(payload) > MaxMessageSize {
		return Frame{}, &SizeError{Size: len(payload), Limit: MaxMessageSize}
	}
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		if errors.Is(err, ErrInvalidFormat) || errors.Is(err, ErrUnknownMessageType) {
			return Frame{}, err
		}
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if f.Version != ProtocolVersion {
		return f, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, f.Version, ProtocolVersion)
	}
	return f, nil
}
