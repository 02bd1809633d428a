package session

import "errors"

var (
	// ErrInvalidState is returned for any transition or precondition the
	// current state does not allow.
	ErrInvalidState  = errors.New("invalid session state")
	ErrEmptyUsername = errors.New("username cannot be empty")
	ErrEmptyRoomID   = errors.New("room id cannot be empty")
)
