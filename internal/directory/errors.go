package directory

import "errors"

// Registration errors
var (
	ErrNilQueue       = errors.New("outbound queue cannot be nil")
	ErrClientExists   = errors.New("client already registered")
	ErrClientNotFound = errors.New("client not found")
)

// Lookup errors surfaced to clients
var (
	ErrUsernameTaken = errors.New("username already taken")
	ErrRoomNotFound  = errors.New("room not found")
	ErrUserNotFound  = errors.New("user not found")
)
