package server

import "errors"

var (
	ErrSelfMessage     = errors.New("cannot send a private message to yourself")
	ErrServerStarted   = errors.New("server already started")
	ErrServerNotActive = errors.New("server is not running")
)
