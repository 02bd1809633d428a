package transport

import "errors"

var (
	ErrConnectionClosed = errors.New("connection closed")
	// ErrStreamUnaligned means an oversized frame body could not be skipped,
	// so no further frame can be read from the connection.
	ErrStreamUnaligned  = errors.New("stream unaligned")
)
