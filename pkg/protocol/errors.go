package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidFormat      = errors.New("invalid frame format")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrMessageTooLarge    = errors.New("message too large")
	ErrInvalidUsername    = errors.New("username must be 1-32 characters, letters, digits, underscore or hyphen")
	ErrEmptyContent       = errors.New("message content cannot be empty")
)

// SizeError reports a frame over the size limit. It matches ErrMessageTooLarge.
type SizeError struct {
	Size  int
	Limit int
}

func (e *SizeError) Error() string {
	if e.Size <= 0 {
		return fmt.Sprintf("frame exceeds %d byte limit", e.Limit)
	}
	return fmt.Sprintf("frame of %d bytes exceeds %d byte limit", e.Size, e.Limit)
}

func (e *SizeError) Is(target error) bool {
	return target == ErrMessageTooLarge
}
