package client

import "errors"

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrEmptyCommand   = errors.New("empty command")
)

// UsageError reports a known command with missing arguments.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string {
	return "Usage: " + e.Usage
}
