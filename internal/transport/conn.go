// Package transport carries SCP frames over a byte stream (TCP) or a
// message-oriented WebSocket, behind one Conn interface.
package transport

import (
	"scpchat/pkg/protocol"
)

// Conn is a framed, bidirectional connection.
//
// ReadFrame is called from a single reader goroutine and WriteFrame from a
// single writer goroutine; the two may run concurrently. Close may be called
// from anywhere, any number of times. A peer that goes away cleanly surfaces
// as io.EOF from ReadFrame.
type Conn interface {
	ReadFrame() (protocol.Frame, error)
	WriteFrame(f protocol.Frame) error
	RemoteAddr() string
	// Transport names the carrier ("tcp" or "websocket").
	Transport() string
	Close() error
}
