package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"scpchat/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// the admin listener is loopback by default; browsers may connect from any page
		return true
	},
}

// WebSocketConn carries one encoded frame payload per binary WebSocket
// message. The message boundary replaces the length prefix.
type WebSocketConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

func NewWebSocketConn(ws *websocket.Conn, writeTimeout time.Duration) *WebSocketConn {
	ws.SetReadLimit(protocol.MaxMessageSize)
	return &WebSocketConn{ws: ws, writeTimeout: writeTimeout}
}

// Upgrade switches an HTTP request to a WebSocket carrying SCP frames.
func Upgrade(w http.ResponseWriter, r *http.Request, writeTimeout time.Duration) (*WebSocketConn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return NewWebSocketConn(ws, writeTimeout), nil
}

// DialWebSocket connects to an SCP server's WebSocket endpoint, e.g.
// ws://127.0.0.1:8080/ws.
func DialWebSocket(ctx context.Context, url string, writeTimeout time.Duration) (*WebSocketConn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWebSocketConn(ws, writeTimeout), nil
}

// ReadFrame reads one WebSocket message and decodes it. A peer close is
// reported as io.EOF. A message over the limit matches both the
// *protocol.SizeError and ErrStreamUnaligned, since gorilla has already failed
// the connection.
func (c *WebSocketConn) ReadFrame() (protocol.Frame, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if errors.Is(err, websocket.ErrReadLimit) {
			sizeErr := &protocol.SizeError{Limit: protocol.MaxMessageSize}
			return protocol.Frame{}, fmt.Errorf("%w: %w", sizeErr, ErrStreamUnaligned)
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return protocol.Frame{}, io.EOF
		}
		return protocol.Frame{}, err
	}
	// gorilla handles control frames itself; data is a text or binary message.
	return protocol.Decode(data)
}

func (c *WebSocketConn) WriteFrame(f protocol.Frame) error {
	payload, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *WebSocketConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

func (c *WebSocketConn) Transport() string {
	return "websocket"
}

func (c *WebSocketConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
