package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"scpchat/pkg/protocol"
)

// TCPConn frames SCP over a stream socket with a 4-byte length prefix.
type TCPConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	writeTimeout time.Duration
	drainTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

// TCPOptions tunes a TCPConn. Zero values disable the corresponding deadline.
type TCPOptions struct {
	WriteTimeout time.Duration
	DrainTimeout time.Duration
}

func NewTCPConn(conn net.Conn, opts TCPOptions) *TCPConn {
	return &TCPConn{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writeTimeout: opts.WriteTimeout,
		drainTimeout: opts.DrainTimeout,
	}
}

// DialTCP connects to an SCP server.
func DialTCP(ctx context.Context, addr string, opts TCPOptions) (*TCPConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewTCPConn(conn, opts), nil
}

// ReadFrame reads the next frame. When the length prefix is over the limit it
// tries to skip the announced body within the drain timeout. The error always
// matches the *SizeError; when the skip failed it also matches
// ErrStreamUnaligned and the connection must not be read again.
func (c *TCPConn) ReadFrame() (protocol.Frame, error) {
	f, err := protocol.ReadFrame(c.reader)
	if err == nil {
		return f, nil
	}

	var sizeErr *protocol.SizeError
	if errors.As(err, &sizeErr) {
		if drainErr := c.drain(sizeErr); drainErr != nil {
			return protocol.Frame{}, fmt.Errorf("%w: %w: %w", sizeErr, ErrStreamUnaligned, drainErr)
		}
	}
	return f, err
}

func (c *TCPConn) drain(sizeErr *protocol.SizeError) error {
	if c.drainTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.drainTimeout)); err != nil {
			return err
		}
		defer c.conn.SetReadDeadline(time.Time{})
	}
	return protocol.Discard(c.reader, sizeErr)
}

func (c *TCPConn) WriteFrame(f protocol.Frame) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	return protocol.WriteFrame(c.conn, f)
}

func (c *TCPConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *TCPConn) Transport() string {
	return "tcp"
}

func (c *TCPConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
