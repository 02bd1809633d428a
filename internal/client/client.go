// Package client is the interactive SCP reference client: it turns typed
// commands into requests and prints what the server sends back.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"scpchat/internal/transport"
	"scpchat/pkg/protocol"
)

var errQuit = errors.New("quit")

// Client drives one connection. The reader prints server frames and updates
// State; the writer sends one request per input line.
type Client struct {
	conn  transport.Conn
	state *State

	outMu sync.Mutex
	out   io.Writer
}

func New(conn transport.Conn) *Client {
	return &Client{
		conn:  conn,
		state: NewState(),
	}
}

// State exposes the server-confirmed session view.
func (c *Client) State() *State {
	return c.state
}

// Run reads commands from in and writes everything displayed to out. It
// returns when the user quits, the input ends, the server closes the
// connection, or ctx is cancelled. The connection is closed on return.
func (c *Client) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	c.out = out
	defer c.conn.Close()

	lines := make(chan string)
	go scanLines(in, lines)

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { c.conn.Close() })
	defer stop()

	g.Go(func() error {
		return c.readLoop(gctx)
	})
	g.Go(func() error {
		return c.writeLoop(gctx, lines)
	})

	err := g.Wait()
	c.state.Closed()
	if errors.Is(err, errQuit) || errors.Is(err, io.EOF) {
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// scanLines feeds input lines to the writer. It closes lines at end of input.
// A blocked read on in is left behind when Run returns.
func scanLines(in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	for {
		f, err := c.conn.ReadFrame()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, transport.ErrStreamUnaligned):
				c.printf("[CLIENT ERROR] Received a message that is too large and could not be skipped: %v", err)
				return fmt.Errorf("read from server: %w (%v)", transport.ErrStreamUnaligned, err)
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				c.println("Server closed the connection.")
				return io.EOF
			case errors.Is(err, protocol.ErrMessageTooLarge):
				c.printf("[CLIENT ERROR] Received a message that is too large: %v", err)
				continue
			case errors.Is(err, protocol.ErrInvalidFormat), errors.Is(err, protocol.ErrUnsupportedVersion):
				c.printf("[CLIENT ERROR] Could not decode server message: %v", err)
				continue
			default:
				return fmt.Errorf("read from server: %w", err)
			}
		}

		c.state.Apply(f.Message)
		c.println(Render(f.Message))
	}
}

func (c *Client) writeLoop(ctx context.Context, lines <-chan string) error {
	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-lines:
		}

		if !ok {
			// End of input behaves like /quit.
			if err := c.send(protocol.Disconnect{}); err != nil {
				log.Printf("Failed to send disconnect: %v", err)
			}
			return errQuit
		}

		cmd, err := ParseCommand(line)
		if err != nil {
			if !errors.Is(err, ErrEmptyCommand) {
				c.println(err.Error())
			}
			continue
		}
		if cmd.Help {
			c.println(HelpText)
			continue
		}

		if err := c.send(cmd.Message); err != nil {
			return err
		}
		if cmd.Quit {
			c.println("Disconnecting...")
			return errQuit
		}
	}
}

func (c *Client) send(msg protocol.Message) error {
	f := protocol.NewFrame(msg)
	if id := c.state.Snapshot().ID; id != "" {
		f = f.WithSession(id)
	}
	if err := f.Validate(); err != nil {
		c.printf("[CLIENT ERROR] %v", err)
		return nil
	}

	c.state.Sent(msg)
	if err := c.conn.WriteFrame(f); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type(), err)
	}
	return nil
}

func (c *Client) println(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, s)
}

func (c *Client) printf(format string, args ...any) {
	c.println(fmt.Sprintf(format, args...))
}
