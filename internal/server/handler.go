// Package server runs SCP connections: one reader and one writer per client,
// both bound to the shared directory.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"scpchat/internal/directory"
	"scpchat/internal/queue"
	"scpchat/internal/session"
	"scpchat/internal/transport"
	"scpchat/pkg/interfaces"
	"scpchat/pkg/protocol"
)

// Handler serves individual connections against a Directory.
type Handler struct {
	dir      *directory.Directory
	recorder interfaces.EventRecorder
}

// NewHandler builds a handler. A nil recorder disables auditing.
func NewHandler(dir *directory.Directory, recorder interfaces.EventRecorder) *Handler {
	if recorder == nil {
		recorder = interfaces.NopRecorder{}
	}
	return &Handler{
		dir:      dir,
		recorder: recorder,
	}
}

// connection is the per-client state shared by the reader and writer.
type connection struct {
	h    *Handler
	id   session.ClientID
	conn transport.Conn
	out  *queue.Outbound
}

// ServeConn registers conn, runs its reader and writer until either stops,
// then removes the client from the directory and closes conn. It blocks for
// the lifetime of the connection.
func (h *Handler) ServeConn(ctx context.Context, conn transport.Conn) error {
	id := session.NewClientID()
	out := queue.New(id.String())
	if err := h.dir.Register(id, out); err != nil {
		_ = conn.Close()
		return fmt.Errorf("register client: %w", err)
	}

	c := &connection{h: h, id: id, conn: conn, out: out}
	log.Printf("Client %s connected from %s over %s", id, conn.RemoteAddr(), conn.Transport())
	c.record(interfaces.EventConnected, "")

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { _ = conn.Close() })
	defer stop()

	g.Go(func() error {
		return c.writeLoop(gctx)
	})
	g.Go(func() error {
		err := c.readLoop()
		// Closing the queue lets the writer flush what is pending and return.
		c.cleanup()
		return err
	})

	err := g.Wait()
	_ = conn.Close()
	log.Printf("Client %s disconnected", id)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (c *connection) cleanup() {
	sess, ok := c.h.dir.Remove(c.id)
	if ok && sess.InRoom() {
		c.record(interfaces.EventLeft, sess.CurrentRoom)
	}
	c.record(interfaces.EventDisconnected, sess.Username)
}

func (c *connection) writeLoop(ctx context.Context) error {
	for {
		f, err := c.out.Pop(ctx)
		if errors.Is(err, queue.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := c.conn.WriteFrame(f); err != nil {
			return fmt.Errorf("write to client %s: %w", c.id, err)
		}
	}
}

// readLoop returns nil for every orderly end of the connection, including
// protocol violations that were answered with an Error frame.
func (c *connection) readLoop() error {
	for {
		f, err := c.conn.ReadFrame()
		if err != nil {
			return c.readFailed(err)
		}
		if !c.handle(f.Message) {
			return nil
		}
	}
}

func (c *connection) readFailed(err error) error {
	switch {
	// Checked first: a failed drain after an oversized prefix can also wrap io.EOF.
	case errors.Is(err, protocol.ErrMessageTooLarge):
		log.Printf("Client %s sent an oversized frame: %v", c.id, err)
		message := err.Error()
		var sizeErr *protocol.SizeError
		if errors.As(err, &sizeErr) {
			message = sizeErr.Error()
		}
		c.sendError(protocol.CodeMessageTooLarge, message)
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, transport.ErrConnectionClosed):
		return nil
	case errors.Is(err, protocol.ErrInvalidFormat),
		errors.Is(err, protocol.ErrUnsupportedVersion),
		errors.Is(err, protocol.ErrUnknownMessageType):
		log.Printf("Client %s sent an invalid frame: %v", c.id, err)
		c.sendError(protocol.CodeInvalidFormat, err.Error())
		return nil
	default:
		return fmt.Errorf("read from client %s: %w", c.id, err)
	}
}

// handle dispatches one request. It returns false when the connection should
// end.
func (c *connection) handle(msg protocol.Message) bool {
	t := msg.Type()
	if !t.IsRequest() {
		c.sendError(protocol.CodeInvalidFormat, fmt.Sprintf("unexpected message type from client: %s", t))
		return true
	}

	sess, ok := c.h.dir.Session(c.id)
	if !ok {
		c.sendError(protocol.CodeInternalError, "session record missing")
		return false
	}
	if err := sess.CheckPreconditions(t); err != nil {
		c.fail(err)
		return true
	}

	switch m := msg.(type) {
	case protocol.Connect:
		c.connect(sess, m)
	case protocol.JoinRoom:
		c.joinRoom(m)
	case protocol.LeaveRoom:
		c.leaveRoom()
	case protocol.SendMessage:
		c.sendMessage(m)
	case protocol.PrivateMessage:
		c.privateMessage(sess.Username, m)
	case protocol.ListRooms:
		c.reply(protocol.RoomList{Rooms: c.h.dir.ListRooms()})
	case protocol.ListUsers:
		c.listUsers(sess.CurrentRoom)
	case protocol.Ping:
		c.reply(protocol.Pong{})
	case protocol.Disconnect:
		log.Printf("Client %s (%s) requested disconnect", c.id, sess.Username)
		return false
	}
	return true
}

func (c *connection) connect(sess session.Session, m protocol.Connect) {
	if sess.State != session.StateConnected {
		c.fail(fmt.Errorf("%w: already connected as %s", session.ErrInvalidState, sess.Username))
		return
	}
	if err := protocol.ValidateUsername(m.Username); err != nil {
		c.reply(protocol.ConnectError{Reason: err.Error()})
		return
	}

	err := c.h.dir.Authenticate(c.id, m.Username)
	switch {
	case err == nil:
		log.Printf("Client %s authenticated as %s", c.id, m.Username)
		c.record(interfaces.EventAuthenticated, m.Username)
	case errors.Is(err, directory.ErrUsernameTaken):
		c.reply(protocol.ConnectError{Reason: fmt.Sprintf("username %q is already taken", m.Username)})
	default:
		c.fail(err)
	}
}

func (c *connection) joinRoom(m protocol.JoinRoom) {
	before, _ := c.h.dir.Session(c.id)

	_, err := c.h.dir.JoinRoom(c.id, m.RoomID)
	switch {
	case err == nil:
		if before.CurrentRoom == m.RoomID {
			return
		}
		if before.InRoom() {
			c.record(interfaces.EventLeft, before.CurrentRoom)
		}
		c.record(interfaces.EventJoined, m.RoomID)
	case errors.Is(err, directory.ErrRoomNotFound):
		c.reply(protocol.JoinRoomError{Reason: fmt.Sprintf("room %q does not exist", m.RoomID)})
	default:
		c.fail(err)
	}
}

func (c *connection) leaveRoom() {
	roomID, err := c.h.dir.LeaveRoom(c.id)
	if err != nil {
		c.fail(err)
		return
	}
	c.record(interfaces.EventLeft, roomID)
}

func (c *connection) sendMessage(m protocol.SendMessage) {
	if err := protocol.ValidateContent(m.Content); err != nil {
		c.fail(err)
		return
	}
	if _, err := c.h.dir.SendRoomMessage(c.id, m.Content); err != nil {
		c.fail(err)
	}
}

func (c *connection) privateMessage(from string, m protocol.PrivateMessage) {
	if err := protocol.ValidateContent(m.Content); err != nil {
		c.fail(err)
		return
	}
	if m.TargetUser == from {
		c.fail(ErrSelfMessage)
		return
	}
	if err := c.h.dir.SendPrivate(from, m.TargetUser, m.Content); err != nil {
		c.fail(err)
	}
}

func (c *connection) listUsers(roomID string) {
	users, err := c.h.dir.RoomMembers(roomID)
	if err != nil {
		// The session says it is in a room the directory does not know.
		c.sendError(protocol.CodeInternalError, err.Error())
		return
	}
	c.reply(protocol.UserList{Users: users, RoomID: roomID})
}

func (c *connection) reply(msg protocol.Message) {
	if err := c.out.Push(msg); err != nil {
		log.Printf("Dropping %s for client %s: %v", msg.Type(), c.id, err)
	}
}

func (c *connection) sendError(code protocol.ErrorCode, message string) {
	c.reply(protocol.ErrorMessage{Code: code, Message: message})
}

// fail reports a rejected request to the client as a single Error frame.
func (c *connection) fail(err error) {
	c.sendError(codeFor(err), err.Error())
}

func (c *connection) record(kind interfaces.EventKind, detail string) {
	c.h.recorder.Record(interfaces.Event{
		ClientID:   c.id.String(),
		Kind:       kind,
		Detail:     detail,
		RemoteAddr: c.conn.RemoteAddr(),
		Transport:  c.conn.Transport(),
		OccurredAt: time.Now().UTC(),
	})
}

// codeFor maps an error to the protocol error code the client sees.
func codeFor(err error) protocol.ErrorCode {
	switch {
	case errors.Is(err, directory.ErrUsernameTaken):
		return protocol.CodeUsernameAlreadyTaken
	case errors.Is(err, directory.ErrRoomNotFound):
		return protocol.CodeRoomNotFound
	case errors.Is(err, directory.ErrUserNotFound):
		return protocol.CodeUserNotFound
	case errors.Is(err, session.ErrInvalidState), errors.Is(err, ErrSelfMessage):
		return protocol.CodeInvalidState
	case errors.Is(err, protocol.ErrMessageTooLarge):
		return protocol.CodeMessageTooLarge
	case errors.Is(err, protocol.ErrInvalidFormat),
		errors.Is(err, protocol.ErrUnknownMessageType),
		errors.Is(err, protocol.ErrUnsupportedVersion),
		errors.Is(err, protocol.ErrInvalidUsername),
		errors.Is(err, protocol.ErrEmptyContent):
		return protocol.CodeInvalidFormat
	default:
		return protocol.CodeInternalError
	}
}
