package integration

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"scpchat/internal/app"
	"scpchat/internal/config"
	"scpchat/internal/transport"
	"scpchat/pkg/protocol"
)

const waitTimeout = 2 * time.Second

// testApplication starts a full application on loopback ports with its audit
// database in a temp dir. Stop also runs at cleanup; a second Stop is harmless.
func testApplication(t *testing.T) (*app.Application, string) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.Port = 0
	cfg.HTTP.Port = 0
	cfg.Database.Path = filepath.Join(t.TempDir(), "audit.db")

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start application: %v", err)
	}

	t.Cleanup(func() { stopApplication(t, application) })
	return application, cfg.Database.Path
}

func stopApplication(t *testing.T, application *app.Application) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Stop(ctx); err != nil {
		t.Errorf("Failed to stop application: %v", err)
	}
}

// peer is a raw protocol client. Frames are read on a background goroutine
// so expectations can time out instead of hanging the test.
type peer struct {
	t      *testing.T
	conn   transport.Conn
	frames chan protocol.Frame
	errs   chan error
}

func newPeer(t *testing.T, conn transport.Conn) *peer {
	t.Helper()
	p := &peer{
		t:      t,
		conn:   conn,
		frames: make(chan protocol.Frame, 64),
		errs:   make(chan error, 1),
	}
	go func() {
		for {
			f, err := conn.ReadFrame()
			if err != nil {
				p.errs <- err
				return
			}
			p.frames <- f
		}
	}()
	t.Cleanup(func() { conn.Close() })
	return p
}

func dialTCP(t *testing.T, application *app.Application) *peer {
	t.Helper()
	conn, err := transport.DialTCP(context.Background(), application.Addr(), transport.TCPOptions{})
	if err != nil {
		t.Fatalf("Failed to dial SCP server: %v", err)
	}
	return newPeer(t, conn)
}

func dialWebSocket(t *testing.T, application *app.Application) *peer {
	t.Helper()
	conn, err := transport.DialWebSocket(context.Background(), "ws://"+application.HTTPAddr()+"/ws", time.Second)
	if err != nil {
		t.Fatalf("Failed to dial WebSocket endpoint: %v", err)
	}
	return newPeer(t, conn)
}

func (p *peer) send(msg protocol.Message) {
	p.t.Helper()
	if err := p.conn.WriteFrame(protocol.NewFrame(msg)); err != nil {
		p.t.Fatalf("Failed to send %s: %v", msg.Type(), err)
	}
}

func (p *peer) next() protocol.Frame {
	p.t.Helper()
	select {
	case f := <-p.frames:
		return f
	case err := <-p.errs:
		p.t.Fatalf("Connection ended while waiting for a frame: %v", err)
	case <-time.After(waitTimeout):
		p.t.Fatal("Timed out waiting for a frame")
	}
	return protocol.Frame{}
}

// expectClosed waits for the server to end the connection.
func (p *peer) expectClosed() {
	p.t.Helper()
	for {
		select {
		case <-p.frames:
		case <-p.errs:
			return
		case <-time.After(waitTimeout):
			p.t.Fatal("Connection was not closed")
		}
	}
}

func expect[T protocol.Message](p *peer) (T, protocol.Frame) {
	p.t.Helper()
	f := p.next()
	msg, ok := f.Message.(T)
	if !ok {
		var want T
		p.t.Fatalf("Expected %T, got %#v", want, f.Message)
	}
	return msg, f
}

// join connects as username and joins roomID, consuming both acks.
func join(p *peer, username, roomID string) string {
	p.t.Helper()
	p.send(protocol.Connect{Username: username})
	ack, _ := expect[protocol.ConnectAck](p)
	p.send(protocol.JoinRoom{RoomID: roomID})
	expect[protocol.JoinRoomAck](p)
	return ack.ClientID
}

// auditKinds counts session_events per kind for one client, straight from
// the sqlite file.
func auditKinds(t *testing.T, dbPath, clientID string) map[string]int {
	t.Helper()

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
	}()

	rows, err := db.Query(`SELECT kind, COUNT(*) FROM session_events WHERE client_id = ? GROUP BY kind`, clientID)
	if err != nil {
		t.Fatalf("Failed to query audit events: %v", err)
	}
	defer rows.Close()

	kinds := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			t.Fatalf("Failed to scan audit row: %v", err)
		}
		kinds[kind] = n
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("Audit rows error: %v", err)
	}
	return kinds
}
