package app

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"scpchat/internal/api"
	"scpchat/internal/config"
	"scpchat/internal/transport"
	"scpchat/pkg/interfaces"
	"scpchat/pkg/protocol"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.Port = 0
	cfg.HTTP.Port = 0
	cfg.Database.Path = filepath.Join(t.TempDir(), "audit.db")
	return cfg
}

func startApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	application, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Stop(ctx); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})
	return application
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode
}

func expectMessage[T protocol.Message](t *testing.T, conn transport.Conn) T {
	t.Helper()
	f, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	msg, ok := f.Message.(T)
	if !ok {
		var want T
		t.Fatalf("expected %T, got %#v", want, f.Message)
	}
	return msg
}

func TestNewApplication_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Port = -1

	if _, err := NewApplication(cfg); err == nil {
		t.Fatal("expected invalid configuration error")
	}
}

func TestApplication_ServesTCPAndWebSocket(t *testing.T) {
	application := startApp(t, testConfig(t))

	if application.Addr() == "" || application.HTTPAddr() == "" {
		t.Fatalf("addresses not bound: %q %q", application.Addr(), application.HTTPAddr())
	}

	ctx := context.Background()
	tcp, err := transport.DialTCP(ctx, application.Addr(), transport.TCPOptions{})
	if err != nil {
		t.Fatalf("DialTCP failed: %v", err)
	}
	defer tcp.Close()

	ws, err := transport.DialWebSocket(ctx, "ws://"+application.HTTPAddr()+"/ws", time.Second)
	if err != nil {
		t.Fatalf("DialWebSocket failed: %v", err)
	}
	defer ws.Close()

	if err := tcp.WriteFrame(protocol.NewFrame(protocol.Connect{Username: "alice"})); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	expectMessage[protocol.ConnectAck](t, tcp)

	if err := ws.WriteFrame(protocol.NewFrame(protocol.Connect{Username: "alice"})); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	expectMessage[protocol.ConnectError](t, ws)

	var users api.ListUsersResponse
	if code := getJSON(t, "http://"+application.HTTPAddr()+"/api/users", &users); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if users.Count != 1 || users.Users[0].Username != "alice" {
		t.Errorf("unexpected users: %+v", users)
	}

	var health api.HealthResponse
	if code := getJSON(t, "http://"+application.HTTPAddr()+"/health", &health); code != http.StatusOK {
		t.Fatalf("unexpected health status %d", code)
	}
	if health.Database != "healthy" {
		t.Errorf("expected healthy database, got %q", health.Database)
	}
}

func TestApplication_RecordsAuditEvents(t *testing.T) {
	application := startApp(t, testConfig(t))

	conn, err := transport.DialTCP(context.Background(), application.Addr(), transport.TCPOptions{})
	if err != nil {
		t.Fatalf("DialTCP failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteFrame(protocol.NewFrame(protocol.Connect{Username: "carol"})); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	expectMessage[protocol.ConnectAck](t, conn)

	url := "http://" + application.HTTPAddr() + "/api/events"
	deadline := time.Now().Add(2 * time.Second)
	for {
		var events api.ListEventsResponse
		getJSON(t, url, &events)

		kinds := make(map[interfaces.EventKind]bool)
		for _, e := range events.Events {
			kinds[e.Kind] = true
		}
		if kinds[interfaces.EventConnected] && kinds[interfaces.EventAuthenticated] {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit events not recorded: %+v", events)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestApplication_WithoutDatabaseAndHTTP(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Enabled = false
	cfg.HTTP.Enabled = false

	application := startApp(t, cfg)
	if application.HTTPAddr() != "" {
		t.Errorf("HTTP should be disabled, got %q", application.HTTPAddr())
	}

	conn, err := transport.DialTCP(context.Background(), application.Addr(), transport.TCPOptions{})
	if err != nil {
		t.Fatalf("DialTCP failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteFrame(protocol.NewFrame(protocol.Ping{})); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	expectMessage[protocol.Pong](t, conn)
}

func TestApplication_StopDisconnectsClients(t *testing.T) {
	cfg := testConfig(t)
	application, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	conn, err := transport.DialTCP(context.Background(), application.Addr(), transport.TCPOptions{})
	if err != nil {
		t.Fatalf("DialTCP failed: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteFrame(protocol.NewFrame(protocol.Ping{})); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	expectMessage[protocol.Pong](t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if _, err := conn.ReadFrame(); err == nil {
		t.Error("expected the connection to be closed after Stop")
	}
}
