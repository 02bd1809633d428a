package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"127.0.0.1:8080", "ws://127.0.0.1:8080/ws"},
		{"ws://chat.example:8080/ws", "ws://chat.example:8080/ws"},
		{"wss://chat.example/ws", "wss://chat.example/ws"},
	}

	for _, tt := range tests {
		if got := websocketURL(tt.addr); got != tt.want {
			t.Errorf("websocketURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestRun_BadFlags(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"-bogus"}, strings.NewReader(""), &out); err == nil {
		t.Error("expected a flag parsing error")
	}
}

func TestRun_DialFailure(t *testing.T) {
	var out bytes.Buffer
	// Port 1 on loopback is not expected to accept connections.
	if err := run([]string{"-addr", "127.0.0.1:1"}, strings.NewReader(""), &out); err == nil {
		t.Error("expected a dial error")
	}
}
