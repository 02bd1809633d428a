package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"testing"
)

func TestCodec_WriteReadFrame(t *testing.T) {
	var buf bytes.Buffer

	first := NewFrame(Connect{Username: "alice"})
	second := NewFrame(JoinRoom{RoomID: "general"})
	for _, f := range []Frame{first, second} {
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	for _, want := range []Frame{first, second} {
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		if !reflect.DeepEqual(got.Message, want.Message) {
			t.Errorf("expected %#v, got %#v", want.Message, got.Message)
		}
	}

	if _, err := ReadFrame(&buf); err != io.EOF {
		t.Errorf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestCodec_LengthPrefixIsBigEndian(t *testing.T) {
	var buf bytes.Buffer
	f := NewFrame(Ping{})
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	payload, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	raw := buf.Bytes()
	if got := binary.BigEndian.Uint32(raw[:HeaderSize]); int(got) != len(payload) {
		t.Errorf("length prefix %d, payload %d bytes", got, len(payload))
	}
	if !bytes.Equal(raw[HeaderSize:], payload) {
		t.Error("payload bytes differ from Encode output")
	}
}

func TestCodec_WriteFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, frameOfSize(t, MaxMessageSize+10))
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be written, got %d bytes", buf.Len())
	}
}

func TestCodec_OversizePrefixThenDiscard(t *testing.T) {
	var buf bytes.Buffer

	oversize := MaxMessageSize + 1
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(oversize))
	buf.Write(header[:])
	buf.Write(bytes.Repeat([]byte{'x'}, oversize))

	if err := WriteFrame(&buf, NewFrame(Ping{})); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	_, err := ReadFrame(&buf)
	var sizeErr *SizeError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("expected SizeError, got %v", err)
	}
	if sizeErr.Size != oversize || sizeErr.Limit != MaxMessageSize {
		t.Errorf("unexpected size error: %+v", sizeErr)
	}

	if err := Discard(&buf, sizeErr); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}

	next, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("stream should be aligned after discard: %v", err)
	}
	if _, ok := next.Message.(Ping); !ok {
		t.Errorf("expected Ping after discard, got %T", next.Message)
	}
}

func TestCodec_MalformedInput(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"truncated prefix", []byte{0, 0}},
		{"empty frame", []byte{0, 0, 0, 0}},
		{"truncated payload", []byte{0, 0, 0, 10, '{', '}'}},
		{"garbage payload", append([]byte{0, 0, 0, 3}, []byte("abc")...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.input))
			if !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("expected ErrInvalidFormat, got %v", err)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		username string
		valid    bool
	}{
		{"alice", true},
		{"bob_42", true},
		{"night-owl", true},
		{"", false},
		{"has space", false},
		{"émile", false},
		{"abcdefghijklmnopqrstuvwxyz0123456", false},
	}

	for _, tt := range tests {
		err := ValidateUsername(tt.username)
		if tt.valid && err != nil {
			t.Errorf("%q should be valid: %v", tt.username, err)
		}
		if !tt.valid && !errors.Is(err, ErrInvalidUsername) {
			t.Errorf("%q should be rejected, got %v", tt.username, err)
		}
	}
}
