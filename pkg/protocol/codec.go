package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// WriteFrame encodes f and writes it with its length prefix in a single Write.
func WriteFrame(w io.Writer, f Frame) error {
	payload, err := Encode(f)
	if err != nil {
		return err
	}
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[:HeaderSize], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r.
//
// A clean end of stream before the length prefix is returned as io.EOF.
// An oversized length prefix yields a *SizeError without consuming the body,
// leaving the caller to decide whether to Discard it.
func ReadFrame(r io.Reader) (Frame, error) {
	payload, err := ReadPayload(r)
	if err != nil {
		return Frame{}, err
	}
	return Decode(payload)
}

// ReadPayload reads the length prefix and exactly that many payload bytes.
// The length is checked against MaxMessageSize before any allocation.
func ReadPayload(r io.Reader) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated length prefix", ErrInvalidFormat)
		}
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxMessageSize {
		return nil, &SizeError{Size: int(size), Limit: MaxMessageSize}
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrInvalidFormat)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: truncated payload", ErrInvalidFormat)
		}
		return nil, err
	}
	return payload, nil
}

// Discard skips the body announced by an oversized length prefix so the
// stream stays aligned on the next frame.
func Discard(r io.Reader, sizeErr *SizeError) error {
	if sizeErr == nil || sizeErr.Size <= 0 {
		return nil
	}
	n, err := io.CopyN(io.Discard, r, int64(sizeErr.Size))
	if err != nil {
		return fmt.Errorf("discard %d of %d bytes: %w", n, sizeErr.Size, err)
	}
	return nil
}
