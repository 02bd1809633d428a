// Package queue provides the per-client outbound delivery queue.
package queue

import (
	"context"
	"errors"
	"sync"

	"scpchat/pkg/protocol"
)

var ErrClosed = errors.New("outbound queue closed")

// Outbound is an unbounded, ordered, multi-producer single-consumer queue of
// frames for one client. Any goroutine may Push; only the client's writer
// calls Pop.
//
// Push never blocks, so a stalled consumer lets the queue grow without limit.
type Outbound struct {
	mu        sync.Mutex
	items     []protocol.Frame
	notify    chan struct{}
	closed    bool
	sessionID string
	sequence  uint64
}

// New creates a queue whose frames carry sessionID.
func New(sessionID string) *Outbound {
	return &Outbound{
		notify:    make(chan struct{}, 1),
		sessionID: sessionID,
	}
}

// Push wraps msg in a frame stamped with the next sequence number and the
// owner's session id, then appends it.
func (q *Outbound) Push(msg protocol.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	q.sequence++
	frame := protocol.NewFrame(msg).WithSession(q.sessionID)
	frame.Sequence = q.sequence
	q.items = append(q.items, frame)

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pop blocks until a frame is available, the queue is closed and drained, or
// ctx is done. Frames pushed before Close are still delivered.
func (q *Outbound) Pop(ctx context.Context) (protocol.Frame, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			frame := q.items[0]
			q.items[0] = protocol.Frame{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return frame, nil
		}
		if q.closed {
			q.mu.Unlock()
			return protocol.Frame{}, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return protocol.Frame{}, ctx.Err()
		}
	}
}

// Close stops further pushes. Idempotent.
func (q *Outbound) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

func (q *Outbound) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
