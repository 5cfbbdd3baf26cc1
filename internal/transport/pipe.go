package transport

import (
	"context"
	"sync"
)

// PipeEnd is one side of an in-process channel pair. It backs rooms
// that live in the same process as their authority, and tests.
type PipeEnd struct {
	id      string
	peer    *PipeEnd
	mu      sync.Mutex
	handler DataHandler
	closed  bool
}

// Pipe links two channel ends; bytes sent on one are delivered to the
// other's handler with the sender id of the writing end.
func Pipe(idA, idB string) (*PipeEnd, *PipeEnd) {
	a := &PipeEnd{id: idA}
	b := &PipeEnd{id: idB}
	a.peer = b
	b.peer = a
	return a, b
}

func (e *PipeEnd) Send(ctx context.Context, payload []byte, reliable bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	e.peer.mu.Lock()
	h := e.peer.handler
	peerClosed := e.peer.closed
	e.peer.mu.Unlock()
	if peerClosed {
		return ErrChannelClosed
	}
	if h != nil {
		// Delivered synchronously; callers must not hold locks that the
		// receiving handler also takes.
		buf := make([]byte, len(payload))
		copy(buf, payload)
		h(e.id, buf)
	}
	return nil
}

func (e *PipeEnd) OnData(h DataHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

func (e *PipeEnd) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.handler = nil
	return nil
}
