// Package signaling carries negotiation messages between the two peers. The
// engine only needs Port; how lines physically travel (WebSocket, a relay,
// copy-paste) is up to the implementation.
package signaling

import (
	"context"
	"errors"
	"sync"

	"github.com/1ureka/rtchat/internal/protocol"
)

// ErrPortClosed is returned by Send after the port was closed.
var ErrPortClosed = errors.New("signaling port closed")

// Port sends messages to the remote peer and yields the raw lines it sends back.
type Port interface {
	// Send is best-effort: a nil error means the message left this process.
	Send(ctx context.Context, msg protocol.Message) error

	// Inbound yields raw lines from the peer and is closed when the port ends.
	Inbound() <-chan string

	Close() error
}

// inbox is a closable line queue that is safe to deliver into concurrently
// with close.
type inbox struct {
	mu     sync.RWMutex
	ch     chan string
	done   chan struct{}
	closed bool
	once   sync.Once
}

func newInbox(size int) *inbox {
	return &inbox{
		ch:   make(chan string, size),
		done: make(chan struct{}),
	}
}

func (in *inbox) deliver(ctx context.Context, line string) error {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.closed {
		return ErrPortClosed
	}
	select {
	case in.ch <- line:
		return nil
	case <-in.done:
		return ErrPortClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (in *inbox) close() {
	in.once.Do(func() {
		close(in.done)
		in.mu.Lock()
		in.closed = true
		close(in.ch)
		in.mu.Unlock()
	})
}
