// Package bridge exposes an established data channel to the application as a
// text-line stream.
package bridge

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"unicode"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtchat/internal/transport"
	"github.com/1ureka/rtchat/internal/util"
)

// ErrChannelNotOpen is returned by Send before the channel opens or after it closed.
var ErrChannelNotOpen = errors.New("data channel not open")

const inboxBufferSize = 64 // inbound lines buffered ahead of the consumer

type status uint8

const (
	statusPending status = iota
	statusOpen
	statusClosed
)

// Bridge wraps one data channel. It attaches to the channel as soon as the
// channel exists so no early frame is lost, but only accepts Send once Open
// was called.
type Bridge struct {
	ch transport.Channel

	mu       sync.Mutex
	status   status
	onClosed func()
	onError  func(error)

	inbox     chan string
	done      chan struct{}
	closeOnce sync.Once
}

// New attaches a Bridge to ch. onClosed runs once, on whichever goroutine
// observes the close first (local Close or remote close).
func New(ch transport.Channel, onClosed func()) *Bridge {
	b := &Bridge{
		ch:       ch,
		onClosed: onClosed,
		inbox:    make(chan string, inboxBufferSize),
		done:     make(chan struct{}),
	}

	ch.OnMessage(b.receive)
	ch.OnClose(func() {
		util.LogDebug("data channel %q closed", ch.Label())
		b.finish()
	})
	ch.OnError(func(err error) {
		util.LogWarning("data channel %q error: %v", ch.Label(), err)
		b.mu.Lock()
		fn := b.onError
		b.mu.Unlock()
		if fn != nil {
			fn(err)
		}
	})

	return b
}

// OnError registers a callback for channel errors.
func (b *Bridge) OnError(fn func(error)) {
	b.mu.Lock()
	b.onError = fn
	b.mu.Unlock()
}

// Open marks the channel usable. It is a no-op after close.
func (b *Bridge) Open() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == statusPending {
		b.status = statusOpen
	}
}

// IsOpen reports whether Send would be accepted.
func (b *Bridge) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status == statusOpen
}

// Label returns the underlying channel label.
func (b *Bridge) Label() string { return b.ch.Label() }

// Done is closed once the channel has closed.
func (b *Bridge) Done() <-chan struct{} { return b.done }

// Send writes one text line to the peer.
func (b *Bridge) Send(text string) error {
	if !b.IsOpen() {
		return ErrChannelNotOpen
	}
	if err := b.ch.SendText(text); err != nil {
		return fmt.Errorf("send on %q: %w", b.ch.Label(), err)
	}
	util.Stats.AddSent(len(text))
	return nil
}

// Lines returns the inbound lines. The sequence ends when the channel closes,
// after every line received before the close has been yielded. It is meant
// for a single consumer.
func (b *Bridge) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			select {
			case line := <-b.inbox:
				if !yield(line) {
					return
				}
			case <-b.done:
				for {
					select {
					case line := <-b.inbox:
						if !yield(line) {
							return
						}
					default:
						return
					}
				}
			}
		}
	}
}

// Close closes the channel. Calling it again is a no-op.
func (b *Bridge) Close() error {
	b.mu.Lock()
	alreadyClosed := b.status == statusClosed
	b.mu.Unlock()
	if alreadyClosed {
		return nil
	}

	err := b.ch.Close()
	b.finish()
	return err
}

// finish transitions to closed exactly once and notifies the owner.
func (b *Bridge) finish() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.status = statusClosed
		b.mu.Unlock()

		close(b.done)
		if b.onClosed != nil {
			b.onClosed()
		}
	})
}

// receive decodes a frame and hands it to the consumer, blocking the channel's
// read loop while the inbox is full.
func (b *Bridge) receive(msg webrtc.DataChannelMessage) {
	line := DecodeLine(msg.Data)
	util.Stats.AddRecv(len(msg.Data))

	select {
	case b.inbox <- line:
	case <-b.done:
	}
}

// DecodeLine converts a text or binary frame to a UTF-8 string with trailing
// whitespace removed. Invalid byte sequences become U+FFFD.
func DecodeLine(data []byte) string {
	line := strings.ToValidUTF8(string(data), "\uFFFD")
	return strings.TrimRightFunc(line, unicode.IsSpace)
}
