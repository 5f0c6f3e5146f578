package transport

import (
	"io"
	"sync"

	"github.com/pion/webrtc/v4"
)

const (
	highWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this
)

// dataChannel wraps a pion DataChannel with send-side backpressure.
type dataChannel struct {
	raw *webrtc.DataChannel

	drainSignal chan struct{}
	closed      chan struct{}
	closeOnce   sync.Once

	mu      sync.Mutex
	onClose func()
}

func newDataChannel(raw *webrtc.DataChannel) *dataChannel {
	c := &dataChannel{
		raw:         raw,
		drainSignal: make(chan struct{}, 1),
		closed:      make(chan struct{}),
	}

	raw.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	raw.OnBufferedAmountLow(func() {
		select {
		case c.drainSignal <- struct{}{}:
		default:
		}
	})

	// pion keeps one handler per event, so the close gate and the caller's
	// hook share it.
	raw.OnClose(func() {
		c.closeOnce.Do(func() { close(c.closed) })
		c.mu.Lock()
		fn := c.onClose
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	})

	return c
}

func (c *dataChannel) Label() string { return c.raw.Label() }

// SendText blocks while the buffered amount is above the high water mark,
// until it drains below the low mark or the channel closes.
func (c *dataChannel) SendText(text string) error {
	if c.raw.BufferedAmount() > uint64(highWaterMark) {
		select {
		case <-c.drainSignal:
		case <-c.closed:
			return io.ErrClosedPipe
		}
	}
	return c.raw.SendText(text)
}

func (c *dataChannel) OnOpen(fn func()) { c.raw.OnOpen(fn) }

func (c *dataChannel) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

func (c *dataChannel) OnMessage(fn func(webrtc.DataChannelMessage)) { c.raw.OnMessage(fn) }
func (c *dataChannel) OnError(fn func(error)) { c.raw.OnError(fn) }
func (c *dataChannel) Close() error { return c.raw.Close() }
