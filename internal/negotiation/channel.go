package negotiation

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtchat/internal/bridge"
	"github.com/1ureka/rtchat/internal/transport"
	"github.com/1ureka/rtchat/internal/util"
)

// attach wraps ch in a Bridge whose open/close/error events re-enter the loop
// tagged with gen. Safe to call from any goroutine: it touches no loop state.
func (e *Engine) attach(gen uint64, ch transport.Channel) *bridge.Bridge {
	var b *bridge.Bridge
	b = bridge.New(ch, func() {
		e.loop.post(func() { e.channelClosed(gen, b) })
	})
	b.OnError(func(err error) {
		e.loop.post(func() {
			if gen == e.gen {
				e.report(fmt.Errorf("data channel %q: %w", ch.Label(), err))
			}
		})
	})
	ch.OnOpen(func() {
		e.loop.post(func() { e.channelOpened(gen, b) })
	})
	return b
}

// remoteChannel adopts the channel the initiator created. Only one channel
// per attempt; extras are closed.
func (e *Engine) remoteChannel(gen uint64, b *bridge.Bridge) {
	if gen != e.gen {
		_ = b.Close()
		return
	}
	if e.bridge != nil && e.bridge != b {
		util.LogWarning("[%s] closing extra data channel %q", e.id, b.Label())
		_ = b.Close()
		return
	}
	e.bridge = b
	util.LogDebug("[%s] adopted remote data channel %q", e.id, b.Label())
}

func (e *Engine) channelOpened(gen uint64, b *bridge.Bridge) {
	if gen != e.gen {
		_ = b.Close()
		return
	}
	if e.bridge == nil {
		// The open event overtook remoteChannel on the loop.
		e.bridge = b
	}
	if e.bridge != b {
		_ = b.Close()
		return
	}

	switch e.state {
	case StateOfferSent, StateAwaitingAnswer, StateAnswerSent, StateIdle:
	case StateConnected:
		return
	case StateClosed:
		_ = b.Close()
		return
	default:
		util.LogError("[%s] data channel opened in unknown state %s", e.id, e.state)
		return
	}

	b.Open()
	e.setState(StateConnected)
	util.LogSuccess("[%s] data channel %q open", e.id, b.Label())
	if e.opts.OnConnected != nil {
		e.opts.OnConnected(b)
	}
}

// channelClosed ends the attempt when its channel closes, locally or remotely.
// Extra channels that were refused do not count.
func (e *Engine) channelClosed(gen uint64, b *bridge.Bridge) {
	if gen != e.gen || (e.bridge != nil && e.bridge != b) {
		return
	}
	e.teardown(nil)
}

// connectionState aborts the attempt once ICE/DTLS has failed for good.
func (e *Engine) connectionState(gen uint64, state webrtc.PeerConnectionState) {
	if gen != e.gen {
		return
	}
	switch state {
	case webrtc.PeerConnectionStateFailed:
		e.teardown(ErrConnectionFailed)
	case webrtc.PeerConnectionStateClosed:
		e.teardown(nil)
	}
}
