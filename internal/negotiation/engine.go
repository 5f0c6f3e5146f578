// Package negotiation drives one WebRTC peer connection from "not connected"
// to "data channel open" over an external signaling channel.
//
// All state lives in an Engine and is mutated only on the engine's event loop.
// Transport hooks, inbound signaling lines and public calls are all turned into
// closures on that loop, so there is no parallel mutation. Asynchronous work
// (producing an offer or answer) runs on its own goroutine and re-enters the
// loop through a continuation tagged with the attempt generation; once the
// attempt is closed, a late continuation is dropped instead of reviving it.
package negotiation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtchat/internal/bridge"
	"github.com/1ureka/rtchat/internal/protocol"
	"github.com/1ureka/rtchat/internal/transport"
	"github.com/1ureka/rtchat/internal/util"
)

const (
	// DefaultLabel is the data channel label the initiator creates.
	DefaultLabel = "chat"

	maxPendingCandidates = 128
	sendTimeout          = 10 * time.Second
)

// Sender forwards a signaling message to the remote peer. Delivery is best-effort.
type Sender interface {
	Send(ctx context.Context, msg protocol.Message) error
}

// Options configures an Engine.
//
// The On* callbacks run on the engine's event loop. They must return quickly
// and must not call the engine's blocking methods (Start, Close,
// HandleRemoteMessage, ...), which would deadlock.
type Options struct {
	Signal       Sender
	NewTransport func() (transport.Handle, error)
	Policy       Policy
	Label        string

	OnState     func(State)
	OnReport    func(error)          // recoverable problems: malformed, unexpected, candidate rejected
	OnConnected func(*bridge.Bridge) // data channel open
	OnClosed    func(error)          // attempt over; nil for a clean close
}

// Engine is the negotiation state machine for one peer relationship.
type Engine struct {
	opts Options
	id   string

	loop *queue // state machine
	out  *queue // ordered outbound signaling writes

	// Owned by the loop goroutine.
	state         State
	role          Role
	gen           uint64
	handle        transport.Handle
	bridge        *bridge.Bridge
	producing     bool // offer/answer creation in flight
	localSet      bool // local description applied
	localSent     bool // local description forwarded to the peer
	gatheringDone bool
	remoteApplied bool
	pending       []webrtc.ICECandidateInit // remote candidates waiting for the remote description
	outbox        []webrtc.ICECandidateInit // local candidates waiting for the local description

	// Read-only snapshot for accessors called from other goroutines.
	snapMu     sync.RWMutex
	snapState  State
	snapRole   Role
	snapBridge *bridge.Bridge
}

// New creates an idle Engine and starts its event loop. Call Shutdown to stop it.
func New(opts Options) *Engine {
	if opts.Label == "" {
		opts.Label = DefaultLabel
	}
	return &Engine{
		opts: opts,
		id:   uuid.NewString()[:8],
		loop: newQueue(),
		out:  newQueue(),
	}
}

// ---------------------------------------------------------------------------
// Public API
// ---------------------------------------------------------------------------

// State returns the current negotiation state.
func (e *Engine) State() State {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snapState
}

// Role returns the role of the current attempt, or RoleNone.
func (e *Engine) Role() Role {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snapRole
}

// Bridge returns the open channel bridge, or nil unless Connected.
func (e *Engine) Bridge() *bridge.Bridge {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snapBridge
}

// Start begins a negotiation attempt. It fails with ErrAlreadyStarted unless
// the engine is Idle or Closed with no transport.
func (e *Engine) Start(role Role) error {
	return e.do(func() error { return e.start(role) })
}

// HandleLocalDescriptionReady sets desc as the local description and forwards
// it according to the candidate policy. The engine calls this itself when its
// transport finishes producing a description.
func (e *Engine) HandleLocalDescriptionReady(desc webrtc.SessionDescription) error {
	return e.do(func() error { return e.localDescriptionReady(e.gen, desc) })
}

// HandleLocalCandidate forwards one gathered candidate; nil marks the end of
// gathering.
func (e *Engine) HandleLocalCandidate(candidate *webrtc.ICECandidateInit) error {
	return e.do(func() error {
		if e.handle == nil {
			return fmt.Errorf("%w: local candidate with no active negotiation", ErrUnexpectedMessage)
		}
		e.localCandidate(e.gen, candidate)
		return nil
	})
}

// HandleRemoteMessage parses and applies one raw signaling line from the peer.
// Malformed and inapplicable lines are reported and leave state unchanged.
func (e *Engine) HandleRemoteMessage(raw string) error {
	return e.do(func() error { return e.remoteMessage(raw) })
}

// Close tears down the current attempt. Calling it again is a no-op.
func (e *Engine) Close() error {
	return e.do(func() error {
		e.teardown(nil)
		return nil
	})
}

// Shutdown closes the current attempt and stops the event loop.
func (e *Engine) Shutdown() {
	_ = e.Close()
	e.loop.stop()
	e.out.stop()
}

// do runs fn on the event loop and waits for its result.
func (e *Engine) do(fn func() error) error {
	result := make(chan error, 1)
	if !e.loop.post(func() { result <- fn() }) {
		return ErrStopped
	}
	select {
	case err := <-result:
		return err
	case <-e.loop.Done():
		return ErrStopped
	}
}

// ---------------------------------------------------------------------------
// Lifecycle (loop goroutine only)
// ---------------------------------------------------------------------------

func (e *Engine) start(role Role) error {
	if e.handle != nil {
		return fmt.Errorf("%w: %s attempt in state %s", ErrAlreadyStarted, e.role, e.state)
	}
	switch e.state {
	case StateIdle, StateClosed:
	case StateOfferSent, StateAwaitingAnswer, StateAnswerSent, StateConnected:
		return fmt.Errorf("%w: state %s", ErrAlreadyStarted, e.state)
	default:
		return fmt.Errorf("start in unknown state %s", e.state)
	}
	if role != RoleInitiator && role != RoleResponder {
		return fmt.Errorf("start: invalid role %s", role)
	}

	h, err := e.opts.NewTransport()
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}

	e.gen++
	gen := e.gen
	e.handle = h
	e.role = role
	e.resetAttempt()
	if role == RoleInitiator && len(e.pending) > 0 {
		// Buffered candidates belong to an offer the peer never sent.
		util.LogDebug("[%s] dropping %d candidates buffered while idle", e.id, len(e.pending))
		e.pending = nil
	}

	h.OnLocalCandidate(func(c *webrtc.ICECandidateInit) {
		e.loop.post(func() { e.localCandidate(gen, c) })
	})
	h.OnNegotiationNeeded(func() {
		e.loop.post(func() { e.negotiationNeeded(gen) })
	})
	h.OnDataChannel(func(ch transport.Channel) {
		// Attach immediately so no frame arrives before the bridge listens.
		b := e.attach(gen, ch)
		e.loop.post(func() { e.remoteChannel(gen, b) })
	})
	h.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		e.loop.post(func() { e.connectionState(gen, state) })
	})

	util.LogInfo("[%s] starting negotiation as %s", e.id, role)

	switch role {
	case RoleInitiator:
		ch, err := h.CreateDataChannel(e.opts.Label)
		if err != nil {
			err = fmt.Errorf("create data channel: %w", err)
			e.teardown(err)
			return err
		}
		e.bridge = e.attach(gen, ch)
		e.setState(StateOfferSent)
	case RoleResponder:
		e.setState(StateIdle)
	}
	return nil
}

// resetAttempt clears per-attempt flags. Remote candidates buffered while
// idle are kept: they belong to the offer that is about to arrive.
func (e *Engine) resetAttempt() {
	e.producing = false
	e.localSet = false
	e.localSent = false
	e.gatheringDone = false
	e.remoteApplied = false
	e.outbox = nil
}

// teardown moves to Closed, releasing the transport and channel. Every
// continuation of the old attempt becomes stale.
func (e *Engine) teardown(cause error) {
	if e.state == StateClosed && e.handle == nil {
		return
	}

	e.gen++
	h, b := e.handle, e.bridge
	e.handle = nil
	e.bridge = nil
	e.pending = nil
	e.resetAttempt()
	e.setState(StateClosed)

	if b != nil {
		if err := b.Close(); err != nil {
			util.LogDebug("[%s] close data channel: %v", e.id, err)
		}
	}
	if h != nil {
		if err := h.Close(); err != nil {
			util.LogDebug("[%s] close transport: %v", e.id, err)
		}
	}

	if cause != nil {
		util.LogError("[%s] negotiation aborted: %v", e.id, cause)
	} else {
		util.LogInfo("[%s] negotiation closed", e.id)
	}
	if e.opts.OnClosed != nil {
		e.opts.OnClosed(cause)
	}
}

// reject aborts the attempt after the transport refused a description.
func (e *Engine) reject(op string, err error) error {
	rejected := fmt.Errorf("%w: %s: %v", ErrDescriptionRejected, op, err)
	e.teardown(rejected)
	return rejected
}

func (e *Engine) setState(s State) {
	if e.state != s {
		util.LogDebug("[%s] state %s → %s", e.id, e.state, s)
	}
	e.state = s

	e.snapMu.Lock()
	e.snapState = s
	e.snapRole = e.role
	if s == StateConnected {
		e.snapBridge = e.bridge
	} else {
		e.snapBridge = nil
	}
	e.snapMu.Unlock()

	if e.opts.OnState != nil {
		e.opts.OnState(s)
	}
}

func (e *Engine) report(err error) {
	util.LogWarning("[%s] %v", e.id, err)
	if e.opts.OnReport != nil {
		e.opts.OnReport(err)
	}
}

func (e *Engine) unexpected(format string, args ...interface{}) error {
	err := fmt.Errorf("%w: %s", ErrUnexpectedMessage, fmt.Sprintf(format, args...))
	e.report(err)
	return err
}

// ---------------------------------------------------------------------------
// Outbound signaling
// ---------------------------------------------------------------------------

// send hands msg to the outbound writer. Writes happen in post order on their
// own goroutine so a slow signaling channel never stalls the state machine.
func (e *Engine) send(msg protocol.Message) {
	e.out.post(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := e.opts.Signal.Send(ctx, msg); err != nil {
			util.LogWarning("[%s] failed to send %s: %v", e.id, msg.Kind, err)
		}
	})
}
