package negotiation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtchat/internal/bridge"
	"github.com/1ureka/rtchat/internal/protocol"
	"github.com/1ureka/rtchat/internal/transport"
)

// ---------------------------------------------------------------------------
// fakeChannel
// ---------------------------------------------------------------------------

type fakeChannel struct {
	label string

	mu        sync.Mutex
	onOpen    func()
	onClose   func()
	onMessage func(webrtc.DataChannelMessage)
	onError   func(error)
	sent      []string
	closed    bool
}

var _ transport.Channel = (*fakeChannel)(nil)

func (c *fakeChannel) Label() string { return c.label }

func (c *fakeChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("fake channel closed")
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeChannel) OnOpen(fn func()) {
	c.mu.Lock()
	c.onOpen = fn
	c.mu.Unlock()
}

func (c *fakeChannel) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

func (c *fakeChannel) OnMessage(fn func(webrtc.DataChannelMessage)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

func (c *fakeChannel) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	fn := c.onClose
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

// open simulates the channel reaching the open state.
func (c *fakeChannel) open() {
	c.mu.Lock()
	fn := c.onOpen
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *fakeChannel) sentLines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// ---------------------------------------------------------------------------
// fakeHandle
// ---------------------------------------------------------------------------

// fakeHandle records what the engine asks of it. SetRemoteDescription fails
// for the SDP "reject", AddRemoteCandidate fails for candidates containing "bad".
type fakeHandle struct {
	autoNegotiate bool          // fire negotiation-needed on CreateDataChannel
	offerGate     chan struct{} // when set, CreateOffer blocks until it is closed
	createErr     error         // returned by CreateOffer and CreateAnswer

	mu            sync.Mutex
	local         *webrtc.SessionDescription
	remote        *webrtc.SessionDescription
	gathered      []string
	applied       []webrtc.ICECandidateInit
	channels      []*fakeChannel
	offersCreated int
	closeCount    int

	onCandidate func(*webrtc.ICECandidateInit)
	onNeeded    func()
	onChannel   func(transport.Channel)
	onState     func(webrtc.PeerConnectionState)
}

var _ transport.Handle = (*fakeHandle)(nil)

func (h *fakeHandle) CreateOffer() (webrtc.SessionDescription, error) {
	if h.offerGate != nil {
		<-h.offerGate
	}
	h.mu.Lock()
	h.offersCreated++
	h.mu.Unlock()
	if h.createErr != nil {
		return webrtc.SessionDescription{}, h.createErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "fake-offer"}, nil
}

func (h *fakeHandle) CreateAnswer() (webrtc.SessionDescription, error) {
	if h.createErr != nil {
		return webrtc.SessionDescription{}, h.createErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "fake-answer"}, nil
}

func (h *fakeHandle) SetLocalDescription(desc webrtc.SessionDescription) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.local = &desc
	return nil
}

func (h *fakeHandle) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if desc.SDP == "reject" {
		return errors.New("fake: unsupported sdp")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remote = &desc
	return nil
}

func (h *fakeHandle) LocalDescription() *webrtc.SessionDescription {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.local == nil {
		return nil
	}
	desc := *h.local
	for _, c := range h.gathered {
		desc.SDP += "\na=" + c
	}
	return &desc
}

func (h *fakeHandle) AddRemoteCandidate(c webrtc.ICECandidateInit) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.remote == nil {
		return errors.New("fake: no remote description")
	}
	if strings.Contains(c.Candidate, "bad") {
		return errors.New("fake: invalid candidate")
	}
	h.applied = append(h.applied, c)
	return nil
}

func (h *fakeHandle) CreateDataChannel(label string) (transport.Channel, error) {
	ch := &fakeChannel{label: label}
	h.mu.Lock()
	h.channels = append(h.channels, ch)
	fn := h.onNeeded
	h.mu.Unlock()

	if h.autoNegotiate && fn != nil {
		fn()
	}
	return ch, nil
}

func (h *fakeHandle) OnLocalCandidate(fn func(*webrtc.ICECandidateInit)) {
	h.mu.Lock()
	h.onCandidate = fn
	h.mu.Unlock()
}

func (h *fakeHandle) OnNegotiationNeeded(fn func()) {
	h.mu.Lock()
	h.onNeeded = fn
	h.mu.Unlock()
}

func (h *fakeHandle) OnDataChannel(fn func(transport.Channel)) {
	h.mu.Lock()
	h.onChannel = fn
	h.mu.Unlock()
}

func (h *fakeHandle) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	h.mu.Lock()
	h.onState = fn
	h.mu.Unlock()
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeCount++
	return nil
}

// gather simulates discovering a local candidate; nil ends gathering.
func (h *fakeHandle) gather(c *webrtc.ICECandidateInit) {
	h.mu.Lock()
	if c != nil {
		h.gathered = append(h.gathered, c.Candidate)
	}
	fn := h.onCandidate
	h.mu.Unlock()
	fn(c)
}

// announceChannel simulates the remote peer's data channel arriving.
func (h *fakeHandle) announceChannel(label string) *fakeChannel {
	ch := &fakeChannel{label: label}
	h.mu.Lock()
	h.channels = append(h.channels, ch)
	fn := h.onChannel
	h.mu.Unlock()
	fn(ch)
	return ch
}

func (h *fakeHandle) setConnectionState(state webrtc.PeerConnectionState) {
	h.mu.Lock()
	fn := h.onState
	h.mu.Unlock()
	fn(state)
}

func (h *fakeHandle) channel(i int) *fakeChannel {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.channels[i]
}

func (h *fakeHandle) appliedCandidates() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.applied))
	for i, c := range h.applied {
		out[i] = c.Candidate
	}
	return out
}

func (h *fakeHandle) remoteSDP() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.remote == nil {
		return ""
	}
	return h.remote.SDP
}

func (h *fakeHandle) closes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeCount
}

// ---------------------------------------------------------------------------
// recordingSender
// ---------------------------------------------------------------------------

type recordingSender struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (s *recordingSender) Send(_ context.Context, msg protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSender) messages() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Message(nil), s.msgs...)
}

// ---------------------------------------------------------------------------
// harness
// ---------------------------------------------------------------------------

type harness struct {
	t      *testing.T
	engine *Engine
	signal *recordingSender

	autoNegotiate bool
	offerGate     chan struct{}
	createErr     error

	mu        sync.Mutex
	handles   []*fakeHandle
	reports   []error
	closeErrs []error
	connected chan *bridge.Bridge
}

func newHarness(t *testing.T, policy Policy, autoNegotiate bool) *harness {
	t.Helper()
	h := &harness{
		t:             t,
		signal:        &recordingSender{},
		autoNegotiate: autoNegotiate,
		connected:     make(chan *bridge.Bridge, 4),
	}
	h.engine = New(Options{
		Signal:       h.signal,
		NewTransport: h.newTransport,
		Policy:       policy,
		OnReport: func(err error) {
			h.mu.Lock()
			h.reports = append(h.reports, err)
			h.mu.Unlock()
		},
		OnConnected: func(b *bridge.Bridge) {
			select {
			case h.connected <- b:
			default:
			}
		},
		OnClosed: func(err error) {
			h.mu.Lock()
			h.closeErrs = append(h.closeErrs, err)
			h.mu.Unlock()
		},
	})
	t.Cleanup(h.engine.Shutdown)
	return h
}

func (h *harness) newTransport() (transport.Handle, error) {
	fh := &fakeHandle{
		autoNegotiate: h.autoNegotiate,
		offerGate:     h.offerGate,
		createErr:     h.createErr,
	}
	h.mu.Lock()
	h.handles = append(h.handles, fh)
	h.mu.Unlock()
	return fh, nil
}

func (h *harness) handle(i int) *fakeHandle {
	h.t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.handles) {
		h.t.Fatalf("transport %d was never created (have %d)", i, len(h.handles))
	}
	return h.handles[i]
}

func (h *harness) handleCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handles)
}

func (h *harness) reportList() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.reports...)
}

func (h *harness) closeList() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.closeErrs...)
}

// sync waits until everything posted to the event loop and the outbound
// queue so far has run.
func (h *harness) sync() {
	h.t.Helper()
	if err := h.engine.do(func() error { return nil }); err != nil {
		h.t.Fatalf("sync: %v", err)
	}
	done := make(chan struct{})
	h.engine.out.post(func() { close(done) })
	<-done
}

func (h *harness) receive(line string) error {
	return h.engine.HandleRemoteMessage(line)
}

func (h *harness) waitState(want State) {
	h.t.Helper()
	eventually(h.t, func() bool { return h.engine.State() == want },
		fmt.Sprintf("state %s", want))
}

func (h *harness) waitMessages(n int) []protocol.Message {
	h.t.Helper()
	eventually(h.t, func() bool { return len(h.signal.messages()) >= n },
		fmt.Sprintf("%d signaling messages", n))
	return h.signal.messages()
}

func (h *harness) waitConnected() *bridge.Bridge {
	h.t.Helper()
	select {
	case b := <-h.connected:
		return b
	case <-time.After(2 * time.Second):
		h.t.Fatal("timeout waiting for OnConnected")
	}
	return nil
}

// eventually polls cond until it holds or two seconds pass.
func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

// ---------------------------------------------------------------------------
// wire helpers
// ---------------------------------------------------------------------------

func descLine(typ, sdp string) string {
	return fmt.Sprintf(`{"desc":{"type":%q,"sdp":%q}}`, typ, sdp)
}

func candidateLine(candidate string) string {
	return fmt.Sprintf(`{"candidate":{"candidate":%q,"sdpMid":"0","sdpMLineIndex":0}}`, candidate)
}

func hostCandidate(i int) string {
	return fmt.Sprintf("candidate:%d 1 udp 2130706431 192.168.1.%d 5000 typ host", i, i)
}

func localCandidate(i int) *webrtc.ICECandidateInit {
	mid := "0"
	return &webrtc.ICECandidateInit{Candidate: hostCandidate(i), SDPMid: &mid}
}

// encode turns a recorded message back into the line the peer would receive.
func encode(t *testing.T, msg protocol.Message) string {
	t.Helper()
	raw, err := protocol.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return string(raw)
}
