package transport

import (
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtchat/internal/util"
)

// DefaultSTUNServers are used for ICE candidate gathering when none are
// configured. No TURN: the chat only targets direct P2P connectivity.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Options configures a Peer.
type Options struct {
	// STUNServers overrides DefaultSTUNServers. An empty, non-nil slice
	// gathers host candidates only.
	STUNServers []string

	// IncludeLoopback lets loopback addresses become candidates, which is the
	// only way two peers on one machine without a LAN interface can connect.
	IncludeLoopback bool
}

// Compile-time interface check.
var _ Handle = (*Peer)(nil)

// Peer is a Handle backed by a pion PeerConnection.
type Peer struct {
	pc *webrtc.PeerConnection

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
	onState func(webrtc.PeerConnectionState)
}

// NewPeer creates a PeerConnection with pion's default interceptors and the
// pterm-backed logger factory.
func NewPeer(opts Options) (*Peer, error) {
	servers := opts.STUNServers
	if servers == nil {
		servers = DefaultSTUNServers
	}

	media := &webrtc.MediaEngine{}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(media, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	settings := webrtc.SettingEngine{LoggerFactory: util.PionLoggerFactory{}}
	settings.SetIncludeLoopbackCandidate(opts.IncludeLoopback)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(media),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settings),
	)

	var config webrtc.Configuration
	if len(servers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: servers}}
	}

	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{pc: pc, pcState: webrtc.PeerConnectionStateNew}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("peer connection state: %s", state.String())
		p.mu.Lock()
		p.pcState = state
		fn := p.onState
		p.mu.Unlock()
		if fn != nil {
			fn(state)
		}
	})

	return p, nil
}

// ConnectionState returns the last observed PeerConnection state.
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pcState
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *Peer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *Peer) SetLocalDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

func (p *Peer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *Peer) LocalDescription() *webrtc.SessionDescription {
	return p.pc.LocalDescription()
}

func (p *Peer) AddRemoteCandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Hooks
// ---------------------------------------------------------------------------

func (p *Peer) OnLocalCandidate(fn func(*webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			fn(nil)
			return
		}
		init := c.ToJSON()
		fn(&init)
	})
}

func (p *Peer) OnNegotiationNeeded(fn func()) {
	p.pc.OnNegotiationNeeded(fn)
}

func (p *Peer) OnDataChannel(fn func(Channel)) {
	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		util.LogDebug("remote offered data channel %q", dc.Label())
		fn(newDataChannel(dc))
	})
}

func (p *Peer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

// CreateDataChannel creates an ordered, reliable channel. Creating the first
// channel is what makes pion fire negotiation-needed.
func (p *Peer) CreateDataChannel(label string) (Channel, error) {
	dc, err := p.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, err
	}
	return newDataChannel(dc), nil
}

// Close shuts down the PeerConnection and every channel on it.
func (p *Peer) Close() error {
	return p.pc.Close()
}
