// Package transport describes the real-time connection capability the
// negotiation engine drives, and provides the pion-backed implementation.
package transport

import (
	"github.com/pion/webrtc/v4"
)

// Handle is one peer connection. Hooks may fire on any goroutine; callers are
// expected to serialize them themselves.
type Handle interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error

	// LocalDescription returns the current local description including every
	// candidate gathered so far, or nil before SetLocalDescription.
	LocalDescription() *webrtc.SessionDescription

	AddRemoteCandidate(candidate webrtc.ICECandidateInit) error
	CreateDataChannel(label string) (Channel, error)

	// OnLocalCandidate fires per gathered candidate; nil marks the end of gathering.
	OnLocalCandidate(fn func(*webrtc.ICECandidateInit))
	OnNegotiationNeeded(fn func())
	OnDataChannel(fn func(Channel))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))

	Close() error
}

// Channel is an ordered, reliable data channel.
type Channel interface {
	Label() string
	SendText(text string) error

	OnOpen(fn func())
	OnClose(fn func())
	OnMessage(fn func(webrtc.DataChannelMessage))
	OnError(fn func(error))

	Close() error
}
