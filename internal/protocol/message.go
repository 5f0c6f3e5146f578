// Package protocol defines the signaling message format exchanged between peers.
package protocol

import (
	"errors"

	"github.com/pion/webrtc/v4"
)

// Kind identifies which variant a Message carries.
type Kind uint8

const (
	KindDescription Kind = iota + 1 // Session description (offer or answer)
	KindCandidate                   // Single ICE candidate
)

func (k Kind) String() string {
	switch k {
	case KindDescription:
		return "description"
	case KindCandidate:
		return "candidate"
	default:
		return "unknown"
	}
}

// ErrMalformed is returned by Decode for lines that are not a valid signaling message.
var ErrMalformed = errors.New("malformed signaling message")

// Message is one signaling message. Exactly one of Description or Candidate is
// set, matching Kind.
type Message struct {
	Kind        Kind
	Description *webrtc.SessionDescription
	Candidate   *webrtc.ICECandidateInit
}

// DescriptionMessage wraps a session description.
func DescriptionMessage(desc webrtc.SessionDescription) Message {
	return Message{Kind: KindDescription, Description: &desc}
}

// CandidateMessage wraps an ICE candidate.
func CandidateMessage(candidate webrtc.ICECandidateInit) Message {
	return Message{Kind: KindCandidate, Candidate: &candidate}
}
