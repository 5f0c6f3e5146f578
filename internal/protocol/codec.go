package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// wireMessage is the JSON envelope on the signaling channel:
//
//	{"desc": {"type": "offer", "sdp": "..."}}
//	{"candidate": {"candidate": "...", "sdpMid": "0", "sdpMLineIndex": 0}}
type wireMessage struct {
	Desc      *webrtc.SessionDescription `json:"desc,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// inboundMessage accepts the canonical envelope plus the shapes emitted by
// browser peers: a flat candidate (`candidate` is the string itself) and a bare
// description without the `desc` wrapper.
type inboundMessage struct {
	Desc      json.RawMessage `json:"desc"`
	Candidate json.RawMessage `json:"candidate"`

	SDPMid           *string `json:"sdpMid"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex"`
	UsernameFragment *string `json:"usernameFragment"`

	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Encode serializes a Message into a single JSON line (without trailing newline).
func Encode(msg Message) ([]byte, error) {
	var wire wireMessage
	switch msg.Kind {
	case KindDescription:
		if msg.Description == nil {
			return nil, fmt.Errorf("encode %s: missing description", msg.Kind)
		}
		wire.Desc = msg.Description
	case KindCandidate:
		if msg.Candidate == nil {
			return nil, fmt.Errorf("encode %s: missing candidate", msg.Kind)
		}
		wire.Candidate = msg.Candidate
	default:
		return nil, fmt.Errorf("encode: unknown message kind %d", msg.Kind)
	}
	return json.Marshal(wire)
}

// Decode parses one raw signaling line. Every failure wraps ErrMalformed.
func Decode(raw string) (Message, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Message{}, fmt.Errorf("%w: empty input", ErrMalformed)
	}

	var in inboundMessage
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	hasDesc := len(in.Desc) > 0 && string(in.Desc) != "null"
	hasCandidate := len(in.Candidate) > 0 && string(in.Candidate) != "null"

	switch {
	case hasDesc && hasCandidate:
		return Message{}, fmt.Errorf("%w: both desc and candidate present", ErrMalformed)
	case hasDesc:
		return decodeDescription(in.Desc)
	case hasCandidate:
		return decodeCandidate(in)
	case in.Type != "" || in.SDP != "":
		return validateDescription(in.Type, in.SDP)
	default:
		return Message{}, fmt.Errorf("%w: neither desc nor candidate present", ErrMalformed)
	}
}

func decodeDescription(data json.RawMessage) (Message, error) {
	var fields struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return Message{}, fmt.Errorf("%w: desc: %v", ErrMalformed, err)
	}
	return validateDescription(fields.Type, fields.SDP)
}

// validateDescription accepts only offers and answers with a non-empty SDP body.
func validateDescription(typ, sdp string) (Message, error) {
	sdpType := webrtc.NewSDPType(typ)
	if sdpType != webrtc.SDPTypeOffer && sdpType != webrtc.SDPTypeAnswer {
		return Message{}, fmt.Errorf("%w: unsupported description type %q", ErrMalformed, typ)
	}
	if strings.TrimSpace(sdp) == "" {
		return Message{}, fmt.Errorf("%w: description has no sdp", ErrMalformed)
	}
	return DescriptionMessage(webrtc.SessionDescription{Type: sdpType, SDP: sdp}), nil
}

func decodeCandidate(in inboundMessage) (Message, error) {
	var init webrtc.ICECandidateInit

	// Flat browser form: the candidate attribute is a string next to sdpMid.
	var flat string
	if err := json.Unmarshal(in.Candidate, &flat); err == nil {
		init = webrtc.ICECandidateInit{
			Candidate:        flat,
			SDPMid:           in.SDPMid,
			SDPMLineIndex:    in.SDPMLineIndex,
			UsernameFragment: in.UsernameFragment,
		}
	} else if err := json.Unmarshal(in.Candidate, &init); err != nil {
		return Message{}, fmt.Errorf("%w: candidate: %v", ErrMalformed, err)
	}

	if strings.TrimSpace(init.Candidate) == "" {
		return Message{}, fmt.Errorf("%w: candidate has no candidate attribute", ErrMalformed)
	}
	return CandidateMessage(init), nil
}
