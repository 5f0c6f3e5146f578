package negotiation

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtchat/internal/protocol"
	"github.com/1ureka/rtchat/internal/util"
)

// negotiationNeeded produces the initiator's offer. Repeated signals for the
// same attempt are ignored: one offer per attempt.
func (e *Engine) negotiationNeeded(gen uint64) {
	if gen != e.gen {
		return
	}
	if e.role != RoleInitiator || e.state != StateOfferSent || e.producing || e.localSet {
		util.LogDebug("[%s] ignoring negotiation-needed in state %s", e.id, e.state)
		return
	}
	e.produce(gen, webrtc.SDPTypeOffer)
}

// produce creates an offer or answer off the loop. Its single continuation
// re-enters the loop and is dropped if the attempt changed meanwhile.
func (e *Engine) produce(gen uint64, typ webrtc.SDPType) {
	e.producing = true
	h := e.handle

	go func() {
		var (
			desc webrtc.SessionDescription
			err  error
		)
		if typ == webrtc.SDPTypeOffer {
			desc, err = h.CreateOffer()
		} else {
			desc, err = h.CreateAnswer()
		}

		e.loop.post(func() {
			if gen != e.gen {
				util.LogDebug("[%s] dropping %s produced for a closed attempt", e.id, typ)
				return
			}
			e.producing = false
			if err != nil {
				_ = e.reject("create "+typ.String(), err)
				return
			}
			_ = e.localDescriptionReady(gen, desc)
		})
	}()
}

// localDescriptionReady applies desc locally and forwards it (trickle) or
// holds it until gathering completes (bundle).
func (e *Engine) localDescriptionReady(gen uint64, desc webrtc.SessionDescription) error {
	if gen != e.gen {
		return nil
	}
	if e.handle == nil {
		return fmt.Errorf("%w: local %s with no active negotiation", ErrUnexpectedMessage, desc.Type)
	}

	var want webrtc.SDPType
	switch e.state {
	case StateOfferSent:
		want = webrtc.SDPTypeOffer
	case StateAnswerSent:
		want = webrtc.SDPTypeAnswer
	case StateIdle, StateAwaitingAnswer, StateConnected, StateClosed:
		return e.unexpected("local %s in state %s", desc.Type, e.state)
	default:
		return e.unexpected("local %s in unknown state %s", desc.Type, e.state)
	}
	if desc.Type != want {
		return e.unexpected("local %s in state %s, want %s", desc.Type, e.state, want)
	}
	if e.localSet {
		return e.unexpected("local %s already set", desc.Type)
	}

	if err := e.handle.SetLocalDescription(desc); err != nil {
		return e.reject("apply local "+desc.Type.String(), err)
	}
	e.localSet = true
	util.LogDebug("[%s] local %s applied", e.id, desc.Type)

	if e.opts.Policy == PolicyTrickle || e.gatheringDone {
		e.sendLocalDescription()
	}
	return nil
}

// localCandidate forwards one gathered candidate, or completes gathering on nil.
func (e *Engine) localCandidate(gen uint64, c *webrtc.ICECandidateInit) {
	if gen != e.gen {
		return
	}

	if c == nil {
		util.LogDebug("[%s] finished gathering ICE candidates", e.id)
		e.gatheringDone = true
		if e.opts.Policy == PolicyBundle && e.localSet && !e.localSent {
			e.sendLocalDescription()
		}
		return
	}

	switch e.opts.Policy {
	case PolicyBundle:
		// Embedded in the description once gathering completes.
	case PolicyTrickle:
		if !e.localSent {
			e.outbox = append(e.outbox, *c)
			return
		}
		e.send(protocol.CandidateMessage(*c))
	}
}

// sendLocalDescription forwards the local description, then any candidates
// gathered before it went out.
func (e *Engine) sendLocalDescription() {
	desc := e.handle.LocalDescription()
	if desc == nil {
		util.LogError("[%s] transport has no local description to send", e.id)
		return
	}

	e.send(protocol.DescriptionMessage(*desc))
	e.localSent = true
	util.LogInfo("[%s] sent local %s (%s ICE)", e.id, desc.Type, e.opts.Policy)

	for _, c := range e.outbox {
		e.send(protocol.CandidateMessage(c))
	}
	e.outbox = nil

	if e.state == StateOfferSent {
		e.setState(StateAwaitingAnswer)
	}
}
