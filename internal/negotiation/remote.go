package negotiation

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtchat/internal/protocol"
	"github.com/1ureka/rtchat/internal/util"
)

func (e *Engine) remoteMessage(raw string) error {
	msg, err := protocol.Decode(raw)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrMalformedSignal, err)
		e.report(err)
		return err
	}
	util.Stats.AddSignal()

	switch msg.Kind {
	case protocol.KindDescription:
		return e.remoteDescription(*msg.Description)
	case protocol.KindCandidate:
		return e.remoteCandidate(*msg.Candidate)
	default:
		err := fmt.Errorf("%w: unknown message kind %s", ErrMalformedSignal, msg.Kind)
		e.report(err)
		return err
	}
}

func (e *Engine) remoteDescription(desc webrtc.SessionDescription) error {
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		return e.remoteOffer(desc)
	case webrtc.SDPTypeAnswer:
		return e.remoteAnswer(desc)
	default:
		return e.unexpected("remote %s description", desc.Type)
	}
}

// remoteOffer bootstraps the responder side when no transport exists yet,
// applies the offer and produces the answer.
func (e *Engine) remoteOffer(desc webrtc.SessionDescription) error {
	switch e.state {
	case StateIdle, StateClosed:
		if e.handle == nil {
			if err := e.start(RoleResponder); err != nil {
				return err
			}
		}
	case StateOfferSent, StateAwaitingAnswer:
		// Both sides started as initiator. Keep ours; the peer has to restart.
		return e.unexpected("remote offer while %s as %s", e.state, e.role)
	case StateAnswerSent, StateConnected:
		return e.unexpected("remote offer while %s", e.state)
	default:
		return e.unexpected("remote offer in unknown state %s", e.state)
	}

	if err := e.handle.SetRemoteDescription(desc); err != nil {
		return e.reject("apply remote offer", err)
	}
	e.remoteApplied = true
	util.LogInfo("[%s] remote offer applied, answering", e.id)

	e.setState(StateAnswerSent)
	e.flushPending()
	e.produce(e.gen, webrtc.SDPTypeAnswer)
	return nil
}

func (e *Engine) remoteAnswer(desc webrtc.SessionDescription) error {
	switch e.state {
	case StateOfferSent, StateAwaitingAnswer:
		if e.remoteApplied {
			return e.unexpected("duplicate remote answer")
		}
		if !e.localSet {
			return e.unexpected("remote answer before the local offer was set")
		}
	case StateAnswerSent:
		return e.unexpected("remote answer while %s: this side already answered", e.state)
	case StateIdle, StateConnected, StateClosed:
		return e.unexpected("remote answer while %s", e.state)
	default:
		return e.unexpected("remote answer in unknown state %s", e.state)
	}

	if err := e.handle.SetRemoteDescription(desc); err != nil {
		return e.reject("apply remote answer", err)
	}
	e.remoteApplied = true
	util.LogInfo("[%s] remote answer applied, waiting for the data channel", e.id)

	e.flushPending()
	return nil
}

// remoteCandidate applies c, or buffers it until the remote description is
// applied. Candidates for a closed attempt are discarded.
func (e *Engine) remoteCandidate(c webrtc.ICECandidateInit) error {
	switch e.state {
	case StateClosed:
		util.LogDebug("[%s] discarding candidate for a closed negotiation", e.id)
		return nil
	case StateIdle, StateOfferSent, StateAwaitingAnswer, StateAnswerSent, StateConnected:
	default:
		return e.unexpected("remote candidate in unknown state %s", e.state)
	}

	if !e.remoteApplied {
		if len(e.pending) >= maxPendingCandidates {
			return e.unexpected("too many candidates before a remote description, dropping")
		}
		e.pending = append(e.pending, c)
		util.LogDebug("[%s] buffered remote candidate (%d pending)", e.id, len(e.pending))
		return nil
	}
	return e.applyCandidate(c)
}

func (e *Engine) applyCandidate(c webrtc.ICECandidateInit) error {
	if err := e.handle.AddRemoteCandidate(c); err != nil {
		err = fmt.Errorf("%w: %v", ErrCandidateRejected, err)
		e.report(err)
		return err
	}
	util.LogDebug("[%s] remote candidate applied: %s", e.id, c.Candidate)
	return nil
}

// flushPending applies every buffered candidate exactly once.
func (e *Engine) flushPending() {
	pending := e.pending
	e.pending = nil
	for _, c := range pending {
		_ = e.applyCandidate(c)
	}
}
