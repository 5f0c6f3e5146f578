package negotiation

import "errors"

var (
	// ErrAlreadyStarted is returned by Start while an attempt is in progress.
	ErrAlreadyStarted = errors.New("negotiation already started")

	// ErrMalformedSignal wraps protocol.ErrMalformed for lines that could not
	// be parsed. State is left untouched.
	ErrMalformedSignal = errors.New("malformed signal")

	// ErrUnexpectedMessage marks a valid message that does not apply in the
	// current state. State is left untouched.
	ErrUnexpectedMessage = errors.New("unexpected signaling message")

	// ErrDescriptionRejected means the transport refused to create or apply a
	// description. The attempt is closed.
	ErrDescriptionRejected = errors.New("session description rejected")

	// ErrCandidateRejected means the transport refused one remote candidate.
	// Informational only.
	ErrCandidateRejected = errors.New("ice candidate rejected")

	// ErrConnectionFailed means ICE or DTLS gave up. The attempt is closed.
	ErrConnectionFailed = errors.New("peer connection failed")

	// ErrStopped is returned by every call after Shutdown.
	ErrStopped = errors.New("negotiation engine stopped")
)
