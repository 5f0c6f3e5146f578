package negotiation

import "fmt"

// Role is fixed for the lifetime of one negotiation attempt.
type Role uint8

const (
	RoleNone      Role = iota
	RoleInitiator      // creates the data channel and the offer
	RoleResponder      // waits for an offer and answers it
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// State is the negotiation progress of one peer relationship.
type State uint8

const (
	StateIdle           State = iota // no offer or answer exchanged yet
	StateOfferSent                   // initiator started; offer being produced
	StateAwaitingAnswer              // offer forwarded to the peer
	StateAnswerSent                  // remote offer applied; answer produced or forwarded
	StateConnected                   // data channel open
	StateClosed                      // attempt over; Start is allowed again
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferSent:
		return "offer-sent"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateAnswerSent:
		return "answer-sent"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Policy decides how local ICE candidates reach the peer. Both peers must use
// the same policy.
type Policy uint8

const (
	// PolicyTrickle forwards every candidate as it is gathered, always after
	// the local description it belongs to.
	PolicyTrickle Policy = iota

	// PolicyBundle holds the local description until gathering completes and
	// forwards it once with every candidate embedded. One message per side,
	// which is what makes copy-paste signaling bearable.
	PolicyBundle
)

func (p Policy) String() string {
	switch p {
	case PolicyTrickle:
		return "trickle"
	case PolicyBundle:
		return "bundle"
	default:
		return fmt.Sprintf("Policy(%d)", uint8(p))
	}
}

// ParsePolicy maps "trickle" or "bundle" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "trickle", "":
		return PolicyTrickle, nil
	case "bundle":
		return PolicyBundle, nil
	default:
		return 0, fmt.Errorf("unknown candidate policy %q (want trickle or bundle)", s)
	}
}
