package listingstate

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/directory/internal/business/domain"
)

// State is the publication state of a listing.
type State string

const (
	PendingReview      State = "pending_review"
	Active             State = "active"
	DeactivatedByOwner State = "deactivated_by_owner"
)

type Event string

const (
	EventApprove    Event = "approve"
	EventDeactivate Event = "deactivate"
	EventReactivate Event = "reactivate"
)

var ErrInvalidTransition = errors.New("invalid_state_transition")

var transitions = map[State]map[Event]State{
	PendingReview: {
		EventApprove: Active,
	},
	Active: {
		EventDeactivate: DeactivatedByOwner,
	},
	DeactivatedByOwner: {
		EventReactivate: Active,
	},
}

// FromFlags maps the stored activation columns to a state. A listing that has
// not been approved is pending regardless of the owner flag.
func FromFlags(flags domain.StateFlags) State {
	switch {
	case !flags.IsActive:
		return PendingReview
	case flags.DeactivatedByOwner:
		return DeactivatedByOwner
	default:
		return Active
	}
}

func (s State) Flags() domain.StateFlags {
	switch s {
	case Active:
		return domain.StateFlags{IsActive: true}
	case DeactivatedByOwner:
		return domain.StateFlags{IsActive: true, DeactivatedByOwner: true}
	default:
		return domain.StateFlags{}
	}
}

// Apply returns the state reached by ev, or ErrInvalidTransition.
func (s State) Apply(ev Event) (State, error) {
	next, ok := transitions[s][ev]
	if !ok {
		return s, fmt.Errorf("%w: cannot %s a listing that is %s", ErrInvalidTransition, ev, s)
	}
	return next, nil
}

// Visible reports whether the listing is shown publicly.
func (s State) Visible() bool {
	return s == Active
}
