package domain

import (
	"fmt"
	"time"
)

// DefaultReopenWindow is how long a resident may reopen after resolution.
const DefaultReopenWindow = 7 * 24 * time.Hour

// baseTransitions is the role-independent lifecycle table.
var baseTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusAssigned, TicketStatusCancelled},
	TicketStatusAssigned:   {TicketStatusInProgress, TicketStatusCancelled, TicketStatusOpen},
	TicketStatusInProgress: {TicketStatusResolved, TicketStatusCancelled},
	TicketStatusResolved:   {TicketStatusClosed, TicketStatusReopened},
	TicketStatusClosed:     {TicketStatusReopened},
	TicketStatusReopened:   {TicketStatusAssigned, TicketStatusInProgress, TicketStatusCancelled},
	TicketStatusCancelled:  {},
}

// NextStatuses returns the statuses reachable in one step from current.
func NextStatuses(current TicketStatus) []TicketStatus {
	next := baseTransitions[current]
	out := make([]TicketStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether the base table allows current -> next.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range baseTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// isSkip reports whether target is only reachable from current through at
// least one intermediate status.
func isSkip(current, target TicketStatus) bool {
	if current == target {
		return false
	}
	seen := map[TicketStatus]bool{current: true}
	frontier := []TicketStatus{current}
	for depth := 0; len(frontier) > 0; depth++ {
		var next []TicketStatus
		for _, s := range frontier {
			for _, n := range baseTransitions[s] {
				if n == target {
					return depth >= 1
				}
				if !seen[n] {
					seen[n] = true
					next = append(next, n)
				}
			}
		}
		frontier = next
	}
	return false
}

// TransitionContext carries the caller facts the validator needs.
type TransitionContext struct {
	IsOwner           bool
	IsAssignedHandler bool
	HasReason         bool
	// SinceResolution is the time elapsed since ResolvedAt; zero when unresolved.
	SinceResolution time.Duration
}

// Decision is the validator verdict.
type Decision struct {
	Allowed bool
	Denial  DenialKind
}

// Allow returns a positive decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a negative decision with the violated rule.
func Deny(kind DenialKind) Decision { return Decision{Denial: kind} }

// TransitionValidator decides whether a role may move a ticket between
// statuses. It has no side effects.
type TransitionValidator struct {
	reopenWindow time.Duration
}

// NewTransitionValidator builds a validator; a non-positive window falls back
// to DefaultReopenWindow.
func NewTransitionValidator(reopenWindow time.Duration) TransitionValidator {
	if reopenWindow <= 0 {
		reopenWindow = DefaultReopenWindow
	}
	return TransitionValidator{reopenWindow: reopenWindow}
}

// ReopenWindow returns the configured window.
func (v TransitionValidator) ReopenWindow() time.Duration {
	if v.reopenWindow <= 0 {
		return DefaultReopenWindow
	}
	return v.reopenWindow
}

// Validate checks a requested transition. The error return is reserved for
// unknown statuses or roles; rule violations come back as a denial.
func (v TransitionValidator) Validate(current, requested TicketStatus, role Role, tc TransitionContext) (Decision, error) {
	if !current.Valid() {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownStatus, current)
	}
	if !requested.Valid() {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownStatus, requested)
	}
	if !role.Valid() {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	if !CanTransition(current, requested) {
		if role == RoleAdmin && isSkip(current, requested) {
			return Deny(DenialSkipStateNotAllowed), nil
		}
		return Deny(DenialInvalidTransition), nil
	}

	switch role {
	case RoleResident:
		return v.validateResident(current, requested, tc), nil
	case RoleHandler:
		return validateHandler(requested, tc), nil
	case RoleAdmin:
		return validateAdmin(requested, tc), nil
	}
	return Decision{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
}

func (v TransitionValidator) validateResident(current, requested TicketStatus, tc TransitionContext) Decision {
	switch requested {
	case TicketStatusCancelled:
		if !tc.IsOwner {
			return Deny(DenialNotOwnComplaint)
		}
		if current != TicketStatusOpen && current != TicketStatusAssigned {
			return Deny(DenialForbiddenForRole)
		}
		if !tc.HasReason {
			return Deny(DenialReasonRequired)
		}
		return Allow()
	case TicketStatusClosed:
		if !tc.IsOwner {
			return Deny(DenialNotOwnComplaint)
		}
		return Allow()
	case TicketStatusReopened:
		if !tc.IsOwner {
			return Deny(DenialNotOwnComplaint)
		}
		if tc.SinceResolution > v.ReopenWindow() {
			return Deny(DenialReopenWindowExpired)
		}
		if !tc.HasReason {
			return Deny(DenialReasonRequired)
		}
		return Allow()
	default:
		return Deny(DenialForbiddenForRole)
	}
}

func validateHandler(requested TicketStatus, tc TransitionContext) Decision {
	switch requested {
	case TicketStatusInProgress, TicketStatusResolved:
		if !tc.IsAssignedHandler {
			return Deny(DenialNotAssignedToActor)
		}
		return Allow()
	default:
		return Deny(DenialForbiddenForRole)
	}
}

func validateAdmin(requested TicketStatus, tc TransitionContext) Decision {
	switch requested {
	case TicketStatusCancelled, TicketStatusClosed, TicketStatusReopened:
		if !tc.HasReason {
			return Deny(DenialReasonRequired)
		}
		return Allow()
	case TicketStatusOpen, TicketStatusAssigned, TicketStatusInProgress, TicketStatusResolved:
		return Allow()
	default:
		return Deny(DenialForbiddenForRole)
	}
}
