package domain

import (
	"errors"
	"fmt"
)

// DenialKind names the rule a rejected request violated.
type DenialKind string

const (
	DenialInvalidTransition      DenialKind = "INVALID_TRANSITION"
	DenialForbiddenForRole       DenialKind = "FORBIDDEN_FOR_ROLE"
	DenialNotOwnComplaint        DenialKind = "NOT_OWN_COMPLAINT"
	DenialNotAssignedToActor     DenialKind = "NOT_ASSIGNED_TO_ACTOR"
	DenialReasonRequired         DenialKind = "REASON_REQUIRED"
	DenialReopenWindowExpired    DenialKind = "REOPEN_WINDOW_EXPIRED"
	DenialSkipStateNotAllowed    DenialKind = "SKIP_STATE_NOT_ALLOWED"
	DenialTicketNotFound         DenialKind = "TICKET_NOT_FOUND"
	DenialPersistenceError       DenialKind = "PERSISTENCE_ERROR"
	DenialAssigneeRequired       DenialKind = "ASSIGNEE_REQUIRED"
	DenialConcurrentModification DenialKind = "CONCURRENT_MODIFICATION"
)

var denialMessages = map[DenialKind]string{
	DenialInvalidTransition:      "transition not allowed from current status",
	DenialForbiddenForRole:       "role may not perform this transition",
	DenialNotOwnComplaint:        "complaint belongs to another resident",
	DenialNotAssignedToActor:     "complaint is not assigned to you",
	DenialReasonRequired:         "a reason is required for this transition",
	DenialReopenWindowExpired:    "reopen window has expired",
	DenialSkipStateNotAllowed:    "intermediate states may not be skipped",
	DenialTicketNotFound:         "complaint not found",
	DenialPersistenceError:       "complaint could not be saved, retry later",
	DenialAssigneeRequired:       "an assignee is required",
	DenialConcurrentModification: "complaint changed concurrently, reload and retry",
}

// Message returns a short human-readable explanation of the kind.
func (k DenialKind) Message() string {
	if msg, ok := denialMessages[k]; ok {
		return msg
	}
	return string(k)
}

// ErrUnknownStatus and ErrUnknownRole are programmer errors, never denials.
var (
	ErrUnknownStatus   = errors.New("unknown ticket status")
	ErrUnknownRole     = errors.New("unknown role")
	ErrUnknownPriority = errors.New("unknown ticket priority")
)

// TransitionError reports a denied or failed lifecycle request.
type TransitionError struct {
	Kind DenialKind
	From TicketStatus
	To   TicketStatus
	Err  error
}

// NewTransitionError builds a denial for the given transition.
func NewTransitionError(kind DenialKind, from, to TicketStatus) *TransitionError {
	return &TransitionError{Kind: kind, From: from, To: to}
}

func (e *TransitionError) Error() string {
	msg := e.Kind.Message()
	if e.From != "" || e.To != "" {
		msg = fmt.Sprintf("%s (%s -> %s)", msg, e.From, e.To)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the same request.
func (e *TransitionError) Retryable() bool {
	return e.Kind == DenialPersistenceError || e.Kind == DenialConcurrentModification
}

// DenialOf extracts the denial kind from err, if any.
func DenialOf(err error) (DenialKind, bool) {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}
