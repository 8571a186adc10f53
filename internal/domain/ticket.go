package domain

import (
	"fmt"
	"time"
)

// TicketStatus enumerates lifecycle states for complaints.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusAssigned   TicketStatus = "ASSIGNED"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
	TicketStatusCancelled  TicketStatus = "CANCELLED"
	TicketStatusReopened   TicketStatus = "REOPENED"
)

// AllStatuses lists every status in declaration order.
var AllStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusAssigned,
	TicketStatusInProgress,
	TicketStatusResolved,
	TicketStatusClosed,
	TicketStatusCancelled,
	TicketStatusReopened,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusAssigned, TicketStatusInProgress, TicketStatusResolved,
		TicketStatusClosed, TicketStatusCancelled, TicketStatusReopened:
		return true
	}
	return false
}

// ParseTicketStatus converts user input into a TicketStatus.
func ParseTicketStatus(raw string) (TicketStatus, error) {
	s := TicketStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown ticket status %q", raw)
	}
	return s, nil
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow       TicketPriority = "LOW"
	TicketPriorityMedium    TicketPriority = "MEDIUM"
	TicketPriorityHigh      TicketPriority = "HIGH"
	TicketPriorityEmergency TicketPriority = "EMERGENCY"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityEmergency:
		return true
	}
	return false
}

// Ticket is the aggregate root for a resident complaint.
type Ticket struct {
	ID                string
	TicketNumber      string
	OwnerID           string
	AssignedHandlerID *string
	UnitID            string
	Title             string
	Description       string
	Category          string
	Status            TicketStatus
	Priority          TicketPriority
	History           []TransitionRecord

	SLADeadline     time.Time
	SLABreached     bool
	ResolutionHours *float64

	ReopenCount int
	AssignedAt  *time.Time
	StartedAt   *time.Time
	ResolvedAt  *time.Time
	ClosedAt    *time.Time
	CancelledAt *time.Time
	ReopenedAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int
}

// IsOwnedBy reports whether userID created the ticket.
func (t *Ticket) IsOwnedBy(userID string) bool {
	return userID != "" && t.OwnerID == userID
}

// IsAssignedTo reports whether userID is the active handler.
func (t *Ticket) IsAssignedTo(userID string) bool {
	return userID != "" && t.AssignedHandlerID != nil && *t.AssignedHandlerID == userID
}

// LastRecord returns the most recent history entry.
func (t *Ticket) LastRecord() (TransitionRecord, bool) {
	if len(t.History) == 0 {
		return TransitionRecord{}, false
	}
	return t.History[len(t.History)-1], true
}

// Clone returns a deep copy safe to hand to callers.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	cp.AssignedHandlerID = cloneString(t.AssignedHandlerID)
	cp.ResolutionHours = cloneFloat(t.ResolutionHours)
	cp.AssignedAt = cloneTime(t.AssignedAt)
	cp.StartedAt = cloneTime(t.StartedAt)
	cp.ResolvedAt = cloneTime(t.ResolvedAt)
	cp.ClosedAt = cloneTime(t.ClosedAt)
	cp.CancelledAt = cloneTime(t.CancelledAt)
	cp.ReopenedAt = cloneTime(t.ReopenedAt)
	cp.History = make([]TransitionRecord, len(t.History))
	for i := range t.History {
		cp.History[i] = t.History[i].Clone()
	}
	return &cp
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
