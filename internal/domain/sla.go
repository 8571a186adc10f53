package domain

import (
	"fmt"
	"math"
	"time"
)

var slaTargets = map[TicketPriority]time.Duration{
	TicketPriorityEmergency: 2 * time.Hour,
	TicketPriorityHigh:      24 * time.Hour,
	TicketPriorityMedium:    72 * time.Hour,
	TicketPriorityLow:       168 * time.Hour,
}

// SLATracker derives deadline and resolution metrics. Stateless.
type SLATracker struct{}

// Target returns the resolution target for a priority.
func (SLATracker) Target(priority TicketPriority) (time.Duration, error) {
	target, ok := slaTargets[priority]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPriority, priority)
	}
	return target, nil
}

// DeadlineFor returns createdAt plus the priority target.
func (s SLATracker) DeadlineFor(priority TicketPriority, createdAt time.Time) (time.Time, error) {
	target, err := s.Target(priority)
	if err != nil {
		return time.Time{}, err
	}
	return createdAt.Add(target), nil
}

// Breached reports whether resolution happened after the deadline.
func (SLATracker) Breached(deadline, resolvedAt time.Time) bool {
	return resolvedAt.After(deadline)
}

// ResolutionHours returns elapsed hours rounded to one decimal.
func (SLATracker) ResolutionHours(createdAt, resolvedAt time.Time) float64 {
	hours := resolvedAt.Sub(createdAt).Hours()
	return math.Round(hours*10) / 10
}

// Overdue reports whether an unresolved ticket is past its deadline at now.
func (SLATracker) Overdue(t *Ticket, now time.Time) bool {
	switch t.Status {
	case TicketStatusResolved, TicketStatusClosed, TicketStatusCancelled:
		return false
	}
	return now.After(t.SLADeadline)
}
