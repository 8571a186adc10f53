package events

import (
	"time"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTicketTransitioned EventType = "ticket_transitioned"
	EventTicketAssigned     EventType = "ticket_assigned"
	EventCommentAdded       EventType = "comment_added"
	EventWorkUpdateAdded    EventType = "work_update_added"
)

// AllEventTypes lists every event type the service emits.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketTransitioned,
	EventTicketAssigned,
	EventCommentAdded,
	EventWorkUpdateAdded,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string      `json:"id"`
	Role domain.Role `json:"role"`
}

// TicketRef is the ticket state an event was produced against. It carries
// enough to resolve an audience without another lookup.
type TicketRef struct {
	ID                string                `json:"id"`
	Number            string                `json:"number"`
	OwnerID           string                `json:"owner_id"`
	AssignedHandlerID *string               `json:"assigned_handler_id,omitempty"`
	Status            domain.TicketStatus   `json:"status"`
	Priority          domain.TicketPriority `json:"priority"`
	Title             string                `json:"title"`
}

// RefFromTicket snapshots the fields of t an event needs.
func RefFromTicket(t *domain.Ticket) TicketRef {
	ref := TicketRef{
		ID:       t.ID,
		Number:   t.TicketNumber,
		OwnerID:  t.OwnerID,
		Status:   t.Status,
		Priority: t.Priority,
		Title:    t.Title,
	}
	if t.AssignedHandlerID != nil {
		handler := *t.AssignedHandlerID
		ref.AssignedHandlerID = &handler
	}
	return ref
}

// Event represents a domain event emitted after a committed change.
// ID is stable and used for delivery idempotency.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Ticket    TicketRef `json:"ticket"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Priority    domain.TicketPriority `json:"priority"`
	Category    string                `json:"category,omitempty"`
	UnitID      string                `json:"unit_id,omitempty"`
	SLADeadline time.Time             `json:"sla_deadline"`
}

// TicketTransitionedPayload payload.
type TicketTransitionedPayload struct {
	FromStatus domain.TicketStatus `json:"from_status"`
	ToStatus   domain.TicketStatus `json:"to_status"`
	Reason     string              `json:"reason,omitempty"`
	// PreviousHandlerID is set when the transition removed or replaced the handler.
	PreviousHandlerID *string `json:"previous_handler_id,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	HandlerID         string  `json:"handler_id"`
	PreviousHandlerID *string `json:"previous_handler_id,omitempty"`
}

// MessageAddedPayload is shared by comment and work update events.
type MessageAddedPayload struct {
	MessageID   string      `json:"message_id"`
	AuthorID    string      `json:"author_id"`
	AuthorRole  domain.Role `json:"author_role"`
	BodyPreview string      `json:"body_preview"`
}
