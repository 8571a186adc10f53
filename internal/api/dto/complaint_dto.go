package dto

import (
	"time"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// CreateComplaintRequest payload.
type CreateComplaintRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    string                `json:"category"`
	UnitID      string                `json:"unit_id"`
	Priority    domain.TicketPriority `json:"priority"`
}

// TransitionRequest asks for a status change.
type TransitionRequest struct {
	ToStatus   string         `json:"to_status"`
	Reason     string         `json:"reason"`
	AssigneeID string         `json:"assignee_id"`
	Metadata   map[string]any `json:"metadata"`
}

// AssignRequest payload.
type AssignRequest struct {
	HandlerID string `json:"handler_id"`
	Reason    string `json:"reason"`
}

// CreateMessageRequest payload for comments and work updates.
type CreateMessageRequest struct {
	Body string `json:"body"`
}

// ComplaintResponse is the full complaint view.
type ComplaintResponse struct {
	ID                string                `json:"id"`
	TicketNumber      string                `json:"ticket_number"`
	OwnerID           string                `json:"owner_id"`
	AssignedHandlerID *string               `json:"assigned_handler_id"`
	UnitID            string                `json:"unit_id"`
	Title             string                `json:"title"`
	Description       string                `json:"description"`
	Category          string                `json:"category"`
	Status            domain.TicketStatus   `json:"status"`
	Priority          domain.TicketPriority `json:"priority"`
	SLADeadline       time.Time             `json:"sla_deadline"`
	SLABreached       bool                  `json:"sla_breached"`
	ResolutionHours   *float64              `json:"resolution_hours"`
	ReopenCount       int                   `json:"reopen_count"`
	AssignedAt        *time.Time            `json:"assigned_at"`
	StartedAt         *time.Time            `json:"started_at"`
	ResolvedAt        *time.Time            `json:"resolved_at"`
	ClosedAt          *time.Time            `json:"closed_at"`
	CancelledAt       *time.Time            `json:"cancelled_at"`
	ReopenedAt        *time.Time            `json:"reopened_at"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
	Version           int                   `json:"version"`
}

// TransitionRecordResponse is one history entry.
type TransitionRecordResponse struct {
	ID         string               `json:"id"`
	Sequence   int                  `json:"sequence"`
	FromStatus *domain.TicketStatus `json:"from_status"`
	ToStatus   domain.TicketStatus  `json:"to_status"`
	ActorID    string               `json:"actor_id"`
	ActorRole  domain.Role          `json:"actor_role"`
	Reason     string               `json:"reason,omitempty"`
	Metadata   map[string]any       `json:"metadata,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
}

// MessageResponse represents a thread message.
type MessageResponse struct {
	ID          string                   `json:"id"`
	TicketID    string                   `json:"ticket_id"`
	MessageType domain.TicketMessageType `json:"message_type"`
	AuthorID    string                   `json:"author_id"`
	AuthorRole  domain.Role              `json:"author_role"`
	Body        string                   `json:"body"`
	CreatedAt   time.Time                `json:"created_at"`
}

// FromTicket maps a domain complaint to its response.
func FromTicket(t *domain.Ticket) ComplaintResponse {
	return ComplaintResponse{
		ID:                t.ID,
		TicketNumber:      t.TicketNumber,
		OwnerID:           t.OwnerID,
		AssignedHandlerID: t.AssignedHandlerID,
		UnitID:            t.UnitID,
		Title:             t.Title,
		Description:       t.Description,
		Category:          t.Category,
		Status:            t.Status,
		Priority:          t.Priority,
		SLADeadline:       t.SLADeadline,
		SLABreached:       t.SLABreached,
		ResolutionHours:   t.ResolutionHours,
		ReopenCount:       t.ReopenCount,
		AssignedAt:        t.AssignedAt,
		StartedAt:         t.StartedAt,
		ResolvedAt:        t.ResolvedAt,
		ClosedAt:          t.ClosedAt,
		CancelledAt:       t.CancelledAt,
		ReopenedAt:        t.ReopenedAt,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		Version:           t.Version,
	}
}

// FromHistory maps transition records.
func FromHistory(records []domain.TransitionRecord) []TransitionRecordResponse {
	out := make([]TransitionRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, TransitionRecordResponse{
			ID:         r.ID,
			Sequence:   r.Sequence,
			FromStatus: r.FromStatus,
			ToStatus:   r.ToStatus,
			ActorID:    r.ActorID,
			ActorRole:  r.ActorRole,
			Reason:     r.Reason,
			Metadata:   r.Metadata,
			Timestamp:  r.Timestamp,
		})
	}
	return out
}

// FromMessage maps a thread message.
func FromMessage(m *domain.TicketMessage) MessageResponse {
	return MessageResponse{
		ID:          m.ID,
		TicketID:    m.TicketID,
		MessageType: m.MessageType,
		AuthorID:    m.AuthorID,
		AuthorRole:  m.AuthorRole,
		Body:        m.Body,
		CreatedAt:   m.CreatedAt,
	}
}
