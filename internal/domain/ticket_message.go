package domain

import "time"

// TicketMessageType differentiates resident-facing comments from staff work logs.
type TicketMessageType string

const (
	MessageTypeComment    TicketMessageType = "COMMENT"
	MessageTypeWorkUpdate TicketMessageType = "WORK_UPDATE"
)

// TicketMessage captures communications in a complaint thread.
type TicketMessage struct {
	ID          string
	TicketID    string
	AuthorID    string
	AuthorRole  Role
	MessageType TicketMessageType
	Body        string
	CreatedAt   time.Time
}
