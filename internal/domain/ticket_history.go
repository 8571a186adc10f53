package domain

import "time"

// TransitionRecord is an immutable audit trail entry for one status change.
// FromStatus is nil only for the creation record.
type TransitionRecord struct {
	ID         string
	TicketID   string
	Sequence   int
	FromStatus *TicketStatus
	ToStatus   TicketStatus
	ActorID    string
	ActorRole  Role
	Reason     string
	Timestamp  time.Time
	Metadata   map[string]any
}

// Clone copies the record including its metadata map.
func (r TransitionRecord) Clone() TransitionRecord {
	cp := r
	if r.FromStatus != nil {
		from := *r.FromStatus
		cp.FromStatus = &from
	}
	if r.Metadata != nil {
		cp.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// AuditRecord is what the audit sink receives after a commit.
type AuditRecord struct {
	TicketID     string
	TicketNumber string
	Action       string
	ActorID      string
	ActorRole    Role
	FromStatus   *TicketStatus
	ToStatus     TicketStatus
	Reason       string
	Metadata     map[string]any
	OccurredAt   time.Time
}
