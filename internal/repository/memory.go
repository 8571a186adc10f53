package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// MemoryTicketRepository keeps tickets in process memory. It is used when no
// database is configured and in tests.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]*domain.Ticket
}

// NewMemoryTicketRepository creates an empty store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{tickets: make(map[string]*domain.Ticket)}
}

func (r *MemoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tickets[ticket.ID]; exists {
		return ErrVersionConflict
	}
	r.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (r *MemoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ticket.Clone(), nil
}

func (r *MemoryTicketRepository) CommitTransition(_ context.Context, ticket *domain.Ticket, record domain.TransitionRecord, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion || record.Sequence != len(stored.History)+1 {
		return ErrVersionConflict
	}
	next := ticket.Clone()
	next.History = append(stored.Clone().History, record.Clone())
	r.tickets[ticket.ID] = next
	return nil
}

func (r *MemoryTicketRepository) ListHistory(_ context.Context, ticketID string) ([]domain.TransitionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	return ticket.Clone().History, nil
}

func (r *MemoryTicketRepository) ListOverdue(_ context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sla domain.SLATracker
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if sla.Overdue(ticket, now) {
			cp := ticket.Clone()
			cp.History = nil
			result = append(result, *cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SLADeadline.Before(result[j].SLADeadline)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MemoryMessageRepository keeps complaint messages in memory.
type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages map[string][]domain.TicketMessage
}

// NewMemoryMessageRepository creates an empty store.
func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{messages: make(map[string][]domain.TicketMessage)}
}

func (r *MemoryMessageRepository) Create(_ context.Context, msg *domain.TicketMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.TicketID] = append(r.messages[msg.TicketID], *msg)
	return nil
}

func (r *MemoryMessageRepository) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.TicketMessage(nil), r.messages[ticketID]...), nil
}

// MemoryUserDirectory is a static directory, seeded via Put.
type MemoryUserDirectory struct {
	mu    sync.RWMutex
	users map[string]domain.Recipient
}

// NewMemoryUserDirectory creates a directory with the given recipients.
func NewMemoryUserDirectory(recipients ...domain.Recipient) *MemoryUserDirectory {
	d := &MemoryUserDirectory{users: make(map[string]domain.Recipient)}
	for _, rec := range recipients {
		d.Put(rec)
	}
	return d
}

// Put inserts or replaces a recipient.
func (d *MemoryUserDirectory) Put(rec domain.Recipient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec.Status == "" {
		rec.Status = domain.UserStatusActive
	}
	d.users[rec.ID] = rec
}

func (d *MemoryUserDirectory) Get(_ context.Context, userID string) (*domain.Recipient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (d *MemoryUserDirectory) ListActiveByRole(_ context.Context, role domain.Role) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var ids []string
	for id, rec := range d.users {
		if rec.Role == role && rec.Status == domain.UserStatusActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// MemoryAuditLog collects audit records in memory.
type MemoryAuditLog struct {
	mu      sync.Mutex
	records []domain.AuditRecord
}

// NewMemoryAuditLog creates an empty log.
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

func (l *MemoryAuditLog) Append(_ context.Context, record domain.AuditRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, record)
	return nil
}

// Records returns a copy of everything appended so far.
func (l *MemoryAuditLog) Records() []domain.AuditRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.AuditRecord(nil), l.records...)
}
