package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/domain"
)

func newStoredTicket(t *testing.T, repo *MemoryTicketRepository) *domain.Ticket {
	t.Helper()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	ticket := &domain.Ticket{
		ID:          "t1",
		OwnerID:     "res-1",
		Status:      domain.TicketStatusOpen,
		Priority:    domain.TicketPriorityHigh,
		SLADeadline: now.Add(24 * time.Hour),
		CreatedAt:   now,
		Version:     1,
		History: []domain.TransitionRecord{
			{ID: "r1", TicketID: "t1", Sequence: 1, ToStatus: domain.TicketStatusOpen, Timestamp: now},
		},
	}
	require.NoError(t, repo.Create(context.Background(), ticket))
	return ticket
}

func TestMemoryTicketRepository_CommitTransitionChecksVersion(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	ticket := newStoredTicket(t, repo)

	from := domain.TicketStatusOpen
	record := domain.TransitionRecord{ID: "r2", TicketID: "t1", Sequence: 2, FromStatus: &from, ToStatus: domain.TicketStatusAssigned}
	updated := ticket.Clone()
	updated.Status = domain.TicketStatusAssigned
	updated.Version = 2

	require.NoError(t, repo.CommitTransition(ctx, updated, record, 1))

	// Same expected version again loses.
	err := repo.CommitTransition(ctx, updated, record, 1)
	assert.ErrorIs(t, err, ErrVersionConflict)

	stored, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, stored.Status)
	require.Len(t, stored.History, 2)
	assert.Equal(t, 2, stored.History[1].Sequence)
}

func TestMemoryTicketRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	newStoredTicket(t, repo)

	got, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	got.Status = domain.TicketStatusClosed
	got.History[0].Reason = "tampered"

	again, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, again.Status)
	assert.Empty(t, again.History[0].Reason)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTicketRepository_ListOverdue(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	ticket := newStoredTicket(t, repo)

	list, err := repo.ListOverdue(ctx, ticket.SLADeadline.Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = repo.ListOverdue(ctx, ticket.SLADeadline.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "t1", list[0].ID)
}

func TestMemoryUserDirectory_ListActiveByRole(t *testing.T) {
	dir := NewMemoryUserDirectory(
		domain.Recipient{ID: "a2", Role: domain.RoleAdmin},
		domain.Recipient{ID: "a1", Role: domain.RoleAdmin},
		domain.Recipient{ID: "a3", Role: domain.RoleAdmin, Status: domain.UserStatusSuspended},
		domain.Recipient{ID: "r1", Role: domain.RoleResident},
	)
	ids, err := dir.ListActiveByRole(context.Background(), domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, ids)

	_, err = dir.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
