package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/repository"
)

const (
	residentID = "res-1"
	otherID    = "res-2"
	handlerID  = "hdl-1"
	adminID    = "adm-1"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) handle(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) types() []events.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.EventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc   *TicketService
	repo  *repository.MemoryTicketRepository
	audit *repository.MemoryAuditLog
	log   *eventLog
	clock *fakeClock
}

func newFixture(t *testing.T, wrap func(repository.TicketRepository) repository.TicketRepository) *fixture {
	t.Helper()
	f := &fixture{
		repo:  repository.NewMemoryTicketRepository(),
		audit: repository.NewMemoryAuditLog(),
		log:   &eventLog{},
		clock: &fakeClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)},
	}
	var tickets repository.TicketRepository = f.repo
	if wrap != nil {
		tickets = wrap(tickets)
	}
	bus := events.NewInMemoryDispatcher(nil)
	bus.SubscribeAll(f.log.handle)
	f.svc = NewTicketService(TicketDependencies{
		TicketRepo:   tickets,
		MessageRepo:  repository.NewMemoryMessageRepository(),
		Audit:        f.audit,
		Dispatcher:   bus,
		ReopenWindow: domain.DefaultReopenWindow,
		Clock:        f.clock.Now,
	})
	return f
}

func (f *fixture) create(t *testing.T, priority domain.TicketPriority) *domain.Ticket {
	t.Helper()
	ticket, err := f.svc.Create(context.Background(), CreateInput{
		OwnerID:  residentID,
		Priority: priority,
		Title:    "Water leak in bathroom",
		UnitID:   "unit-12",
	})
	require.NoError(t, err)
	return ticket
}

func (f *fixture) move(t *testing.T, id string, to domain.TicketStatus, actor string, role domain.Role, reason string) *domain.Ticket {
	t.Helper()
	ticket, err := f.svc.RequestTransition(context.Background(), TransitionRequest{
		TicketID: id, ToStatus: to, ActorID: actor, ActorRole: role, Reason: reason,
	})
	require.NoError(t, err)
	return ticket
}

func (f *fixture) resolved(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket := f.create(t, domain.TicketPriorityHigh)
	_, err := f.svc.Assign(context.Background(), ticket.ID, handlerID, adminID, domain.RoleAdmin, "")
	require.NoError(t, err)
	f.move(t, ticket.ID, domain.TicketStatusInProgress, handlerID, domain.RoleHandler, "")
	return f.move(t, ticket.ID, domain.TicketStatusResolved, handlerID, domain.RoleHandler, "")
}

func requireDenial(t *testing.T, err error, kind domain.DenialKind) {
	t.Helper()
	require.Error(t, err)
	got, ok := domain.DenialOf(err)
	require.True(t, ok, "expected a transition error, got %v", err)
	assert.Equal(t, kind, got)
}

func TestTicketService_Create(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.create(t, domain.TicketPriorityEmergency)

	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Regexp(t, `^CMP-[0-9A-F]{8}$`, ticket.TicketNumber)
	assert.Equal(t, ticket.CreatedAt.Add(2*time.Hour), ticket.SLADeadline)
	require.Len(t, ticket.History, 1)
	assert.Nil(t, ticket.History[0].FromStatus)
	assert.Equal(t, 1, ticket.History[0].Sequence)
	assert.Equal(t, []events.EventType{events.EventTicketCreated}, f.log.types())
	assert.Len(t, f.audit.Records(), 1)

	_, err := f.svc.Create(context.Background(), CreateInput{OwnerID: residentID})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.Create(context.Background(), CreateInput{OwnerID: residentID, Title: "x", Priority: "URGENT"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTicketService_EndToEndLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ticket := f.create(t, domain.TicketPriorityHigh)

	assigned, err := f.svc.Assign(ctx, ticket.ID, handlerID, adminID, domain.RoleAdmin, "")
	require.NoError(t, err)
	assert.Equal(t, handlerID, *assigned.AssignedHandlerID)
	assert.NotNil(t, assigned.AssignedAt)

	f.move(t, ticket.ID, domain.TicketStatusInProgress, handlerID, domain.RoleHandler, "")
	f.clock.Advance(30 * time.Hour)
	resolved := f.move(t, ticket.ID, domain.TicketStatusResolved, handlerID, domain.RoleHandler, "")
	assert.True(t, resolved.SLABreached)
	require.NotNil(t, resolved.ResolutionHours)
	assert.Equal(t, 30.0, *resolved.ResolutionHours)

	closed := f.move(t, ticket.ID, domain.TicketStatusClosed, residentID, domain.RoleResident, "")
	assert.NotNil(t, closed.ClosedAt)

	reopened := f.move(t, ticket.ID, domain.TicketStatusReopened, residentID, domain.RoleResident, "still leaking")
	assert.Equal(t, 1, reopened.ReopenCount)
	assert.Nil(t, reopened.ResolvedAt)
	assert.Nil(t, reopened.ResolutionHours)
	assert.False(t, reopened.SLABreached)
	assert.Equal(t, handlerID, *reopened.AssignedHandlerID)

	history, err := f.svc.History(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 6)
	for i, rec := range history {
		assert.Equal(t, i+1, rec.Sequence)
		if i > 0 {
			require.NotNil(t, rec.FromStatus)
			assert.Equal(t, history[i-1].ToStatus, *rec.FromStatus)
			assert.False(t, rec.Timestamp.Before(history[i-1].Timestamp))
		}
	}
	last, ok := reopened.LastRecord()
	require.True(t, ok)
	assert.Equal(t, reopened.Status, last.ToStatus)
	assert.Equal(t, history[len(history)-1].ID, last.ID)
	assert.Equal(t, "still leaking", history[5].Reason)

	assert.Equal(t, []events.EventType{
		events.EventTicketCreated,
		events.EventTicketTransitioned,
		events.EventTicketAssigned,
		events.EventTicketTransitioned,
		events.EventTicketTransitioned,
		events.EventTicketTransitioned,
		events.EventTicketTransitioned,
	}, f.log.types())
	assert.Len(t, f.audit.Records(), 6)
}

func TestTicketService_UnassignNotifiesRemovedHandler(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ticket := f.create(t, domain.TicketPriorityLow)
	_, err := f.svc.Assign(ctx, ticket.ID, handlerID, adminID, domain.RoleAdmin, "")
	require.NoError(t, err)

	unassigned := f.move(t, ticket.ID, domain.TicketStatusOpen, adminID, domain.RoleAdmin, "wrong trade")
	assert.Nil(t, unassigned.AssignedHandlerID)
	last, ok := unassigned.LastRecord()
	require.True(t, ok)
	assert.Equal(t, 3, last.Sequence)
	assert.Equal(t, domain.TicketStatusOpen, last.ToStatus)

	f.log.mu.Lock()
	defer f.log.mu.Unlock()
	var payloads []events.TicketTransitionedPayload
	for _, e := range f.log.events {
		if p, ok := e.Payload.(events.TicketTransitionedPayload); ok {
			payloads = append(payloads, p)
		}
	}
	require.Len(t, payloads, 2)
	assert.Nil(t, payloads[0].PreviousHandlerID, "first assignment replaces nobody")
	require.NotNil(t, payloads[1].PreviousHandlerID)
	assert.Equal(t, handlerID, *payloads[1].PreviousHandlerID)
}

func TestTicketService_ReopenWindowBoundary(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		denial  domain.DenialKind
	}{
		{name: "just inside", elapsed: 7*24*time.Hour - time.Second},
		{name: "exactly at window", elapsed: 7 * 24 * time.Hour},
		{name: "just outside", elapsed: 7*24*time.Hour + time.Second, denial: domain.DenialReopenWindowExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			ticket := f.resolved(t)
			f.clock.Advance(tt.elapsed)

			_, err := f.svc.RequestTransition(context.Background(), TransitionRequest{
				TicketID: ticket.ID, ToStatus: domain.TicketStatusReopened,
				ActorID: residentID, ActorRole: domain.RoleResident, Reason: "not fixed",
			})
			if tt.denial == "" {
				assert.NoError(t, err)
				return
			}
			requireDenial(t, err, tt.denial)
		})
	}
}

func TestTicketService_Denials(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ticket := f.create(t, domain.TicketPriorityMedium)
	before := len(f.log.types())

	cases := []struct {
		name string
		req  TransitionRequest
		kind domain.DenialKind
	}{
		{"admin skips to in progress", TransitionRequest{ToStatus: domain.TicketStatusInProgress, ActorID: adminID, ActorRole: domain.RoleAdmin}, domain.DenialSkipStateNotAllowed},
		{"resident jumps to resolved", TransitionRequest{ToStatus: domain.TicketStatusResolved, ActorID: residentID, ActorRole: domain.RoleResident}, domain.DenialInvalidTransition},
		{"resident cancels without reason", TransitionRequest{ToStatus: domain.TicketStatusCancelled, ActorID: residentID, ActorRole: domain.RoleResident}, domain.DenialReasonRequired},
		{"other resident cancels", TransitionRequest{ToStatus: domain.TicketStatusCancelled, ActorID: otherID, ActorRole: domain.RoleResident, Reason: "x"}, domain.DenialNotOwnComplaint},
		{"handler assigns", TransitionRequest{ToStatus: domain.TicketStatusAssigned, ActorID: handlerID, ActorRole: domain.RoleHandler, AssigneeID: handlerID}, domain.DenialForbiddenForRole},
		{"admin assigns nobody", TransitionRequest{ToStatus: domain.TicketStatusAssigned, ActorID: adminID, ActorRole: domain.RoleAdmin}, domain.DenialAssigneeRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.TicketID = ticket.ID
			_, err := f.svc.RequestTransition(ctx, tc.req)
			requireDenial(t, err, tc.kind)
		})
	}

	stored, err := f.svc.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, stored.Status)
	assert.Len(t, stored.History, 1)
	assert.Len(t, f.log.types(), before)

	_, err = f.svc.RequestTransition(ctx, TransitionRequest{TicketID: "missing", ToStatus: domain.TicketStatusCancelled, ActorID: adminID, ActorRole: domain.RoleAdmin, Reason: "x"})
	requireDenial(t, err, domain.DenialTicketNotFound)

	_, err = f.svc.RequestTransition(ctx, TransitionRequest{TicketID: ticket.ID, ToStatus: "ARCHIVED", ActorID: adminID, ActorRole: domain.RoleAdmin})
	assert.ErrorIs(t, err, domain.ErrUnknownStatus)
}

func TestTicketService_CancelledIsTerminal(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.create(t, domain.TicketPriorityLow)
	cancelled := f.move(t, ticket.ID, domain.TicketStatusCancelled, residentID, domain.RoleResident, "fixed it myself")
	assert.NotNil(t, cancelled.CancelledAt)

	for _, to := range domain.AllStatuses {
		_, err := f.svc.RequestTransition(context.Background(), TransitionRequest{
			TicketID: ticket.ID, ToStatus: to, ActorID: adminID, ActorRole: domain.RoleAdmin, Reason: "r", AssigneeID: handlerID,
		})
		require.Error(t, err, "to %s", to)
	}
}

type failingCommitRepo struct {
	repository.TicketRepository
}

func (failingCommitRepo) CommitTransition(context.Context, *domain.Ticket, domain.TransitionRecord, int) error {
	return errors.New("connection reset")
}

func TestTicketService_PersistenceFailureEmitsNothing(t *testing.T) {
	f := newFixture(t, func(r repository.TicketRepository) repository.TicketRepository {
		return failingCommitRepo{r}
	})
	ticket := f.create(t, domain.TicketPriorityMedium)
	before := len(f.log.types())

	_, err := f.svc.Assign(context.Background(), ticket.ID, handlerID, adminID, domain.RoleAdmin, "")
	requireDenial(t, err, domain.DenialPersistenceError)
	var te *domain.TransitionError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Retryable())

	assert.Len(t, f.log.types(), before)
	stored, err := f.repo.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, stored.Status)
	assert.Nil(t, stored.AssignedHandlerID)
}

type staleReadRepo struct {
	repository.TicketRepository
}

func (r staleReadRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	t, err := r.TicketRepository.GetByID(ctx, id)
	if err == nil {
		t.Version--
	}
	return t, err
}

func TestTicketService_VersionConflict(t *testing.T) {
	f := newFixture(t, func(r repository.TicketRepository) repository.TicketRepository {
		return staleReadRepo{r}
	})
	ticket := f.create(t, domain.TicketPriorityMedium)

	_, err := f.svc.Assign(context.Background(), ticket.ID, handlerID, adminID, domain.RoleAdmin, "")
	requireDenial(t, err, domain.DenialConcurrentModification)
}

func TestTicketService_ConcurrentTransitionsOnSameTicket(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.create(t, domain.TicketPriorityMedium)

	const workers = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		failures []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Assign(context.Background(), ticket.ID, handlerID, adminID, domain.RoleAdmin, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	for _, err := range failures {
		requireDenial(t, err, domain.DenialInvalidTransition)
	}
	history, err := f.svc.History(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Zero(t, f.svc.locks.size())
}

type failingAudit struct{}

func (failingAudit) Append(context.Context, domain.AuditRecord) error {
	return errors.New("audit store down")
}

func TestTicketService_AuditFailureDoesNotBlock(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.audit = failingAudit{}
	ticket := f.create(t, domain.TicketPriorityMedium)

	_, err := f.svc.Assign(context.Background(), ticket.ID, handlerID, adminID, domain.RoleAdmin, "")
	assert.NoError(t, err)
}

func TestTicketService_Messages(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ticket := f.create(t, domain.TicketPriorityMedium)

	_, err := f.svc.AddComment(ctx, MessageInput{TicketID: ticket.ID, AuthorID: otherID, AuthorRole: domain.RoleResident, Body: "hello"})
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = f.svc.AddComment(ctx, MessageInput{TicketID: ticket.ID, AuthorID: residentID, AuthorRole: domain.RoleResident, Body: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	msg, err := f.svc.AddComment(ctx, MessageInput{TicketID: ticket.ID, AuthorID: residentID, AuthorRole: domain.RoleResident, Body: "any news?"})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeComment, msg.MessageType)

	_, err = f.svc.AddWorkUpdate(ctx, MessageInput{TicketID: ticket.ID, AuthorID: residentID, AuthorRole: domain.RoleResident, Body: "done"})
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = f.svc.AddWorkUpdate(ctx, MessageInput{TicketID: ticket.ID, AuthorID: handlerID, AuthorRole: domain.RoleHandler, Body: "ordered parts"})
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = f.svc.Assign(ctx, ticket.ID, handlerID, adminID, domain.RoleAdmin, "")
	require.NoError(t, err)
	_, err = f.svc.AddWorkUpdate(ctx, MessageInput{TicketID: ticket.ID, AuthorID: handlerID, AuthorRole: domain.RoleHandler, Body: "ordered parts"})
	require.NoError(t, err)

	msgs, err := f.svc.ListMessages(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.MessageTypeWorkUpdate, msgs[1].MessageType)

	types := f.log.types()
	assert.Contains(t, types, events.EventCommentAdded)
	assert.Contains(t, types, events.EventWorkUpdateAdded)
}

func TestTicketService_ListOverdue(t *testing.T) {
	f := newFixture(t, nil)
	emergency := f.create(t, domain.TicketPriorityEmergency)
	f.create(t, domain.TicketPriorityLow)

	f.clock.Advance(3 * time.Hour)
	overdue, err := f.svc.ListOverdue(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, emergency.ID, overdue[0].ID)
}

func TestCanView(t *testing.T) {
	handler := handlerID
	ticket := &domain.Ticket{OwnerID: residentID, AssignedHandlerID: &handler}

	assert.True(t, CanView(ticket, residentID, domain.RoleResident))
	assert.False(t, CanView(ticket, otherID, domain.RoleResident))
	assert.True(t, CanView(ticket, handlerID, domain.RoleHandler))
	assert.False(t, CanView(ticket, "hdl-2", domain.RoleHandler))
	assert.True(t, CanView(ticket, "anyone", domain.RoleAdmin))
}

func TestStringPreview(t *testing.T) {
	assert.Equal(t, "short", stringPreview("  short ", 10))
	assert.Equal(t, "abcdefg...", stringPreview("abcdefghijklmnop", 10))
}
