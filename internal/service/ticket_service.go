package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/repository"
)

const (
	auditActionCreated      = "CREATED"
	auditActionTransitioned = "TRANSITIONED"

	previewLength = 140
	overdueLimit  = 100
)

// AuditSink receives a record of every committed change. Failures are logged
// and never undo the change.
type AuditSink interface {
	Append(ctx context.Context, record domain.AuditRecord) error
}

// TicketService owns the complaint lifecycle: creation, validated
// transitions, history and the messages attached to a complaint.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.TicketMessageRepository
	audit      AuditSink
	dispatcher events.Dispatcher
	validator  domain.TransitionValidator
	sla        domain.SLATracker
	locks      *keyedMutex
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	MessageRepo  repository.TicketMessageRepository
	Audit        AuditSink
	Dispatcher   events.Dispatcher
	ReopenWindow time.Duration
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	// Clock overrides time.Now, mostly for tests.
	Clock func() time.Time
}

// CreateInput describes a new complaint.
type CreateInput struct {
	OwnerID     string
	Priority    domain.TicketPriority
	Title       string
	Description string
	Category    string
	UnitID      string
}

// TransitionRequest asks to move a complaint to ToStatus. AssigneeID is
// required when ToStatus is ASSIGNED.
type TransitionRequest struct {
	TicketID   string
	ToStatus   domain.TicketStatus
	ActorID    string
	ActorRole  domain.Role
	Reason     string
	AssigneeID string
	Metadata   map[string]any
}

// MessageInput describes a comment or work update.
type MessageInput struct {
	TicketID   string
	AuthorID   string
	AuthorRole domain.Role
	Body       string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		audit:      deps.Audit,
		dispatcher: deps.Dispatcher,
		validator:  domain.NewTransitionValidator(deps.ReopenWindow),
		locks:      newKeyedMutex(),
		logger:     logger,
		metrics:    deps.Metrics,
		now:        clock,
	}
}

// Create opens a complaint for its owner.
func (s *TicketService) Create(ctx context.Context, input CreateInput) (*domain.Ticket, error) {
	input.OwnerID = strings.TrimSpace(input.OwnerID)
	input.Title = strings.TrimSpace(input.Title)
	if input.OwnerID == "" || input.Title == "" {
		return nil, fmt.Errorf("%w: owner and title are required", ErrInvalidInput)
	}
	if input.Priority == "" {
		input.Priority = domain.TicketPriorityMedium
	}
	now := s.now().UTC()
	deadline, err := s.sla.DeadlineFor(input.Priority, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	ticket := &domain.Ticket{
		ID:           uuid.NewString(),
		TicketNumber: generateTicketNumber(),
		OwnerID:      input.OwnerID,
		UnitID:       strings.TrimSpace(input.UnitID),
		Title:        input.Title,
		Description:  strings.TrimSpace(input.Description),
		Category:     strings.TrimSpace(input.Category),
		Status:       domain.TicketStatusOpen,
		Priority:     input.Priority,
		SLADeadline:  deadline,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
	record := domain.TransitionRecord{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		Sequence:  1,
		ToStatus:  domain.TicketStatusOpen,
		ActorID:   input.OwnerID,
		ActorRole: domain.RoleResident,
		Timestamp: now,
	}
	ticket.History = []domain.TransitionRecord{record}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, &domain.TransitionError{Kind: domain.DenialPersistenceError, To: domain.TicketStatusOpen, Err: err}
	}

	s.appendAudit(ctx, ticket, auditActionCreated, record)
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketCreated,
		Ticket:    events.RefFromTicket(ticket),
		Actor:     events.Actor{ID: input.OwnerID, Role: domain.RoleResident},
		Timestamp: now,
		Payload: events.TicketCreatedPayload{
			Priority:    ticket.Priority,
			Category:    ticket.Category,
			UnitID:      ticket.UnitID,
			SLADeadline: ticket.SLADeadline,
		},
	})
	s.logger.Info("complaint created",
		zap.String("ticket_id", ticket.ID),
		zap.String("ticket_number", ticket.TicketNumber),
		zap.String("priority", string(ticket.Priority)))
	return ticket.Clone(), nil
}

// RequestTransition validates and applies a status change. Denials are
// returned as *domain.TransitionError and leave the complaint untouched.
func (s *TicketService) RequestTransition(ctx context.Context, req TransitionRequest) (*domain.Ticket, error) {
	unlock := s.locks.Lock(req.TicketID)
	defer unlock()

	current, err := s.load(ctx, req.TicketID, req.ToStatus)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	from := current.Status
	reason := strings.TrimSpace(req.Reason)
	tc := domain.TransitionContext{
		IsOwner:           current.IsOwnedBy(req.ActorID),
		IsAssignedHandler: current.IsAssignedTo(req.ActorID),
		HasReason:         reason != "",
	}
	if current.ResolvedAt != nil {
		tc.SinceResolution = now.Sub(*current.ResolvedAt)
	}

	decision, err := s.validator.Validate(from, req.ToStatus, req.ActorRole, tc)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, s.deny(decision.Denial, current, req)
	}
	assignee := strings.TrimSpace(req.AssigneeID)
	if req.ToStatus == domain.TicketStatusAssigned && assignee == "" {
		return nil, s.deny(domain.DenialAssigneeRequired, current, req)
	}

	fromStatus := from
	record := domain.TransitionRecord{
		ID:         uuid.NewString(),
		TicketID:   current.ID,
		Sequence:   nextSequence(current),
		FromStatus: &fromStatus,
		ToStatus:   req.ToStatus,
		ActorID:    req.ActorID,
		ActorRole:  req.ActorRole,
		Reason:     reason,
		Timestamp:  now,
		Metadata:   req.Metadata,
	}.Clone()

	next := current.Clone()
	s.applySideEffects(next, req.ToStatus, assignee, now)
	next.Status = req.ToStatus
	next.History = append(next.History, record)
	next.UpdatedAt = now
	next.Version = current.Version + 1

	if err := s.tickets.CommitTransition(ctx, next, record, current.Version); err != nil {
		kind := domain.DenialPersistenceError
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			kind = domain.DenialConcurrentModification
		case errors.Is(err, repository.ErrNotFound):
			kind = domain.DenialTicketNotFound
		}
		s.metrics.RecordDenial(kind)
		s.logger.Error("transition commit failed",
			zap.String("ticket_id", current.ID),
			zap.String("from", string(from)),
			zap.String("to", string(req.ToStatus)),
			zap.Error(err))
		return nil, &domain.TransitionError{Kind: kind, From: from, To: req.ToStatus, Err: err}
	}

	s.metrics.RecordTransition(from, req.ToStatus)
	s.appendAudit(ctx, next, auditActionTransitioned, record)

	actor := events.Actor{ID: req.ActorID, Role: req.ActorRole}
	ref := events.RefFromTicket(next)
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketTransitioned,
		Ticket:    ref,
		Actor:     actor,
		Timestamp: now,
		Payload: events.TicketTransitionedPayload{
			FromStatus:        from,
			ToStatus:          req.ToStatus,
			Reason:            reason,
			PreviousHandlerID: replacedHandler(current, next),
		},
	})
	if req.ToStatus == domain.TicketStatusAssigned {
		s.publishEvent(ctx, events.Event{
			Type:      events.EventTicketAssigned,
			Ticket:    ref,
			Actor:     actor,
			Timestamp: now,
			Payload: events.TicketAssignedPayload{
				HandlerID:         assignee,
				PreviousHandlerID: current.AssignedHandlerID,
			},
		})
	}

	s.logger.Info("complaint transitioned",
		zap.String("ticket_id", next.ID),
		zap.String("from", string(from)),
		zap.String("to", string(next.Status)),
		zap.String("actor_id", req.ActorID),
		zap.Int("sequence", record.Sequence))
	return next.Clone(), nil
}

// Assign moves a complaint to ASSIGNED with the given handler.
func (s *TicketService) Assign(ctx context.Context, ticketID, handlerID, actorID string, role domain.Role, reason string) (*domain.Ticket, error) {
	return s.RequestTransition(ctx, TransitionRequest{
		TicketID:   ticketID,
		ToStatus:   domain.TicketStatusAssigned,
		ActorID:    actorID,
		ActorRole:  role,
		Reason:     reason,
		AssigneeID: handlerID,
	})
}

// Get returns a snapshot of the complaint.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.load(ctx, ticketID, "")
}

// History returns the transition records in sequence order.
func (s *TicketService) History(ctx context.Context, ticketID string) ([]domain.TransitionRecord, error) {
	records, err := s.tickets.ListHistory(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NewTransitionError(domain.DenialTicketNotFound, "", "")
		}
		return nil, &domain.TransitionError{Kind: domain.DenialPersistenceError, Err: err}
	}
	if len(records) == 0 {
		return nil, domain.NewTransitionError(domain.DenialTicketNotFound, "", "")
	}
	return records, nil
}

// CanView reports whether actor may read the complaint.
func CanView(ticket *domain.Ticket, actorID string, role domain.Role) bool {
	switch role {
	case domain.RoleAdmin:
		return true
	case domain.RoleHandler:
		return ticket.IsAssignedTo(actorID)
	case domain.RoleResident:
		return ticket.IsOwnedBy(actorID)
	default:
		return false
	}
}

// AddComment posts a comment. Residents comment on their own complaints,
// handlers on complaints assigned to them, admins anywhere.
func (s *TicketService) AddComment(ctx context.Context, input MessageInput) (*domain.TicketMessage, error) {
	return s.addMessage(ctx, input, domain.MessageTypeComment)
}

// AddWorkUpdate logs progress. Only the assigned handler or an admin may.
func (s *TicketService) AddWorkUpdate(ctx context.Context, input MessageInput) (*domain.TicketMessage, error) {
	if input.AuthorRole == domain.RoleResident {
		return nil, fmt.Errorf("%w: residents cannot post work updates", ErrAccessDenied)
	}
	return s.addMessage(ctx, input, domain.MessageTypeWorkUpdate)
}

// ListMessages returns comments and work updates in posting order.
func (s *TicketService) ListMessages(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	return s.messages.ListByTicket(ctx, ticketID)
}

// ListOverdue returns unresolved complaints past their SLA deadline.
func (s *TicketService) ListOverdue(ctx context.Context, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = overdueLimit
	}
	return s.tickets.ListOverdue(ctx, s.now().UTC(), limit)
}

func (s *TicketService) addMessage(ctx context.Context, input MessageInput, messageType domain.TicketMessageType) (*domain.TicketMessage, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, fmt.Errorf("%w: body is required", ErrInvalidInput)
	}
	ticket, err := s.load(ctx, input.TicketID, "")
	if err != nil {
		return nil, err
	}
	if !CanView(ticket, input.AuthorID, input.AuthorRole) {
		return nil, ErrAccessDenied
	}

	msg := &domain.TicketMessage{
		ID:          uuid.NewString(),
		TicketID:    ticket.ID,
		AuthorID:    input.AuthorID,
		AuthorRole:  input.AuthorRole,
		MessageType: messageType,
		Body:        body,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, &domain.TransitionError{Kind: domain.DenialPersistenceError, Err: err}
	}

	eventType := events.EventCommentAdded
	if messageType == domain.MessageTypeWorkUpdate {
		eventType = events.EventWorkUpdateAdded
	}
	s.publishEvent(ctx, events.Event{
		Type:      eventType,
		Ticket:    events.RefFromTicket(ticket),
		Actor:     events.Actor{ID: input.AuthorID, Role: input.AuthorRole},
		Timestamp: msg.CreatedAt,
		Payload: events.MessageAddedPayload{
			MessageID:   msg.ID,
			AuthorID:    msg.AuthorID,
			AuthorRole:  msg.AuthorRole,
			BodyPreview: stringPreview(body, previewLength),
		},
	})
	return msg, nil
}

// load fetches a complaint and maps storage errors to denials.
func (s *TicketService) load(ctx context.Context, ticketID string, to domain.TicketStatus) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NewTransitionError(domain.DenialTicketNotFound, "", to)
		}
		return nil, &domain.TransitionError{Kind: domain.DenialPersistenceError, To: to, Err: err}
	}
	return ticket, nil
}

func (s *TicketService) deny(kind domain.DenialKind, ticket *domain.Ticket, req TransitionRequest) error {
	s.metrics.RecordDenial(kind)
	s.logger.Debug("transition denied",
		zap.String("ticket_id", ticket.ID),
		zap.String("from", string(ticket.Status)),
		zap.String("to", string(req.ToStatus)),
		zap.String("actor_id", req.ActorID),
		zap.String("role", string(req.ActorRole)),
		zap.String("denial", string(kind)))
	return domain.NewTransitionError(kind, ticket.Status, req.ToStatus)
}

func (s *TicketService) applySideEffects(t *domain.Ticket, to domain.TicketStatus, assignee string, now time.Time) {
	at := now
	switch to {
	case domain.TicketStatusAssigned:
		t.AssignedHandlerID = &assignee
		t.AssignedAt = &at
	case domain.TicketStatusOpen:
		t.AssignedHandlerID = nil
		t.AssignedAt = nil
	case domain.TicketStatusInProgress:
		t.StartedAt = &at
	case domain.TicketStatusResolved:
		hours := s.sla.ResolutionHours(t.CreatedAt, now)
		t.ResolvedAt = &at
		t.SLABreached = s.sla.Breached(t.SLADeadline, now)
		t.ResolutionHours = &hours
	case domain.TicketStatusClosed:
		t.ClosedAt = &at
	case domain.TicketStatusReopened:
		t.ReopenedAt = &at
		t.ReopenCount++
		t.ResolvedAt = nil
		t.SLABreached = false
		t.ResolutionHours = nil
	case domain.TicketStatusCancelled:
		t.CancelledAt = &at
	}
}

func (s *TicketService) appendAudit(ctx context.Context, ticket *domain.Ticket, action string, record domain.TransitionRecord) {
	if s.audit == nil {
		return
	}
	err := s.audit.Append(ctx, domain.AuditRecord{
		TicketID:     ticket.ID,
		TicketNumber: ticket.TicketNumber,
		Action:       action,
		ActorID:      record.ActorID,
		ActorRole:    record.ActorRole,
		FromStatus:   record.FromStatus,
		ToStatus:     record.ToStatus,
		Reason:       record.Reason,
		Metadata:     record.Metadata,
		OccurredAt:   record.Timestamp,
	})
	if err != nil {
		s.logger.Warn("audit append failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("action", action),
			zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

// replacedHandler returns the handler assigned before the transition when it
// no longer holds the complaint afterwards.
func replacedHandler(before, after *domain.Ticket) *string {
	if before.AssignedHandlerID == nil {
		return nil
	}
	if after.AssignedHandlerID != nil && *after.AssignedHandlerID == *before.AssignedHandlerID {
		return nil
	}
	id := *before.AssignedHandlerID
	return &id
}

func nextSequence(t *domain.Ticket) int {
	last, ok := t.LastRecord()
	if !ok {
		return 1
	}
	return last.Sequence + 1
}

func generateTicketNumber() string {
	return "CMP-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
