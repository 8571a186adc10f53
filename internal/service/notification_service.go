package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/complaint-service/internal/channel"
	"github.com/spec-kit/complaint-service/internal/config"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/repository"
)

// ChannelName identifies a delivery channel.
type ChannelName string

const (
	ChannelRealtime ChannelName = "realtime"
	ChannelPush     ChannelName = "push"
	ChannelEmail    ChannelName = "email"
)

// DeliveryOutcome is the recorded result of one attempt.
type DeliveryOutcome string

const (
	OutcomeEmitted              DeliveryOutcome = "EMITTED"
	OutcomeNoSession            DeliveryOutcome = "NO_SESSION"
	OutcomeDelivered            DeliveryOutcome = "DELIVERED"
	OutcomeInvalidToken         DeliveryOutcome = "INVALID_TOKEN"
	OutcomeTransientFailure     DeliveryOutcome = "TRANSIENT_FAILURE"
	OutcomeSent                 DeliveryOutcome = "SENT"
	OutcomeFailed               DeliveryOutcome = "FAILED"
	OutcomeDuplicate            DeliveryOutcome = "DUPLICATE"
	OutcomeRecipientUnavailable DeliveryOutcome = "RECIPIENT_UNAVAILABLE"
)

var (
	errChannelPanic   = errors.New("channel panicked")
	errChannelTimeout = errors.New("channel call abandoned")
)

// DeliveryAttempt is one (recipient, channel) result. Channel is empty when
// the recipient could not be looked up.
type DeliveryAttempt struct {
	RecipientID string
	Channel     ChannelName
	Outcome     DeliveryOutcome
	Permanent   bool
	Token       string
	Err         error
}

func (a DeliveryAttempt) terminal() bool {
	switch a.Outcome {
	case OutcomeEmitted, OutcomeDelivered, OutcomeInvalidToken, OutcomeSent:
		return true
	case OutcomeFailed:
		return a.Permanent
	default:
		return false
	}
}

// DispatchReport aggregates the attempts made for one event.
type DispatchReport struct {
	EventID   string
	EventType events.EventType
	Audience  []string
	Attempts  []DeliveryAttempt
}

// InvalidTokens lists device tokens the push provider rejected.
func (r DispatchReport) InvalidTokens() []string {
	var tokens []string
	for _, a := range r.Attempts {
		if a.Channel == ChannelPush && a.Outcome == OutcomeInvalidToken && a.Token != "" {
			tokens = append(tokens, a.Token)
		}
	}
	return tokens
}

// Outcome returns the result for recipient on ch, if attempted.
func (r DispatchReport) Outcome(recipientID string, ch ChannelName) (DeliveryOutcome, bool) {
	for _, a := range r.Attempts {
		if a.RecipientID == recipientID && a.Channel == ch {
			return a.Outcome, true
		}
	}
	return "", false
}

// NotificationService fans domain events out to every interested recipient
// over realtime, push and email. One failing recipient or channel never
// affects the others.
type NotificationService struct {
	directory      repository.UserDirectory
	realtime       channel.RealtimeChannel
	push           channel.PushChannel
	email          channel.EmailChannel
	ledger         DeliveryLedger
	logger         *zap.Logger
	metrics        *observability.Metrics
	timeout        time.Duration
	maxConcurrency int
}

// NotificationDependencies bundles collaborators. Any channel may be nil,
// in which case it is skipped.
type NotificationDependencies struct {
	Directory repository.UserDirectory
	Realtime  channel.RealtimeChannel
	Push      channel.PushChannel
	Email     channel.EmailChannel
	Ledger    DeliveryLedger
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies, cfg config.NotificationConfig) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := cfg.MaxConcurrency
	if limit <= 0 {
		limit = 16
	}
	return &NotificationService{
		directory:      deps.Directory,
		realtime:       deps.Realtime,
		push:           deps.Push,
		email:          deps.Email,
		ledger:         deps.Ledger,
		logger:         logger,
		metrics:        deps.Metrics,
		timeout:        cfg.ChannelTimeout(),
		maxConcurrency: limit,
	}
}

type deliveryJob struct {
	recipient *domain.Recipient
	channel   ChannelName
}

// Dispatch delivers event to its audience and reports every attempt. It
// never returns an error; failures are recorded in the report and logged.
func (n *NotificationService) Dispatch(ctx context.Context, event events.Event) DispatchReport {
	report := DispatchReport{EventID: event.ID, EventType: event.Type}

	ids, err := n.ResolveAudience(ctx, event)
	if err != nil {
		n.logger.Warn("audience resolution incomplete",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
	report.Audience = ids

	var mu sync.Mutex
	record := func(a DeliveryAttempt) {
		mu.Lock()
		report.Attempts = append(report.Attempts, a)
		mu.Unlock()
	}

	recipients := make([]*domain.Recipient, len(ids))
	var lookups errgroup.Group
	lookups.SetLimit(n.maxConcurrency)
	for i, id := range ids {
		i, id := i, id
		lookups.Go(func() error {
			var rec *domain.Recipient
			err := n.call(ctx, func(ctx context.Context) error {
				var err error
				rec, err = n.directory.Get(ctx, id)
				return err
			})
			if err != nil {
				n.logger.Warn("recipient lookup failed",
					zap.String("event_id", event.ID),
					zap.String("recipient_id", id),
					zap.Error(err))
				record(DeliveryAttempt{RecipientID: id, Outcome: OutcomeRecipientUnavailable, Err: err})
				return nil
			}
			recipients[i] = rec
			return nil
		})
	}
	_ = lookups.Wait()

	var sends errgroup.Group
	sends.SetLimit(n.maxConcurrency)
	for _, job := range n.plan(recipients) {
		job := job
		sends.Go(func() error {
			record(n.deliver(ctx, event, job))
			return nil
		})
	}
	_ = sends.Wait()

	sort.Slice(report.Attempts, func(i, j int) bool {
		a, b := report.Attempts[i], report.Attempts[j]
		if a.RecipientID != b.RecipientID {
			return a.RecipientID < b.RecipientID
		}
		return a.Channel < b.Channel
	})
	return report
}

// plan selects the channels each recipient is eligible for.
func (n *NotificationService) plan(recipients []*domain.Recipient) []deliveryJob {
	var jobs []deliveryJob
	for _, rec := range recipients {
		if rec == nil || rec.Status != domain.UserStatusActive {
			continue
		}
		if n.realtime != nil && rec.ActiveSession {
			jobs = append(jobs, deliveryJob{recipient: rec, channel: ChannelRealtime})
		}
		if n.push != nil && rec.CanReceivePush() {
			jobs = append(jobs, deliveryJob{recipient: rec, channel: ChannelPush})
		}
		if n.email != nil && rec.CanReceiveEmail() {
			jobs = append(jobs, deliveryJob{recipient: rec, channel: ChannelEmail})
		}
	}
	return jobs
}

func (n *NotificationService) deliver(ctx context.Context, event events.Event, job deliveryJob) DeliveryAttempt {
	rec := job.recipient
	key := DeliveryKey{EventID: event.ID, RecipientID: rec.ID, Channel: job.channel}
	attempt := DeliveryAttempt{RecipientID: rec.ID, Channel: job.channel}

	claimed := false
	if n.ledger != nil {
		var ok bool
		err := n.call(ctx, func(ctx context.Context) error {
			var err error
			ok, err = n.ledger.Claim(ctx, key)
			return err
		})
		switch {
		case err != nil:
			n.ledgerWarn("delivery ledger unavailable", event, rec, job.channel, err)
		case !ok:
			attempt.Outcome = OutcomeDuplicate
			n.metrics.RecordNotification(string(job.channel), string(attempt.Outcome))
			return attempt
		default:
			claimed = true
		}
	}

	switch job.channel {
	case ChannelRealtime:
		n.sendRealtime(ctx, event, rec, &attempt)
	case ChannelPush:
		n.sendPush(ctx, event, rec, &attempt)
	case ChannelEmail:
		n.sendEmail(ctx, event, rec, &attempt)
	}

	switch {
	case n.ledger != nil && attempt.terminal():
		err := n.call(ctx, func(ctx context.Context) error {
			return n.ledger.Record(ctx, key, attempt.Outcome)
		})
		if err != nil {
			n.ledgerWarn("delivery ledger write failed", event, rec, job.channel, err)
		}
	case claimed:
		err := n.call(ctx, func(ctx context.Context) error {
			return n.ledger.Release(ctx, key)
		})
		if err != nil {
			n.ledgerWarn("delivery ledger release failed", event, rec, job.channel, err)
		}
	}

	n.metrics.RecordNotification(string(job.channel), string(attempt.Outcome))
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("recipient_id", rec.ID),
		zap.String("channel", string(job.channel)),
		zap.String("outcome", string(attempt.Outcome)),
	}
	if attempt.Err != nil {
		n.logger.Warn("notification attempt failed", append(fields, zap.Error(attempt.Err))...)
	} else {
		n.logger.Debug("notification attempt", fields...)
	}
	return attempt
}

func (n *NotificationService) ledgerWarn(msg string, event events.Event, rec *domain.Recipient, ch ChannelName, err error) {
	n.logger.Warn(msg,
		zap.String("event_id", event.ID),
		zap.String("recipient_id", rec.ID),
		zap.String("channel", string(ch)),
		zap.Error(err))
}

func (n *NotificationService) sendRealtime(ctx context.Context, event events.Event, rec *domain.Recipient, attempt *DeliveryAttempt) {
	var out channel.RealtimeOutcome
	err := n.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = n.realtime.Emit(ctx, rec.ID, string(event.Type), event)
		return err
	})
	switch {
	case err != nil:
		attempt.Outcome = OutcomeTransientFailure
		attempt.Err = err
	case out == channel.RealtimeNoSession:
		attempt.Outcome = OutcomeNoSession
	default:
		attempt.Outcome = OutcomeEmitted
	}
}

func (n *NotificationService) sendPush(ctx context.Context, event events.Event, rec *domain.Recipient, attempt *DeliveryAttempt) {
	token := *rec.DeviceToken
	attempt.Token = token
	notification, data := pushContent(event)

	var out channel.PushOutcome
	err := n.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = n.push.Send(ctx, token, notification, data)
		return err
	})
	attempt.Err = err
	switch {
	case errors.Is(err, errChannelTimeout), errors.Is(err, errChannelPanic):
		attempt.Outcome = OutcomeTransientFailure
	case err != nil && out == "":
		attempt.Outcome = OutcomeTransientFailure
	case out == channel.PushDelivered:
		attempt.Outcome = OutcomeDelivered
	case out == channel.PushInvalidToken:
		attempt.Outcome = OutcomeInvalidToken
		attempt.Permanent = true
	default:
		attempt.Outcome = OutcomeTransientFailure
	}
}

func (n *NotificationService) sendEmail(ctx context.Context, event events.Event, rec *domain.Recipient, attempt *DeliveryAttempt) {
	templateID, vars := emailContent(event)
	vars["RecipientName"] = rec.Name
	address := *rec.Email

	err := n.call(ctx, func(ctx context.Context) error {
		return n.email.Send(ctx, address, templateID, vars)
	})
	if err == nil {
		attempt.Outcome = OutcomeSent
		return
	}
	attempt.Outcome = OutcomeFailed
	attempt.Permanent = channel.IsPermanent(err)
	attempt.Err = err
}

// call runs fn with the per-call timeout, converting panics into errors. A
// call that ignores its context is abandoned once the timeout fires.
func (n *NotificationService) call(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %v", errChannelPanic, r)
			}
		}()
		done <- fn(cctx)
	}()

	select {
	case err := <-done:
		return err
	case <-cctx.Done():
		return fmt.Errorf("%w: %w", errChannelTimeout, cctx.Err())
	}
}

func pushContent(event events.Event) (channel.Notification, map[string]string) {
	ref := event.Ticket
	n := channel.Notification{Title: "Complaint " + ref.Number}
	switch p := event.Payload.(type) {
	case events.TicketCreatedPayload:
		n.Body = fmt.Sprintf("New %s priority complaint: %s", p.Priority, ref.Title)
	case events.TicketTransitionedPayload:
		n.Body = fmt.Sprintf("%s is now %s", ref.Title, p.ToStatus)
	case events.TicketAssignedPayload:
		n.Body = fmt.Sprintf("%s has been assigned", ref.Title)
	case events.MessageAddedPayload:
		n.Body = p.BodyPreview
	default:
		n.Body = ref.Title
	}
	data := map[string]string{
		"event_id":   event.ID,
		"event_type": string(event.Type),
		"ticket_id":  ref.ID,
		"status":     string(ref.Status),
	}
	return n, data
}

func emailContent(event events.Event) (string, map[string]any) {
	ref := event.Ticket
	vars := map[string]any{
		"TicketNumber": ref.Number,
		"Title":        ref.Title,
		"Priority":     string(ref.Priority),
		"Status":       string(ref.Status),
		"Reason":       "",
		"Preview":      "",
	}
	switch event.Type {
	case events.EventTicketCreated:
		return channel.TemplateComplaintCreated, vars
	case events.EventTicketAssigned:
		return channel.TemplateComplaintAssigned, vars
	case events.EventCommentAdded, events.EventWorkUpdateAdded:
		if p, ok := event.Payload.(events.MessageAddedPayload); ok {
			vars["Preview"] = p.BodyPreview
		}
		if event.Type == events.EventWorkUpdateAdded {
			return channel.TemplateComplaintWorkUpdate, vars
		}
		return channel.TemplateComplaintComment, vars
	default:
		if p, ok := event.Payload.(events.TicketTransitionedPayload); ok {
			vars["Status"] = string(p.ToStatus)
			vars["Reason"] = p.Reason
		}
		return channel.TemplateComplaintStatusChanged, vars
	}
}
