package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/service"
)

// ErrStopped is returned when an event arrives after Stop.
var ErrStopped = errors.New("notification worker stopped")

// EventDispatcher delivers one event and reports the outcome.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event events.Event) service.DispatchReport
}

// Options tunes the worker pool.
type Options struct {
	Workers   int
	QueueSize int
	// OnReport, if set, receives every dispatch report.
	OnReport func(service.DispatchReport)
}

// NotificationWorker moves events off the publishing goroutine and
// dispatches them on a fixed pool with a background context.
type NotificationWorker struct {
	dispatcher EventDispatcher
	logger     *zap.Logger
	queue      chan events.Event
	quit       chan struct{}
	workers    int
	onReport   func(service.DispatchReport)

	mu      sync.Mutex
	stopped bool
	senders sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewNotificationWorker creates a stopped worker.
func NewNotificationWorker(dispatcher EventDispatcher, logger *zap.Logger, opts Options) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	return &NotificationWorker{
		dispatcher: dispatcher,
		logger:     logger,
		queue:      make(chan events.Event, opts.QueueSize),
		quit:       make(chan struct{}),
		workers:    opts.Workers,
		onReport:   opts.OnReport,
	}
}

// StartNotificationWorker subscribes the worker to every event type and
// starts it.
func StartNotificationWorker(bus events.Dispatcher, w *NotificationWorker) {
	if bus == nil || w == nil {
		return
	}
	bus.SubscribeAll(w.Enqueue)
	w.Start()
}

// Start launches the pool. Calling it twice is a no-op.
func (w *NotificationWorker) Start() {
	w.startOnce.Do(func() {
		for i := 0; i < w.workers; i++ {
			w.wg.Add(1)
			go w.run()
		}
	})
}

// Enqueue hands event to the pool, blocking while the queue is full. A nil
// return means the event will be dispatched, even if Stop runs meanwhile.
func (w *NotificationWorker) Enqueue(ctx context.Context, event events.Event) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrStopped
	}
	w.senders.Add(1)
	w.mu.Unlock()
	defer w.senders.Done()

	select {
	case w.queue <- event:
		return nil
	case <-w.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new events, lets workers drain the queue and waits for them
// until ctx expires.
func (w *NotificationWorker) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		close(w.quit)
		w.mu.Unlock()
		go func() {
			// Blocked senders see quit and return; the queue closes once none is left.
			w.senders.Wait()
			close(w.queue)
		}()
	})
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *NotificationWorker) run() {
	defer w.wg.Done()
	for event := range w.queue {
		w.process(event)
	}
}

func (w *NotificationWorker) process(event events.Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("notification dispatch panicked",
				zap.String("event_id", event.ID),
				zap.Any("panic", r))
		}
	}()

	start := time.Now()
	report := w.dispatcher.Dispatch(context.Background(), event)
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.Ticket.ID),
		zap.Int("recipients", len(report.Audience)),
		zap.Int("attempts", len(report.Attempts)),
		zap.Duration("elapsed", time.Since(start)),
	}
	if tokens := report.InvalidTokens(); len(tokens) > 0 {
		fields = append(fields, zap.Strings("invalid_tokens", tokens))
	}
	w.logger.Info("notification dispatched", fields...)

	if w.onReport != nil {
		w.onReport(report)
	}
}
