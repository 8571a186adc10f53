package channel

import (
	"context"
	"errors"
)

// RealtimeOutcome is the result of a realtime emit.
type RealtimeOutcome string

const (
	RealtimeEmitted   RealtimeOutcome = "EMITTED"
	RealtimeNoSession RealtimeOutcome = "NO_SESSION"
)

// PushOutcome is the result of a push send.
type PushOutcome string

const (
	PushDelivered        PushOutcome = "DELIVERED"
	PushInvalidToken     PushOutcome = "INVALID_TOKEN"
	PushTransientFailure PushOutcome = "TRANSIENT_FAILURE"
)

// ErrPermanent marks email failures that will not succeed on retry
// (rejected address, unknown template).
var ErrPermanent = errors.New("permanent delivery failure")

// Notification is the visible part of a push message.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// RealtimeChannel pushes events to users with a live session.
type RealtimeChannel interface {
	Emit(ctx context.Context, userID, eventName string, payload any) (RealtimeOutcome, error)
}

// PushChannel sends mobile push notifications to a device token.
type PushChannel interface {
	Send(ctx context.Context, token string, n Notification, data map[string]string) (PushOutcome, error)
}

// EmailChannel sends a templated email. A nil error means the message was
// accepted; errors wrapping ErrPermanent are not retryable.
type EmailChannel interface {
	Send(ctx context.Context, address, templateID string, vars map[string]any) error
}

// IsPermanent reports whether err is a permanent email failure.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
