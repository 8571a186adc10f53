package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

// PresenceMarker records a live realtime session.
type PresenceMarker interface {
	MarkOnline(ctx context.Context, userID string, ttl time.Duration) error
}

// SessionHandler lets realtime clients keep their presence alive.
type SessionHandler struct {
	presence PresenceMarker
	ttl      time.Duration
}

// NewSessionHandler constructs handler.
func NewSessionHandler(presence PresenceMarker, ttl time.Duration) *SessionHandler {
	return &SessionHandler{presence: presence, ttl: ttl}
}

// Heartbeat POST /sessions/heartbeat.
func (h *SessionHandler) Heartbeat(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	if err := h.presence.MarkOnline(c.UserContext(), principal.UserID, h.ttl); err != nil {
		return &apperrors.DomainError{
			Code:       "PRESENCE_UNAVAILABLE",
			Message:    "realtime presence store unavailable",
			HTTPStatus: http.StatusServiceUnavailable,
			Retryable:  true,
			Err:        err,
		}
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"online":             true,
		"expires_in_seconds": int(h.ttl / time.Second),
	}})
}
