package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// PresenceChecker reports whether a user holds a live real-time session.
type PresenceChecker interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type presenceDirectory struct {
	UserDirectory
	presence PresenceChecker
	logger   *zap.Logger
}

// WithPresence decorates dir so Get fills Recipient.ActiveSession. Presence
// only gates the realtime channel: when the check fails the recipient is
// treated as offline and still returned.
func WithPresence(dir UserDirectory, presence PresenceChecker, logger *zap.Logger) UserDirectory {
	if presence == nil {
		return dir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &presenceDirectory{UserDirectory: dir, presence: presence, logger: logger}
}

func (d *presenceDirectory) Get(ctx context.Context, userID string) (*domain.Recipient, error) {
	rec, err := d.UserDirectory.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	online, err := d.presence.IsOnline(ctx, userID)
	if err != nil {
		d.logger.Warn("presence check failed; treating recipient as offline",
			zap.String("recipient_id", userID),
			zap.Error(err))
		online = false
	}
	rec.ActiveSession = online
	return rec, nil
}
