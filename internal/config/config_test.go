package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TICKET_REOPEN_WINDOW_HOURS", "")
	t.Setenv("NOTIFY_CHANNEL_TIMEOUT_MS", "")
	t.Setenv("NOTIFY_MAX_CONCURRENCY", "")
	t.Setenv("NOTIFY_PRESENCE_TTL_SECONDS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, cfg.Ticket.ReopenWindow())
	assert.Equal(t, 5*time.Second, cfg.Notification.ChannelTimeout())
	assert.Equal(t, 16, cfg.Notification.MaxConcurrency)
	assert.Equal(t, 90*time.Second, cfg.Notification.PresenceTTL())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TICKET_REOPEN_WINDOW_HOURS", "48")
	t.Setenv("NOTIFY_CHANNEL_TIMEOUT_MS", "250")
	t.Setenv("NOTIFY_WORKERS", "not-a-number")
	t.Setenv("PUSH_ENDPOINT", "https://push.example.com/send")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, cfg.Ticket.ReopenWindow())
	assert.Equal(t, 250*time.Millisecond, cfg.Notification.ChannelTimeout())
	assert.Equal(t, 4, cfg.Notification.Workers)
	assert.True(t, cfg.Push.Enabled())
}

func TestLoad_InvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "x")
	_, err := Load()
	assert.Error(t, err)
}
