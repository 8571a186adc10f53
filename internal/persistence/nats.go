package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/config"
)

// NATS wraps the event bridge connection.
type NATS struct {
	Conn *nats.Conn
}

// NewNATS connects when a URL is configured; otherwise Conn stays nil.
func NewNATS(cfg config.NATSConfig, serviceName string, logger *zap.Logger) (*NATS, error) {
	if cfg.URL == "" {
		logger.Info("NATS_URL not provided; event bridge disabled")
		return &NATS{}, nil
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name(serviceName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	logger.Info("connected to nats", zap.String("url", conn.ConnectedUrl()))
	return &NATS{Conn: conn}, nil
}

// Enabled reports whether a connection is configured.
func (n *NATS) Enabled() bool {
	return n != nil && n.Conn != nil
}

// Ping reports whether the connection is currently usable.
func (n *NATS) Ping(ctx context.Context) error {
	if !n.Enabled() {
		return errors.New("nats not configured")
	}
	if !n.Conn.IsConnected() {
		return errors.New("nats disconnected")
	}
	return ctx.Err()
}

// Close drains and closes the connection.
func (n *NATS) Close() {
	if n.Enabled() {
		_ = n.Conn.Drain()
	}
}
