package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "presence:"
	userTopicPrefix   = "realtime:user:"
)

// RedisRealtime emits realtime events over Redis pub/sub. Socket gateways
// subscribe to the per-user topic and keep the presence key alive while a
// session is open.
type RedisRealtime struct {
	client redis.Cmdable
}

// NewRedisRealtime wraps a redis client.
func NewRedisRealtime(client redis.Cmdable) *RedisRealtime {
	return &RedisRealtime{client: client}
}

// PresenceKey is the key a gateway refreshes for a connected user.
func PresenceKey(userID string) string {
	return presenceKeyPrefix + userID
}

// UserTopic is the pub/sub channel for a single user.
func UserTopic(userID string) string {
	return userTopicPrefix + userID
}

// IsOnline reports whether the user holds a live session.
func (r *RedisRealtime) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.Exists(ctx, PresenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("presence lookup: %w", err)
	}
	return n > 0, nil
}

// MarkOnline records a session for ttl.
func (r *RedisRealtime) MarkOnline(ctx context.Context, userID string, ttl time.Duration) error {
	return r.client.Set(ctx, PresenceKey(userID), "1", ttl).Err()
}

type realtimeEnvelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func (r *RedisRealtime) Emit(ctx context.Context, userID, eventName string, payload any) (RealtimeOutcome, error) {
	body, err := json.Marshal(realtimeEnvelope{Event: eventName, Payload: payload})
	if err != nil {
		return "", fmt.Errorf("encode realtime payload: %w", err)
	}
	receivers, err := r.client.Publish(ctx, UserTopic(userID), body).Result()
	if err != nil {
		return "", fmt.Errorf("publish realtime event: %w", err)
	}
	if receivers == 0 {
		return RealtimeNoSession, nil
	}
	return RealtimeEmitted, nil
}
