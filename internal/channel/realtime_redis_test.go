package channel

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRedis keeps presence keys in a map and counts subscribers per topic.
type memRedis struct {
	redis.Cmdable
	keys        map[string]time.Duration
	subscribers map[string]int64
	published   map[string][]byte
}

func newMemRedis() *memRedis {
	return &memRedis{
		keys:        map[string]time.Duration{},
		subscribers: map[string]int64{},
		published:   map[string][]byte{},
	}
}

func (m *memRedis) Set(ctx context.Context, key string, _ any, ttl time.Duration) *redis.StatusCmd {
	m.keys[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (m *memRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := m.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *memRedis) Publish(ctx context.Context, topic string, message any) *redis.IntCmd {
	m.published[topic] = message.([]byte)
	return redis.NewIntResult(m.subscribers[topic], nil)
}

func TestRedisRealtime_PresenceAndEmit(t *testing.T) {
	ctx := context.Background()
	store := newMemRedis()
	rt := NewRedisRealtime(store)

	online, err := rt.IsOnline(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, rt.MarkOnline(ctx, "u-1", 90*time.Second))
	assert.Equal(t, 90*time.Second, store.keys["presence:u-1"])
	online, err = rt.IsOnline(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, online)

	out, err := rt.Emit(ctx, "u-1", "ticket.assigned", map[string]string{"ticket_id": "t-1"})
	require.NoError(t, err)
	assert.Equal(t, RealtimeNoSession, out)

	store.subscribers[UserTopic("u-1")] = 1
	out, err = rt.Emit(ctx, "u-1", "ticket.assigned", map[string]string{"ticket_id": "t-1"})
	require.NoError(t, err)
	assert.Equal(t, RealtimeEmitted, out)

	var env struct {
		Event   string            `json:"event"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(store.published["realtime:user:u-1"], &env))
	assert.Equal(t, "ticket.assigned", env.Event)
	assert.Equal(t, "t-1", env.Payload["ticket_id"])
}
