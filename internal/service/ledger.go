package service

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// outcomeClaimed marks a delivery that is being attempted right now.
const outcomeClaimed DeliveryOutcome = "CLAIMED"

// DeliveryKey identifies one delivery of one event to one recipient on one
// channel.
type DeliveryKey struct {
	EventID     string
	RecipientID string
	Channel     ChannelName
}

func (k DeliveryKey) String() string {
	return "notify:delivery:" + k.EventID + ":" + k.RecipientID + ":" + string(k.Channel)
}

// DeliveryLedger makes deliveries idempotent. A sender claims the key before
// sending; it then records a terminal outcome or releases the claim so a
// redelivered event may retry.
type DeliveryLedger interface {
	// Claim reports false when key is already claimed or recorded.
	Claim(ctx context.Context, key DeliveryKey) (bool, error)
	Record(ctx context.Context, key DeliveryKey, outcome DeliveryOutcome) error
	Release(ctx context.Context, key DeliveryKey) error
}

// MemoryLedger is a process-local ledger.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[DeliveryKey]DeliveryOutcome
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[DeliveryKey]DeliveryOutcome)}
}

func (l *MemoryLedger) Claim(_ context.Context, key DeliveryKey) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[key]; ok {
		return false, nil
	}
	l.entries[key] = outcomeClaimed
	return true, nil
}

func (l *MemoryLedger) Record(_ context.Context, key DeliveryKey, outcome DeliveryOutcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = outcome
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, key DeliveryKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entries[key] == outcomeClaimed {
		delete(l.entries, key)
	}
	return nil
}

// Outcome returns what is stored for key.
func (l *MemoryLedger) Outcome(key DeliveryKey) (DeliveryOutcome, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out, ok := l.entries[key]
	return out, ok
}

// RedisLedger stores delivery records with a TTL so it is shared by every
// service instance. Claims expire after claimTTL so a crashed sender does not
// block retries for the whole record TTL.
type RedisLedger struct {
	client   redis.Cmdable
	ttl      time.Duration
	claimTTL time.Duration
}

// NewRedisLedger creates a Redis-backed ledger; records expire after ttl.
func NewRedisLedger(client redis.Cmdable, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	claimTTL := 10 * time.Minute
	if claimTTL > ttl {
		claimTTL = ttl
	}
	return &RedisLedger{client: client, ttl: ttl, claimTTL: claimTTL}
}

func (l *RedisLedger) Claim(ctx context.Context, key DeliveryKey) (bool, error) {
	return l.client.SetNX(ctx, key.String(), string(outcomeClaimed), l.claimTTL).Result()
}

func (l *RedisLedger) Record(ctx context.Context, key DeliveryKey, outcome DeliveryOutcome) error {
	return l.client.Set(ctx, key.String(), string(outcome), l.ttl).Err()
}

func (l *RedisLedger) Release(ctx context.Context, key DeliveryKey) error {
	return l.client.Del(ctx, key.String()).Err()
}
