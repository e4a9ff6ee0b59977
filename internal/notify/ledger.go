package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/loyalty-orders/internal/domain/notification"
)

var (
	_ notification.Ledger = (*MemoryLedger)(nil)
	_ notification.Ledger = (*RedisLedger)(nil)
)

func ledgerKey(customerID string, orderCount int) string {
	return fmt.Sprintf("loyalty:progression:%s:%d", customerID, orderCount)
}

// MemoryLedger remembers sent alerts in process memory for ttl.
type MemoryLedger struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryLedger creates a MemoryLedger.
func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{
		seen: map[string]time.Time{},
		ttl:  ttl,
		now:  time.Now,
	}
}

func (l *MemoryLedger) Mark(_ context.Context, customerID string, orderCount int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, exp := range l.seen {
		if !now.Before(exp) {
			delete(l.seen, k)
		}
	}

	key := ledgerKey(customerID, orderCount)
	if _, ok := l.seen[key]; ok {
		return false, nil
	}
	l.seen[key] = now.Add(l.ttl)
	return true, nil
}

// RedisLedger shares the ledger between API replicas through SET NX.
type RedisLedger struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisLedger creates a RedisLedger.
func NewRedisLedger(client redis.UniversalClient, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, ttl: ttl}
}

func (l *RedisLedger) Mark(ctx context.Context, customerID string, orderCount int) (bool, error) {
	ok, err := l.client.SetNX(ctx, ledgerKey(customerID, orderCount), time.Now().Unix(), l.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "mark alert")
	}
	return ok, nil
}
