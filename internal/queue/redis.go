package queue

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisKey is the list jobs are pushed to.
const DefaultRedisKey = "loyalty:notifications"

var (
	_ Publisher = (*Redis)(nil)
	_ Consumer  = (*Redis)(nil)
)

// Redis is a list-backed queue: LPUSH to publish, BRPOP to consume, which
// gives FIFO order.
type Redis struct {
	client      redis.UniversalClient
	key         string
	concurrency int
	pollTimeout time.Duration
}

// NewRedis creates a Redis queue on key. Consume runs up to concurrency
// handlers at once.
func NewRedis(client redis.UniversalClient, key string, concurrency int) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Redis{
		client:      client,
		key:         key,
		concurrency: concurrency,
		pollTimeout: time.Second,
	}
}

// Publish pushes job onto the list.
func (q *Redis) Publish(ctx context.Context, job Job) error {
	if err := q.client.LPush(ctx, q.key, job.Encode()).Err(); err != nil {
		return errors.Wrap(err, "push job")
	}
	return nil
}

// Len returns the number of waiting jobs.
func (q *Redis) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "queue length")
	}
	return n, nil
}

// Consume pops jobs until ctx is done, then waits for in-flight handlers.
// Malformed payloads are logged and dropped.
func (q *Redis) Consume(ctx context.Context, h Handler) error {
	lg := zctx.From(ctx).With(zap.String("queue", q.key))
	lg.Info("Starting queue consumer", zap.Int("concurrency", q.concurrency))

	var wg sync.WaitGroup
	defer wg.Wait()

	sem := make(chan struct{}, q.concurrency)
	for {
		if ctx.Err() != nil {
			lg.Info("Consumer stopped, waiting for in-flight jobs")
			return nil
		}

		result, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case ctx.Err() != nil:
			lg.Info("Consumer stopped, waiting for in-flight jobs")
			return nil
		case err != nil:
			lg.Error("Pop from queue failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		// BRPOP returns [key, value].
		if len(result) < 2 {
			lg.Error("Unexpected BRPOP result", zap.Strings("result", result))
			continue
		}
		job, err := Decode([]byte(result[1]))
		if err != nil {
			lg.Error("Dropping malformed job", zap.Error(err), zap.String("data", result[1]))
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			if err := h(ctx, job); err != nil {
				lg.Error("Job failed",
					zap.String("job_id", job.ID),
					zap.String("kind", job.Kind),
					zap.Error(err),
				)
			}
		}()
	}
}
