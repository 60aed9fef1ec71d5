package taskqueue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a Queue backed by a Redis list, for clusters whose workers
// are spread across machines. Items are gob-encoded and pushed to the left
// of <prefix>queue; BRPOP takes them from the right, so the list behaves
// FIFO.
//
// NotBefore is honored at dequeue time: an item popped too early goes back
// to the left of the list and the worker sleeps briefly. With a single
// delayed item this degrades to polling, which is acceptable for the rare
// put-back case the field exists for.
type RedisQueue struct {
	client       *redis.Client
	key          string
	pollInterval time.Duration
}

// NewRedisQueue creates a Redis-backed queue. prefix is optional but
// recommended (e.g. "orchard:").
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "orchard:"
	}
	return &RedisQueue{
		client:       client,
		key:          prefix + "queue",
		pollInterval: 100 * time.Millisecond,
	}
}

// Ensure RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)

func (q *RedisQueue) Enqueue(ctx context.Context, it Item) error {
	if it.EnqueuedAt.IsZero() {
		it.EnqueuedAt = time.Now()
	}
	data, err := EncodeItem(it)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Item, error) {
	for {
		res, err := q.client.BRPop(ctx, q.pollInterval, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Timed out empty; loop to honor ctx.
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				default:
					continue
				}
			}
			return nil, err
		}

		it, err := DecodeItem([]byte(res[1]))
		if err != nil {
			return nil, err
		}

		if wait := time.Until(it.NotBefore); wait > 0 {
			// Too early; put it back and let the line move.
			if err := q.client.LPush(ctx, q.key, []byte(res[1])).Err(); err != nil {
				return nil, err
			}
			if wait > q.pollInterval {
				wait = q.pollInterval
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		return it, nil
	}
}

func (q *RedisQueue) Len() int {
	n, err := q.client.LLen(context.Background(), q.key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}
