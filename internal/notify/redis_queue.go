package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// DefaultRedisQueueKey is the list holding pending notifications.
const DefaultRedisQueueKey = "studentauth:notifications"

// RedisQueue is a Queue backed by Redis lists, so pending notifications
// survive a restart. Jobs are LPUSHed onto key and BLMOVEd onto
// key+":processing", where they stay until acknowledged.
type RedisQueue struct {
	client     *redis.Client
	key        string
	processing string
	poll       time.Duration
}

// NewRedisQueue creates a RedisQueue on key. poll bounds each BLMOVE.
func NewRedisQueue(client *redis.Client, key string, poll time.Duration) *RedisQueue {
	if key == "" {
		key = DefaultRedisQueueKey
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &RedisQueue{client: client, key: key, processing: key + ":processing", poll: poll}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.With("url", url).Wrapf(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.With("addr", opts.Addr).Wrapf(err, "ping redis")
	}
	return client, nil
}

// Push enqueues job.
func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return oops.With("job_id", job.ID).Wrap(err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return oops.With("job_id", job.ID).With("key", q.key).Wrap(err)
	}
	return nil
}

// Pop waits up to the poll interval for the next job and moves it onto the
// processing list.
func (q *RedisQueue) Pop(ctx context.Context) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := q.client.BLMove(ctx, q.key, q.processing, "RIGHT", "LEFT", q.poll).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, oops.With("key", q.key).Wrap(err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// An undecodable payload can never be delivered.
		_ = q.client.LRem(ctx, q.processing, 1, raw).Err()
		return nil, oops.With("key", q.key).Wrapf(err, "decode job")
	}
	job.raw = raw
	return &job, nil
}

// Ack removes job from the processing list.
func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	if job == nil || job.raw == "" {
		return nil
	}
	if err := q.client.LRem(ctx, q.processing, 1, job.raw).Err(); err != nil {
		return oops.With("job_id", job.ID).With("key", q.processing).Wrap(err)
	}
	return nil
}

// Recover moves unacknowledged jobs back to the front of the pending list
// and reports how many it moved. Call it before any worker starts popping.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.key, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, oops.With("key", q.processing).Wrap(err)
		}
		moved++
	}
}

// Len reports the list length.
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, oops.With("key", q.key).Wrap(err)
	}
	return int(n), nil
}
