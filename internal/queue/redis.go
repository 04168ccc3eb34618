package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix   = "docqa"
	queuedMarkerTTL = 24 * time.Hour
)

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}

// RedisQueue keeps waiting jobs in a list and moves each dequeued job to a
// processing list until it is acknowledged.
type RedisQueue struct {
	rdb        *redis.Client
	ready      string
	processing string
	prefix     string
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{
		rdb:        rdb,
		ready:      defaultPrefix + ":jobs:ready",
		processing: defaultPrefix + ":jobs:processing",
		prefix:     defaultPrefix,
	}
}

func (q *RedisQueue) queuedKey(id uuid.UUID) string {
	return q.prefix + ":jobs:queued:" + id.String()
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if job.From == "" {
		job.From = StageExtract
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	fresh, err := q.rdb.SetNX(ctx, q.queuedKey(job.DocumentID), string(job.From), queuedMarkerTTL).Result()
	if err != nil {
		return fmt.Errorf("mark queued: %w", err)
	}
	if !fresh {
		return nil
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, q.ready, payload).Err(); err != nil {
		q.rdb.Del(ctx, q.queuedKey(job.DocumentID))
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	raw, err := q.rdb.BLMove(ctx, q.ready, q.processing, "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// unreadable payloads would be redelivered forever
		q.rdb.LRem(ctx, q.processing, 1, raw)
		return nil, fmt.Errorf("decode job: %w", err)
	}

	// from here on a new upload or reprocess may queue the document again
	q.rdb.Del(ctx, q.queuedKey(job.DocumentID))
	return &Delivery{Job: job, raw: raw}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	return q.rdb.LRem(ctx, q.processing, 1, d.raw).Err()
}

// RequeueStale moves jobs left in the processing list by a crashed worker
// back to the ready list.
func (q *RedisQueue) RequeueStale(ctx context.Context) (int, error) {
	moved := 0
	for {
		raw, err := q.rdb.LMove(ctx, q.processing, q.ready, "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		var job Job
		if json.Unmarshal([]byte(raw), &job) == nil {
			q.rdb.SetNX(ctx, q.queuedKey(job.DocumentID), string(job.From), queuedMarkerTTL)
		}
		moved++
	}
}

// Len reports the number of waiting and in-flight jobs.
func (q *RedisQueue) Len(ctx context.Context) (ready, processing int64, err error) {
	if ready, err = q.rdb.LLen(ctx, q.ready).Result(); err != nil {
		return 0, 0, err
	}
	processing, err = q.rdb.LLen(ctx, q.processing).Result()
	return ready, processing, err
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease is a SET NX PX lock per document with token-checked release.
type RedisLease struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisLease(rdb *redis.Client) *RedisLease {
	return &RedisLease{rdb: rdb, prefix: defaultPrefix + ":lease:"}
}

func (l *RedisLease) Acquire(ctx context.Context, documentID uuid.UUID, ttl time.Duration) (func(), error) {
	key := l.prefix + documentID.String()
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}

	return func() {
		// the job context may already be done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		releaseScript.Run(ctx, l.rdb, []string{key}, token)
	}, nil
}
