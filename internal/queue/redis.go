package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"dcsstats/internal/logging"
)

const (
	DefaultSnapshotQueueKey = "dcs_snapshots"
	retrySuffix             = ":retry"
	dlqSuffix               = ":dlq"
	retryCounterSuffix      = ":retry-count:"
	maxRetryAttempts        = 3
	brPopBlock              = 5 * time.Second
	retryCounterTTL         = 24 * time.Hour
	requeueTimeout          = 5 * time.Second
)

// listClient is the subset of *redis.Client the queue uses.
type listClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Handler processes one job payload. A returned error schedules a retry.
type Handler func(ctx context.Context, payload []byte) error

// RedisQueue implements a job queue on Redis lists. Producers LPUSH onto the
// main list, consumers BRPOP from the retry list first, then the main list.
type RedisQueue struct {
	client listClient
	key    string
}

// NewRedisQueue builds a queue on key. An empty key uses DefaultSnapshotQueueKey.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultSnapshotQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

// Key returns the main list name.
func (q *RedisQueue) Key() string { return q.key }

// Enqueue pushes a job onto the main list.
func (q *RedisQueue) Enqueue(ctx context.Context, payload []byte) error {
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue on %s: %w", q.key, err)
	}
	return nil
}

// Consume delivers jobs to handler one at a time until ctx is canceled.
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		payload, err := q.pop(ctx)
		if err != nil {
			return err
		}
		if payload == nil {
			continue
		}
		q.process(ctx, 0, handler, payload)
	}
}

// ConsumeConcurrent feeds jobs to workerCount goroutines through a buffered
// channel. It waits for in-flight jobs before returning.
func (q *RedisQueue) ConsumeConcurrent(ctx context.Context, workerCount, bufferSize int, handler Handler) error {
	logger := logging.Logger()

	jobs := make(chan []byte, bufferSize)
	var wg sync.WaitGroup
	for i := range workerCount {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for payload := range jobs {
				q.process(ctx, workerID, handler, payload)
			}
			logger.Infof("worker %d: exiting", workerID)
		}(i)
	}
	logger.Infof("started %d concurrent workers for queue %s", workerCount, q.key)

	stop := func(err error) error {
		close(jobs)
		wg.Wait()
		return err
	}

	for {
		payload, err := q.pop(ctx)
		if err != nil {
			return stop(err)
		}
		if payload == nil {
			continue
		}
		select {
		case jobs <- payload:
		case <-ctx.Done():
			return stop(ctx.Err())
		}
	}
}

// pop blocks for the next payload. A nil payload with a nil error means the
// wait timed out or Redis hiccuped; the caller loops.
func (q *RedisQueue) pop(ctx context.Context) ([]byte, error) {
	logger := logging.Logger()
	if err := ctx.Err(); err != nil {
		logger.Warnf("redis consumer exiting: %v", err)
		return nil, err
	}

	result, err := q.client.BRPop(ctx, brPopBlock, q.key+retrySuffix, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			logger.Warnf("redis BRPOP canceled: %v", ctx.Err())
			return nil, ctx.Err()
		}
		logger.Warnf("redis BRPOP error: %v", err)
		return nil, nil
	}
	if len(result) < 2 {
		return nil, nil
	}
	return []byte(result[1]), nil
}

// process runs one popped job. The job has already left Redis, so retry
// bookkeeping runs on a context that outlives shutdown. A job still buffered
// when ctx is canceled goes back on the retry list without costing an attempt.
func (q *RedisQueue) process(ctx context.Context, workerID int, handler Handler, payload []byte) {
	logger := logging.Logger()

	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
	defer cancel()

	if ctx.Err() != nil {
		if err := q.client.LPush(detached, q.key+retrySuffix, payload).Err(); err != nil {
			logger.Errorf("worker %d: requeue on shutdown failed: %v", workerID, err)
			return
		}
		logger.Infof("worker %d: requeued undelivered job on shutdown", workerID)
		return
	}

	if err := handler(ctx, payload); err != nil {
		logger.Warnf("worker %d: handler error, scheduling retry: %v", workerID, err)
		if err := q.handleRetry(detached, payload); err != nil {
			logger.Errorf("worker %d: retry handling failed: %v", workerID, err)
		}
		return
	}
	_ = q.clearRetryCounter(detached, payload)
}

func (q *RedisQueue) handleRetry(ctx context.Context, payload []byte) error {
	attempt, err := q.incrementRetryCounter(ctx, payload)
	if err != nil {
		return err
	}
	switch retryTarget(q.key, attempt) {
	case q.key + dlqSuffix:
		logging.Logger().Warnf("moving job to DLQ after %d attempts", attempt-1)
		_ = q.client.LPush(ctx, q.key+dlqSuffix, payload).Err()
		_ = q.clearRetryCounter(ctx, payload)
		return nil
	default:
		return q.client.LPush(ctx, q.key+retrySuffix, payload).Err()
	}
}

// retryTarget picks the list a failed job goes to on its attempt-th failure.
func retryTarget(queue string, attempt int64) string {
	if attempt > maxRetryAttempts {
		return queue + dlqSuffix
	}
	return queue + retrySuffix
}

func (q *RedisQueue) incrementRetryCounter(ctx context.Context, payload []byte) (int64, error) {
	key := retryCounterKey(q.key, payload)
	count, err := q.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = q.client.Expire(ctx, key, retryCounterTTL).Err()
	return count, nil
}

func (q *RedisQueue) clearRetryCounter(ctx context.Context, payload []byte) error {
	return q.client.Del(ctx, retryCounterKey(q.key, payload)).Err()
}

func retryCounterKey(queue string, payload []byte) string {
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s%s%s", queue, retryCounterSuffix, hex.EncodeToString(sum[:]))
}
