package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/user/entityflow/internal/core/errs"
)

const (
	minBackoff      = 250 * time.Millisecond
	maxBackoff      = 30 * time.Second
	popPollInterval = 100 * time.Millisecond
)

// Queue wraps a Redis client around two named lists: one the worker's fetch
// loop pops from, one its process loop pops from. Jobs are pushed with
// RPUSH and popped with a bounded BLPOP so the caller can poll a
// cancellation signal between attempts rather than blocking indefinitely.
type Queue struct {
	client     *redis.Client
	FetchKey   string
	ProcessKey string
	Log        zerolog.Logger

	backoff time.Duration
}

// NewQueue wraps an already-constructed client, the same inject-a-client
// shape internal/cache uses so tests can point it at a miniredis instance.
func NewQueue(client *redis.Client, fetchKey, processKey string, log zerolog.Logger) *Queue {
	return &Queue{client: client, FetchKey: fetchKey, ProcessKey: processKey, Log: log, backoff: minBackoff}
}

// DialQueue parses addr, connects, and verifies connectivity with Ping
// before returning, mirroring the connect-then-verify pattern used by every
// other Redis-backed adapter in this codebase.
func DialQueue(ctx context.Context, addr, fetchKey, processKey string, log zerolog.Logger) (*Queue, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, errs.Wrap(errs.Config, err, "parse redis queue url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errs.Wrap(errs.Database, err, "ping redis queue")
	}
	return NewQueue(client, fetchKey, processKey, log), nil
}

func (q *Queue) Close() error { return q.client.Close() }

// EnqueueFetch pushes a FetchAndStageJob onto the fetch list.
func (q *Queue) EnqueueFetch(ctx context.Context, job FetchAndStageJob) error {
	return q.push(ctx, q.FetchKey, job)
}

// EnqueueProcess pushes a ProcessRawItemJob onto the process list.
func (q *Queue) EnqueueProcess(ctx context.Context, job ProcessRawItemJob) error {
	return q.push(ctx, q.ProcessKey, job)
}

func (q *Queue) push(ctx context.Context, key string, job any) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return errs.Wrap(errs.Conversion, err, "marshal queue job")
	}
	if err := q.client.RPush(ctx, key, payload).Err(); err != nil {
		return errs.Wrap(errs.Database, err, "enqueue job")
	}
	return nil
}

// PopFetch blocks (in short bounded increments, so ctx cancellation is
// observed promptly) until a FetchAndStageJob is available or ctx ends.
func (q *Queue) PopFetch(ctx context.Context) (*FetchAndStageJob, error) {
	raw, err := q.popBounded(ctx, q.FetchKey)
	if err != nil || raw == nil {
		return nil, err
	}
	var job FetchAndStageJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, errs.Wrap(errs.Conversion, err, "decode fetch job")
	}
	return &job, nil
}

// PopProcess is PopFetch's counterpart for the process list.
func (q *Queue) PopProcess(ctx context.Context) (*ProcessRawItemJob, error) {
	raw, err := q.popBounded(ctx, q.ProcessKey)
	if err != nil || raw == nil {
		return nil, err
	}
	var job ProcessRawItemJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, errs.Wrap(errs.Conversion, err, "decode process job")
	}
	return &job, nil
}

// popBounded issues BLPOP with a short timeout in a loop rather than one
// long blocking call, so the caller's ctx cancellation (worker shutdown) is
// checked between attempts instead of waiting out a single multi-second
// block. Returns (nil, nil) only when ctx ends with nothing popped.
func (q *Queue) popBounded(ctx context.Context, key string) ([]byte, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, nil
		default:
		}
		res, err := q.client.BLPop(ctx, popPollInterval, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, nil
			}
			return nil, errs.Wrap(errs.Database, err, "pop queue")
		}
		if len(res) < 2 {
			continue
		}
		return []byte(res[1]), nil
	}
}

// NextBackoff returns the current retry delay and advances it exponentially
// up to maxBackoff. Call Reset after a successful pop/process cycle.
func (q *Queue) NextBackoff() time.Duration {
	d := q.backoff
	q.backoff *= 2
	if q.backoff > maxBackoff {
		q.backoff = maxBackoff
	}
	return d
}

// Reset restores the backoff delay to its minimum after a successful cycle.
func (q *Queue) Reset() { q.backoff = minBackoff }
