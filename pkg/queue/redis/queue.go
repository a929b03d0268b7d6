// Package redis provides a queue.Queue on a Redis sorted set scored by the
// time a dispatch becomes visible.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/queue"
	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "conductor:dispatches"

// claimScript leases up to ARGV[2] members scored at or below ARGV[1] by
// moving their score to ARGV[3], and returns their payloads.
var claimScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local payloads = {}
for _, id in ipairs(ids) do
	redis.call('ZADD', KEYS[1], ARGV[3], id)
	local payload = redis.call('HGET', KEYS[2], id)
	if payload then
		table.insert(payloads, payload)
	end
end
return payloads
`)

// Queue stores dispatch payloads in a hash and their visibility in a sorted set.
type Queue struct {
	client      goredis.UniversalClient
	scheduleKey string
	payloadKey  string
}

var _ queue.Queue = (*Queue)(nil)

// NewQueue connects to the Redis server at url (redis://host:port/db).
func NewQueue(url string) (*Queue, error) {
	options, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return NewQueueWithClient(goredis.NewClient(options), defaultPrefix), nil
}

// NewQueueWithClient wraps an existing client; keys are namespaced by prefix.
func NewQueueWithClient(client goredis.UniversalClient, prefix string) *Queue {
	return &Queue{
		client:      client,
		scheduleKey: prefix + ":schedule",
		payloadKey:  prefix + ":payload",
	}
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (q *Queue) Enqueue(ctx context.Context, dispatch *models.Dispatch) error {
	payload, err := json.Marshal(dispatch)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, q.payloadKey, dispatch.ID, payload)
		pipe.ZAdd(ctx, q.scheduleKey, goredis.Z{Score: score(dispatch.FireAt), Member: dispatch.ID})

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue dispatch: %w", err)
	}

	return nil
}

func (q *Queue) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Dispatch, error) {
	payloads, err := claimScript.Run(ctx, q.client,
		[]string{q.scheduleKey, q.payloadKey},
		strconv.FormatInt(now.UnixMilli(), 10),
		limit,
		strconv.FormatInt(now.Add(lease).UnixMilli(), 10),
	).StringSlice()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("failed to claim dispatches: %w", err)
	}

	dispatches := make([]*models.Dispatch, 0, len(payloads))

	for _, payload := range payloads {
		var dispatch models.Dispatch

		if err := json.Unmarshal([]byte(payload), &dispatch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dispatch: %w", err)
		}

		dispatches = append(dispatches, &dispatch)
	}

	return dispatches, nil
}

func (q *Queue) Ack(ctx context.Context, id string) error {
	var removed *goredis.IntCmd

	_, err := q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		removed = pipe.ZRem(ctx, q.scheduleKey, id)
		pipe.HDel(ctx, q.payloadKey, id)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ack dispatch: %w", err)
	}

	if removed.Val() == 0 {
		return queue.ErrDispatchNotFound
	}

	return nil
}

func (q *Queue) Retry(ctx context.Context, dispatch *models.Dispatch, fireAt time.Time) error {
	exists, err := q.client.HExists(ctx, q.payloadKey, dispatch.ID).Result()
	if err != nil {
		return fmt.Errorf("failed to look up dispatch: %w", err)
	}

	if !exists {
		return queue.ErrDispatchNotFound
	}

	stored := *dispatch
	stored.FireAt = fireAt

	return q.Enqueue(ctx, &stored)
}

func (q *Queue) Pending(ctx context.Context) (int, error) {
	count, err := q.client.ZCard(ctx, q.scheduleKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count dispatches: %w", err)
	}

	return int(count), nil
}

func (q *Queue) HealthCheck(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *Queue) Close() error {
	return q.client.Close()
}
