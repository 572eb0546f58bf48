// Package metrics keeps per-account posting counters in Redis. The
// counters are operator-facing health signals, not billing data: a
// lost increment is acceptable, so failures here are logged by callers
// and never abort a posting run.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/listkit/autoposter/internal/logger"
)

// counterTTL bounds how long idle per-account counters survive.
const counterTTL = 30 * 24 * time.Hour

// Tracker implements Recorder on Redis.
type Tracker struct {
	client redis.UniversalClient
	keys   Keys
	logger logger.Logger
}

var _ Recorder = (*Tracker)(nil)

func NewTracker(client redis.UniversalClient, log logger.Logger) *Tracker {
	return &Tracker{
		client: client,
		logger: log,
	}
}

// RecordPosted increments the posted counter for an account.
func (t *Tracker) RecordPosted(ctx context.Context, accountID string) error {
	return t.increment(ctx, t.keys.Posted(accountID))
}

// RecordFailed increments the failed counter for an account.
func (t *Tracker) RecordFailed(ctx context.Context, accountID string) error {
	return t.increment(ctx, t.keys.Failed(accountID))
}

func (t *Tracker) increment(ctx context.Context, key string) error {
	pipe := t.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment %s: %w", key, err)
	}
	return nil
}

// UpdateLastRun stamps the time of the most recent posting run.
func (t *Tracker) UpdateLastRun(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if err := t.client.Set(ctx, keyLastRun, now, 0).Err(); err != nil {
		return fmt.Errorf("update last run: %w", err)
	}
	return nil
}

// GetStats aggregates counters for the given accounts with a single
// round trip per counter kind.
func (t *Tracker) GetStats(ctx context.Context, accountIDs []string) (*Stats, error) {
	stats := &Stats{Accounts: make([]AccountTotals, 0, len(accountIDs))}

	pipe := t.client.Pipeline()
	posted := make([]*redis.StringCmd, len(accountIDs))
	failed := make([]*redis.StringCmd, len(accountIDs))
	for i, id := range accountIDs {
		posted[i] = pipe.Get(ctx, t.keys.Posted(id))
		failed[i] = pipe.Get(ctx, t.keys.Failed(id))
	}
	lastRun := pipe.Get(ctx, keyLastRun)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("fetch metrics: %w", err)
	}

	for i, id := range accountIDs {
		totals := AccountTotals{
			AccountID: id,
			Posted:    counterValue(posted[i]),
			Failed:    counterValue(failed[i]),
		}
		stats.TotalPosted += totals.Posted
		stats.TotalFailed += totals.Failed
		stats.Accounts = append(stats.Accounts, totals)
	}

	if raw, err := lastRun.Result(); err == nil {
		if ts, perr := time.Parse(time.RFC3339, raw); perr == nil {
			stats.LastRun = ts
		} else {
			t.logger.Warn("malformed last-run timestamp in redis",
				logger.String("value", raw))
		}
	}

	return stats, nil
}

// counterValue reads an Incr-maintained counter, treating a missing
// key as zero.
func counterValue(cmd *redis.StringCmd) int64 {
	raw, err := cmd.Result()
	if err != nil {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
