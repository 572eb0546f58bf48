package metrics

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listkit/autoposter/internal/logger"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewTracker(rdb, logger.NewNopLogger())
}

func TestTracker_RecordAndAggregate(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.RecordPosted(ctx, "seller@example.com"))
	require.NoError(t, tracker.RecordPosted(ctx, "seller@example.com"))
	require.NoError(t, tracker.RecordFailed(ctx, "seller@example.com"))
	require.NoError(t, tracker.RecordPosted(ctx, "other@example.com"))
	require.NoError(t, tracker.UpdateLastRun(ctx))

	stats, err := tracker.GetStats(ctx, []string{"seller@example.com", "other@example.com"})
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.TotalPosted)
	assert.Equal(t, int64(1), stats.TotalFailed)
	require.Len(t, stats.Accounts, 2)
	assert.Equal(t, int64(2), stats.Accounts[0].Posted)
	assert.Equal(t, int64(1), stats.Accounts[0].Failed)
	assert.Equal(t, int64(1), stats.Accounts[1].Posted)
	assert.False(t, stats.LastRun.IsZero())
}

func TestTracker_MissingCountersReadAsZero(t *testing.T) {
	tracker := newTestTracker(t)

	stats, err := tracker.GetStats(context.Background(), []string{"ghost@example.com"})
	require.NoError(t, err)

	assert.Equal(t, int64(0), stats.TotalPosted)
	assert.Equal(t, int64(0), stats.TotalFailed)
	assert.True(t, stats.LastRun.IsZero())
}

// Account keys are normalized, so the same account reached via mixed
// case maps to one counter.
func TestTracker_KeysNormalizeAccountID(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.RecordPosted(ctx, "Seller@Example.com"))
	require.NoError(t, tracker.RecordPosted(ctx, "seller@example.com"))

	stats, err := tracker.GetStats(ctx, []string{"seller@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalPosted)
}
