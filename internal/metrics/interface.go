package metrics

import "context"

// Recorder tracks posting outcomes per account.
type Recorder interface {
	// RecordPosted increments the posted counter for an account.
	RecordPosted(ctx context.Context, accountID string) error
	// RecordFailed increments the failed counter for an account.
	RecordFailed(ctx context.Context, accountID string) error
	// UpdateLastRun stamps the time of the most recent posting run.
	UpdateLastRun(ctx context.Context) error
	// GetStats aggregates counters for the given accounts.
	GetStats(ctx context.Context, accountIDs []string) (*Stats, error)
}
