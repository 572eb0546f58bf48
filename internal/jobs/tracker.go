// Package jobs tracks posting runs. The authoritative copy of a
// running job lives in memory with a single writer (the run's worker);
// every change is persisted to the database and mirrored to Redis,
// where subscribers pick it up for live status streams.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/listkit/autoposter/internal/domain"
	"github.com/listkit/autoposter/internal/logger"
)

const (
	keyPrefix = "autoposter:jobs:"
	// snapshotTTL keeps finished-job snapshots around long enough for
	// late pollers without growing Redis unboundedly.
	snapshotTTL = 24 * time.Hour
)

// Store is the durable backing for job records.
type Store interface {
	Create(ctx context.Context, j *domain.Job) error
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	Update(ctx context.Context, j *domain.Job) error
}

// Tracker maintains job state through a run and serves snapshots.
type Tracker struct {
	store  Store
	redis  *redis.Client
	logger logger.Logger

	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func NewTracker(store Store, rdb *redis.Client, log logger.Logger) *Tracker {
	return &Tracker{
		store:  store,
		redis:  rdb,
		logger: log,
		jobs:   make(map[string]*domain.Job),
	}
}

func key(jobID string) string { return keyPrefix + jobID }

// Start registers a new running job with zero counters.
func (t *Tracker) Start(ctx context.Context, jobID string, total int) error {
	job := domain.NewJob(jobID, total)
	if err := t.store.Create(ctx, job); err != nil {
		return fmt.Errorf("create job %s: %w", jobID, err)
	}

	t.mu.Lock()
	t.jobs[jobID] = job
	t.mu.Unlock()

	t.broadcast(ctx, job)
	return nil
}

// RecordProgress points the job at the listing about to be attempted.
func (t *Tracker) RecordProgress(ctx context.Context, jobID, listingID, listingTitle string) error {
	return t.mutate(ctx, jobID, func(j *domain.Job) {
		j.CurrentListingID = &listingID
		j.CurrentListingTitle = &listingTitle
	})
}

// RecordSuccess bumps the completed counter. Counters only move after
// the listing reached a terminal state, never speculatively.
func (t *Tracker) RecordSuccess(ctx context.Context, jobID string) error {
	return t.mutate(ctx, jobID, func(j *domain.Job) {
		j.Completed++
	})
}

// RecordFailure bumps the failed counter.
func (t *Tracker) RecordFailure(ctx context.Context, jobID string) error {
	return t.mutate(ctx, jobID, func(j *domain.Job) {
		j.Failed++
	})
}

// Finish moves the job to its terminal status and stamps the end time.
func (t *Tracker) Finish(ctx context.Context, jobID string) error {
	err := t.mutate(ctx, jobID, func(j *domain.Job) {
		now := time.Now()
		j.CompletedAt = &now
		j.CurrentListingID = nil
		j.CurrentListingTitle = nil
		if j.Failed > 0 {
			j.Status = domain.JobStatusFailed
			msg := fmt.Sprintf("%d of %d listings failed", j.Failed, j.Total)
			j.ErrorMessage = &msg
		} else {
			j.Status = domain.JobStatusCompleted
		}
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	delete(t.jobs, jobID)
	t.mu.Unlock()
	return nil
}

// GetSnapshot serves the freshest available view: the in-memory job
// for active runs, the Redis mirror for recently finished ones, then
// the database.
func (t *Tracker) GetSnapshot(ctx context.Context, jobID string) (*domain.JobSnapshot, error) {
	t.mu.Lock()
	if job, ok := t.jobs[jobID]; ok {
		snap := job.Snapshot()
		t.mu.Unlock()
		return &snap, nil
	}
	t.mu.Unlock()

	payload, err := t.redis.Get(ctx, key(jobID)).Bytes()
	if err == nil {
		var snap domain.JobSnapshot
		if uerr := json.Unmarshal(payload, &snap); uerr == nil {
			return &snap, nil
		}
		t.logger.Warn("corrupt job snapshot in redis", logger.String("job_id", jobID))
	} else if !errors.Is(err, redis.Nil) {
		t.logger.Warn("redis snapshot lookup failed",
			logger.String("job_id", jobID), logger.Error(err))
	}

	job, err := t.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	snap := job.Snapshot()
	return &snap, nil
}

// Subscribe streams snapshots published for the job. The returned stop
// function releases the subscription; the channel closes once the
// subscription ends.
func (t *Tracker) Subscribe(ctx context.Context, jobID string) (<-chan domain.JobSnapshot, func()) {
	sub := t.redis.Subscribe(ctx, key(jobID))
	out := make(chan domain.JobSnapshot, 8)
	done := make(chan struct{})

	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var snap domain.JobSnapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					t.logger.Warn("dropping malformed job event",
						logger.String("job_id", jobID), logger.Error(err))
					continue
				}
				select {
				case out <- snap:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			if err := sub.Close(); err != nil {
				t.logger.Warn("failed to close job subscription", logger.Error(err))
			}
			close(done)
		})
	}
	return out, stop
}

// mutate applies fn to the job under the lock, then persists and
// broadcasts the result. Jobs not in memory (process restart) are
// reloaded from the store first.
func (t *Tracker) mutate(ctx context.Context, jobID string, fn func(*domain.Job)) error {
	t.mu.Lock()
	job, ok := t.jobs[jobID]
	if !ok {
		t.mu.Unlock()
		loaded, err := t.store.Get(ctx, jobID)
		if err != nil {
			return fmt.Errorf("load job %s: %w", jobID, err)
		}
		t.mu.Lock()
		if cached, again := t.jobs[jobID]; again {
			job = cached
		} else {
			job = loaded
			t.jobs[jobID] = job
		}
	}
	fn(job)
	copied := *job
	t.mu.Unlock()

	if err := t.store.Update(ctx, &copied); err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	t.broadcast(ctx, &copied)
	return nil
}

// broadcast mirrors the snapshot to Redis and notifies subscribers.
// Redis trouble degrades streaming only, so it is logged, not returned.
func (t *Tracker) broadcast(ctx context.Context, job *domain.Job) {
	snap := job.Snapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		t.logger.Error("failed to marshal job snapshot",
			logger.String("job_id", job.JobID), logger.Error(err))
		return
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, key(job.JobID), payload, snapshotTTL)
	pipe.Publish(ctx, key(job.JobID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("failed to mirror job snapshot to redis",
			logger.String("job_id", job.JobID), logger.Error(err))
	}
}
