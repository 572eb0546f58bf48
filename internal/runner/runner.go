// Package runner accepts posting run requests and executes them on a
// bounded worker pool. Submitting a run returns a job id immediately;
// the outcome travels through the job tracker, never through the
// submitting call.
package runner

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/listkit/autoposter/internal/config"
	"github.com/listkit/autoposter/internal/domain"
	"github.com/listkit/autoposter/internal/logger"
)

// fetchLimit caps how many due listings one scheduled run picks up.
const fetchLimit = 100

// ErrQueueFull is returned when the run queue cannot accept more work.
var ErrQueueFull = errors.New("run queue is full")

// Request asks for one posting run. An empty ListingIDs slice means
// "everything due"; a caller-supplied JobID tags the run for tracking.
type Request struct {
	JobID      string
	ListingIDs []string
}

// ListingSource selects the listings a run will process.
type ListingSource interface {
	FetchDue(ctx context.Context, now time.Time, limit int) ([]domain.Listing, error)
	FetchByIDs(ctx context.Context, ids []string) ([]domain.Listing, error)
}

// BatchRunner executes one run end to end.
type BatchRunner interface {
	RunBatch(ctx context.Context, jobID string, batch []domain.Listing) error
}

// RunStamper records when the most recent run happened.
type RunStamper interface {
	UpdateLastRun(ctx context.Context) error
}

// Queue is the run queue and its workers.
type Queue struct {
	cfg     config.RunnerConfig
	source  ListingSource
	poster  BatchRunner
	stamper RunStamper
	logger  logger.Logger

	requests chan Request
	locks    accountLocks
	cron     *cron.Cron

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

func NewQueue(
	cfg config.RunnerConfig,
	source ListingSource,
	poster BatchRunner,
	stamper RunStamper,
	log logger.Logger,
) *Queue {
	return &Queue{
		cfg:      cfg,
		source:   source,
		poster:   poster,
		stamper:  stamper,
		logger:   log,
		requests: make(chan Request, cfg.QueueSize),
		locks:    accountLocks{locks: make(map[string]*sync.Mutex)},
		stopChan: make(chan struct{}),
	}
}

// Start launches the workers and, when configured, the cron schedule
// that enqueues a "run everything due" request.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return nil
	}
	q.started = true
	q.mu.Unlock()

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}

	if q.cfg.CronSpec != "" {
		q.cron = cron.New()
		_, err := q.cron.AddFunc(q.cfg.CronSpec, func() {
			if _, err := q.Submit(Request{}); err != nil {
				q.logger.Warn("scheduled run not enqueued", logger.Error(err))
			}
		})
		if err != nil {
			return err
		}
		q.cron.Start()
	}

	q.logger.Info("run queue started",
		logger.Int("workers", q.cfg.Workers),
		logger.Int("queue_size", q.cfg.QueueSize),
		logger.String("cron_spec", q.cfg.CronSpec))
	return nil
}

// Stop drains nothing: queued requests not yet picked up are dropped,
// in-flight runs finish their current listing per the poster's
// cancellation rules.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	if q.cron != nil {
		<-q.cron.Stop().Done()
	}
	close(q.stopChan)
	q.wg.Wait()
	q.logger.Info("run queue stopped")
}

// Submit enqueues a run and returns its job id without waiting.
func (q *Queue) Submit(req Request) (string, error) {
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	select {
	case q.requests <- req:
		return req.JobID, nil
	default:
		return "", ErrQueueFull
	}
}

// RunNow executes a request synchronously on the caller's goroutine,
// bypassing the queue. Used by the CLI, which needs the run's outcome
// for its exit status.
func (q *Queue) RunNow(ctx context.Context, req Request) (string, error) {
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	if err := q.process(ctx, req); err != nil {
		return req.JobID, err
	}
	return req.JobID, nil
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case req := <-q.requests:
			if err := q.process(ctx, req); err != nil {
				q.logger.Error("run failed before any listing was attempted",
					logger.String("job_id", req.JobID), logger.Error(err))
			}
		case <-q.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) process(ctx context.Context, req Request) error {
	batch, err := q.fetch(ctx, req)
	if err != nil {
		return err
	}

	// One run per account at a time: a second run touching an account
	// waits here instead of racing the first for the same session.
	unlock := q.locks.lockAccounts(batchAccounts(batch))
	defer unlock()

	q.logger.Info("run started",
		logger.String("job_id", req.JobID),
		logger.Int("listings", len(batch)))

	if err := q.poster.RunBatch(ctx, req.JobID, batch); err != nil {
		return err
	}

	if q.stamper != nil {
		if err := q.stamper.UpdateLastRun(context.WithoutCancel(ctx)); err != nil {
			q.logger.Warn("failed to stamp last run", logger.Error(err))
		}
	}
	return nil
}

func (q *Queue) fetch(ctx context.Context, req Request) ([]domain.Listing, error) {
	if len(req.ListingIDs) > 0 {
		return q.source.FetchByIDs(ctx, req.ListingIDs)
	}
	return q.source.FetchDue(ctx, time.Now(), fetchLimit)
}

func batchAccounts(batch []domain.Listing) []string {
	seen := make(map[string]struct{}, len(batch))
	accounts := make([]string, 0, len(batch))
	for i := range batch {
		if _, ok := seen[batch[i].AccountID]; ok {
			continue
		}
		seen[batch[i].AccountID] = struct{}{}
		accounts = append(accounts, batch[i].AccountID)
	}
	sort.Strings(accounts)
	return accounts
}

// accountLocks hands out one mutex per account. Locks are acquired in
// sorted order so two overlapping runs cannot deadlock.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (a *accountLocks) lockAccounts(accounts []string) (unlock func()) {
	held := make([]*sync.Mutex, 0, len(accounts))
	for _, account := range accounts {
		l := a.get(account)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (a *accountLocks) get(account string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[account]
	if !ok {
		l = &sync.Mutex{}
		a.locks[account] = l
	}
	return l
}
