package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/listkit/autoposter/internal/database"
	"github.com/listkit/autoposter/internal/domain"
	"github.com/listkit/autoposter/internal/logger"
	"github.com/listkit/autoposter/internal/metrics"
	"github.com/listkit/autoposter/internal/runner"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// JobSource serves job snapshots and live update subscriptions.
type JobSource interface {
	GetSnapshot(ctx context.Context, jobID string) (*domain.JobSnapshot, error)
	Subscribe(ctx context.Context, jobID string) (<-chan domain.JobSnapshot, func())
}

// ListingStore is the listing persistence surface the API needs.
type ListingStore interface {
	Create(ctx context.Context, l *domain.Listing) error
	List(ctx context.Context, status domain.ListingStatus, limit int) ([]domain.Listing, error)
	ResetForRetry(ctx context.Context, id string) error
	StatsByAccount(ctx context.Context) ([]database.AccountStats, error)
}

// ErrorLogSource queries the append-only error log.
type ErrorLogSource interface {
	List(ctx context.Context, filter database.ErrorLogFilter) ([]domain.ErrorLog, error)
}

// SessionChecker reports whether an account has a saved session.
type SessionChecker interface {
	Stat(accountID string) (exists bool, age time.Duration, err error)
}

// RunSubmitter enqueues posting runs.
type RunSubmitter interface {
	Submit(req runner.Request) (string, error)
}

// CounterSource aggregates per-account posting counters.
type CounterSource interface {
	GetStats(ctx context.Context, accountIDs []string) (*metrics.Stats, error)
}

// Handlers provides the HTTP handlers for the API.
type Handlers struct {
	jobs     JobSource
	listings ListingStore
	errs     ErrorLogSource
	sessions SessionChecker
	queue    RunSubmitter
	counters CounterSource
	stream   StreamConfig
	logger   logger.Logger
	version  string
}

// StreamConfig bounds the SSE stream.
type StreamConfig struct {
	MaxDuration       time.Duration
	KeepaliveInterval time.Duration
}

func NewHandlers(
	jobs JobSource,
	listings ListingStore,
	errs ErrorLogSource,
	sessions SessionChecker,
	queue RunSubmitter,
	counters CounterSource,
	stream StreamConfig,
	log logger.Logger,
	version string,
) *Handlers {
	return &Handlers{
		jobs:     jobs,
		listings: listings,
		errs:     errs,
		sessions: sessions,
		queue:    queue,
		counters: counters,
		stream:   stream,
		logger:   log,
		version:  version,
	}
}

// Health handles GET /health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "autoposter",
		"version": h.version,
	})
}

type createListingRequest struct {
	AccountID   string     `json:"account_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Price       float64    `json:"price"`
	ImageRef    *string    `json:"image_ref"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// CreateListing handles POST /api/listings.
func (h *Handlers) CreateListing(c *gin.Context) {
	var req createListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	imageRef := ""
	if req.ImageRef != nil {
		imageRef = *req.ImageRef
	}
	scheduledAt := time.Time{}
	if req.ScheduledAt != nil {
		scheduledAt = *req.ScheduledAt
	}

	l, err := domain.NewListing(req.AccountID, req.Title, req.Description, req.Price, &imageRef, scheduledAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.listings.Create(c.Request.Context(), l); err != nil {
		h.logger.Error("failed to create listing", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create listing"})
		return
	}

	c.JSON(http.StatusCreated, l)
}

// ListListings handles GET /api/listings.
func (h *Handlers) ListListings(c *gin.Context) {
	status := domain.ListingStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + string(status)})
		return
	}

	listings, err := h.listings.List(c.Request.Context(), status, queryLimit(c))
	if err != nil {
		h.logger.Error("failed to list listings", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list listings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"listings": listings, "count": len(listings)})
}

// RetryListing handles POST /api/listings/:id/retry. Only failed
// listings can be reset; the retry count survives the reset.
func (h *Handlers) RetryListing(c *gin.Context) {
	id := c.Param("id")
	if err := h.listings.ResetForRetry(c.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no failed listing with that id"})
			return
		}
		h.logger.Error("failed to reset listing", logger.String("listing_id", id), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset listing"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"listing_id": id, "status": domain.ListingStatusPending})
}

type submitRunRequest struct {
	JobID      string   `json:"job_id"`
	ListingIDs []string `json:"listing_ids"`
}

// SubmitRun handles POST /api/runs. The run executes asynchronously;
// the returned job id is the handle for polling and streaming.
func (h *Handlers) SubmitRun(c *gin.Context) {
	var req submitRunRequest
	// An empty body means "run everything due".
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	jobID, err := h.queue.Submit(runner.Request{JobID: req.JobID, ListingIDs: req.ListingIDs})
	if err != nil {
		if errors.Is(err, runner.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run queue is full, try again later"})
			return
		}
		h.logger.Error("failed to submit run", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit run"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// GetJob handles GET /api/jobs/:id.
func (h *Handlers) GetJob(c *gin.Context) {
	jobID := c.Param("id")
	snap, err := h.jobs.GetSnapshot(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		h.logger.Error("failed to get job", logger.String("job_id", jobID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// ListErrors handles GET /api/errors.
func (h *Handlers) ListErrors(c *gin.Context) {
	filter := database.ErrorLogFilter{
		ListingID: c.Query("listing_id"),
		Category:  domain.ErrorCategory(c.Query("category")),
		Limit:     queryLimit(c),
	}

	entries, err := h.errs.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list error logs", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list errors"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"errors": entries, "count": len(entries)})
}

type accountHealth struct {
	AccountID     string  `json:"account_id"`
	SessionSaved  bool    `json:"session_saved"`
	SessionAgeSec float64 `json:"session_age_seconds"`
	Total         int64   `json:"total"`
	Posted        int64   `json:"posted"`
	Failed        int64   `json:"failed"`
	CounterPosted int64   `json:"counter_posted"`
	CounterFailed int64   `json:"counter_failed"`
}

// AccountsHealth handles GET /api/accounts/health: listing totals from
// the database, lifetime counters from Redis, session presence from
// the store.
func (h *Handlers) AccountsHealth(c *gin.Context) {
	stats, err := h.listings.StatsByAccount(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to aggregate account stats", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate account stats"})
		return
	}

	accountIDs := make([]string, len(stats))
	for i := range stats {
		accountIDs[i] = stats[i].AccountID
	}

	counters, err := h.counters.GetStats(c.Request.Context(), accountIDs)
	if err != nil {
		h.logger.Warn("counters unavailable for account health", logger.Error(err))
		counters = &metrics.Stats{}
	}
	byAccount := make(map[string]metrics.AccountTotals, len(counters.Accounts))
	for _, totals := range counters.Accounts {
		byAccount[totals.AccountID] = totals
	}

	out := make([]accountHealth, 0, len(stats))
	for _, s := range stats {
		item := accountHealth{
			AccountID:     s.AccountID,
			Total:         s.Total,
			Posted:        s.Posted,
			Failed:        s.Failed,
			CounterPosted: byAccount[s.AccountID].Posted,
			CounterFailed: byAccount[s.AccountID].Failed,
		}
		exists, age, serr := h.sessions.Stat(s.AccountID)
		if serr != nil {
			h.logger.Warn("session stat failed",
				logger.String("account_id", s.AccountID), logger.Error(serr))
		}
		item.SessionSaved = exists
		if exists {
			item.SessionAgeSec = age.Seconds()
		}
		out = append(out, item)
	}

	c.JSON(http.StatusOK, gin.H{"accounts": out, "last_run": counters.LastRun})
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
