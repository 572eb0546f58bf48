// Package poster drives one listing end-to-end: load the saved
// session, open a browsing context, fill the creation form field by
// field, confirm, and record the outcome. Failures are isolated per
// listing and never abort the batch.
package poster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/listkit/autoposter/internal/browser"
	"github.com/listkit/autoposter/internal/classify"
	"github.com/listkit/autoposter/internal/config"
	"github.com/listkit/autoposter/internal/domain"
	"github.com/listkit/autoposter/internal/locator"
	"github.com/listkit/autoposter/internal/logger"
	"github.com/listkit/autoposter/internal/session"
)

// SessionLoader reads saved session snapshots.
type SessionLoader interface {
	Load(accountID string) (*session.Record, error)
}

// ListingStore mutates listing status in the data layer.
type ListingStore interface {
	MarkPosting(ctx context.Context, id string) error
	MarkPosted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errorMsg string) error
}

// ErrorLogStore appends failure records.
type ErrorLogStore interface {
	Insert(ctx context.Context, e *domain.ErrorLog) error
}

// Tracker receives per-listing progress for the surrounding job.
// Counters must only be bumped after a listing reaches a terminal
// state.
type Tracker interface {
	Start(ctx context.Context, jobID string, total int) error
	RecordProgress(ctx context.Context, jobID, listingID, listingTitle string) error
	RecordSuccess(ctx context.Context, jobID string) error
	RecordFailure(ctx context.Context, jobID string) error
	Finish(ctx context.Context, jobID string) error
}

// Counters accumulates per-account outcome totals.
type Counters interface {
	RecordPosted(ctx context.Context, accountID string) error
	RecordFailed(ctx context.Context, accountID string) error
}

// Poster is the posting orchestrator. One Poster may serve many runs;
// it holds no per-run state.
type Poster struct {
	cfg      config.PostingConfig
	browser  browser.Browser
	chain    *locator.Chain
	sessions SessionLoader
	listings ListingStore
	errorLog ErrorLogStore
	tracker  Tracker
	counters Counters
	logger   logger.Logger
	tracer   trace.Tracer
}

func New(
	cfg config.PostingConfig,
	b browser.Browser,
	chain *locator.Chain,
	sessions SessionLoader,
	listings ListingStore,
	errorLog ErrorLogStore,
	tracker Tracker,
	counters Counters,
	log logger.Logger,
) *Poster {
	return &Poster{
		cfg:      cfg,
		browser:  b,
		chain:    chain,
		sessions: sessions,
		listings: listings,
		errorLog: errorLog,
		tracker:  tracker,
		counters: counters,
		logger:   log,
		tracer:   otel.Tracer("poster"),
	}
}

// RunBatch processes the listings strictly in order under the given
// job id. Cancellation takes effect between listings only: a listing
// that has started always runs to a terminal state, so work done after
// the cancel point uses a detached context.
func (p *Poster) RunBatch(ctx context.Context, jobID string, batch []domain.Listing) error {
	if err := p.tracker.Start(ctx, jobID, len(batch)); err != nil {
		return fmt.Errorf("start job %s: %w", jobID, err)
	}

	detached := context.WithoutCancel(ctx)
	for i := range batch {
		if ctx.Err() != nil {
			p.logger.Warn("run cancelled, skipping remaining listings",
				logger.String("job_id", jobID),
				logger.Int("remaining", len(batch)-i))
			break
		}

		l := &batch[i]
		if err := p.tracker.RecordProgress(detached, jobID, l.ID, l.Title); err != nil {
			p.logger.Warn("failed to record progress",
				logger.String("job_id", jobID), logger.Error(err))
		}

		if err := p.postOne(detached, l); err != nil {
			p.handleFailure(detached, l, err)
			if err := p.tracker.RecordFailure(detached, jobID); err != nil {
				p.logger.Error("failed to record job failure", logger.Error(err))
			}
			continue
		}

		if err := p.tracker.RecordSuccess(detached, jobID); err != nil {
			p.logger.Error("failed to record job success", logger.Error(err))
		}
	}

	if err := p.tracker.Finish(detached, jobID); err != nil {
		return fmt.Errorf("finish job %s: %w", jobID, err)
	}
	return nil
}

func (p *Poster) postOne(ctx context.Context, l *domain.Listing) error {
	ctx, span := p.tracer.Start(ctx, "poster.post_listing",
		trace.WithAttributes(
			attribute.String("listing_id", l.ID),
			attribute.String("account_id", l.AccountID),
		))
	defer span.End()

	rec, err := p.sessions.Load(l.AccountID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return &SessionMissingError{AccountID: l.AccountID}
		}
		return fmt.Errorf("load session: %w", err)
	}

	if err := p.listings.MarkPosting(ctx, l.ID); err != nil {
		return fmt.Errorf("mark posting: %w", err)
	}

	page, err := p.browser.NewPage(ctx, rec.State)
	if err != nil {
		return fmt.Errorf("open browsing context: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			p.logger.Warn("failed to close page",
				logger.String("listing_id", l.ID), logger.Error(cerr))
		}
	}()

	if err := page.Navigate(ctx, p.cfg.CreateURL); err != nil {
		return p.failed(ctx, page, l, &NavigationError{URL: p.cfg.CreateURL, Err: err})
	}
	if err := p.fillForm(ctx, page, l); err != nil {
		return p.failed(ctx, page, l, err)
	}
	if err := p.confirm(ctx, page); err != nil {
		return p.failed(ctx, page, l, err)
	}

	// The listing is live at this point. A status-update failure is
	// logged, not surfaced, so the outcome is never double-counted.
	if err := p.listings.MarkPosted(ctx, l.ID); err != nil {
		p.logger.Error("listing published but status update failed",
			logger.String("listing_id", l.ID), logger.Error(err))
	}
	if err := p.counters.RecordPosted(ctx, l.AccountID); err != nil {
		p.logger.Warn("failed to record posted counter", logger.Error(err))
	}

	p.logger.Info("listing posted",
		logger.String("listing_id", l.ID),
		logger.String("account_id", l.AccountID),
		logger.String("title", l.Title))
	return nil
}

// fillForm fills the creation form in a fixed order. The image goes
// first since uploading shifts the page layout; price is anchored to
// the just-filled title for the positional fallback.
func (p *Poster) fillForm(ctx context.Context, page browser.Page, l *domain.Listing) error {
	if l.ImageRef != nil {
		err := p.chain.Fill(ctx, page, locator.Target{
			Field: locator.FieldImage,
			Kind:  locator.KindFile,
			Value: *l.ImageRef,
		})
		if err != nil {
			return err
		}
	}

	if err := p.chain.Fill(ctx, page, locator.Target{
		Field: locator.FieldTitle,
		Kind:  locator.KindText,
		Label: "Title",
		Role:  "textbox",
		Value: l.Title,
	}); err != nil {
		return err
	}

	if err := p.chain.Fill(ctx, page, locator.Target{
		Field:      locator.FieldPrice,
		Kind:       locator.KindText,
		Label:      "Price",
		Role:       "textbox",
		Value:      strconv.FormatFloat(l.Price, 'f', -1, 64),
		AfterValue: l.Title,
	}); err != nil {
		return err
	}

	if err := p.chain.Select(ctx, page, locator.Target{
		Field: locator.FieldCategory,
		Kind:  locator.KindSelect,
		Label: "Category",
		Role:  "combobox",
		Value: p.cfg.Category,
	}); err != nil {
		return err
	}

	if err := p.chain.Select(ctx, page, locator.Target{
		Field: locator.FieldCondition,
		Kind:  locator.KindSelect,
		Label: "Condition",
		Role:  "combobox",
		Value: p.cfg.Condition,
	}); err != nil {
		return err
	}

	if err := p.chain.Fill(ctx, page, locator.Target{
		Field: locator.FieldDescription,
		Kind:  locator.KindText,
		Label: "Description",
		Role:  "textbox",
		Value: l.Description,
	}); err != nil {
		return err
	}

	return p.chain.Select(ctx, page, locator.Target{
		Field: locator.FieldAvailability,
		Kind:  locator.KindSelect,
		Label: "Availability",
		Role:  "combobox",
		Value: p.cfg.Availability,
	})
}

func (p *Poster) confirm(ctx context.Context, page browser.Page) error {
	if err := p.chain.Click(ctx, page, locator.Target{
		Field: locator.FieldNext,
		Kind:  locator.KindButton,
		Label: "Next",
		Role:  "button",
	}); err != nil {
		return &ConfirmationError{Action: "Next", Err: err}
	}

	if err := p.chain.Click(ctx, page, locator.Target{
		Field: locator.FieldPublish,
		Kind:  locator.KindButton,
		Label: "Publish",
		Role:  "button",
	}); err != nil {
		return &ConfirmationError{Action: "Publish", Err: err}
	}
	return nil
}

// failed captures a diagnostic screenshot while the page is still
// alive, then hands the decorated error back to the batch loop.
func (p *Poster) failed(ctx context.Context, page browser.Page, l *domain.Listing, cause error) error {
	ref := p.captureScreenshot(ctx, page, l.ID)
	return &attemptError{err: cause, screenshotRef: ref}
}

func (p *Poster) captureScreenshot(ctx context.Context, page browser.Page, listingID string) *string {
	shot, err := page.Screenshot(ctx)
	if err != nil {
		p.logger.Warn("failed to capture screenshot",
			logger.String("listing_id", listingID), logger.Error(err))
		return nil
	}

	if err := os.MkdirAll(p.cfg.ScreenshotDir, 0o755); err != nil {
		p.logger.Warn("failed to create screenshot dir", logger.Error(err))
		return nil
	}
	name := fmt.Sprintf("%s-%d.png", listingID, time.Now().Unix())
	path := filepath.Join(p.cfg.ScreenshotDir, name)
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		p.logger.Warn("failed to write screenshot",
			logger.String("path", path), logger.Error(err))
		return nil
	}
	return &path
}

func (p *Poster) handleFailure(ctx context.Context, l *domain.Listing, cause error) {
	category := classify.Classify(cause.Error())
	var missing *SessionMissingError
	if errors.As(cause, &missing) {
		category = domain.CategorySessionMissing
	}

	var ref *string
	var attempt *attemptError
	if errors.As(cause, &attempt) {
		ref = attempt.screenshotRef
	}

	p.logger.Error("listing failed",
		logger.String("listing_id", l.ID),
		logger.String("account_id", l.AccountID),
		logger.String("category", string(category)),
		logger.Error(cause))

	if err := p.listings.MarkFailed(ctx, l.ID, cause.Error()); err != nil {
		p.logger.Error("failed to mark listing as failed",
			logger.String("listing_id", l.ID), logger.Error(err))
	}

	entry := &domain.ErrorLog{
		ListingID:     l.ID,
		Category:      category,
		Message:       cause.Error(),
		ScreenshotRef: ref,
	}
	if err := p.errorLog.Insert(ctx, entry); err != nil {
		p.logger.Error("failed to insert error log",
			logger.String("listing_id", l.ID), logger.Error(err))
	}

	if err := p.counters.RecordFailed(ctx, l.AccountID); err != nil {
		p.logger.Warn("failed to record failed counter", logger.Error(err))
	}
}
