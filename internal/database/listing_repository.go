package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/listkit/autoposter/internal/domain"
)

// listingSelectList is the column list for SELECT/RETURNING on listings
// (single source for schema changes).
const listingSelectList = `id, account_id, title, description, price, image_ref,
			scheduled_at, status, error_message, retry_count, created_at, updated_at`

// ListingRepository manages marketplace listings in PostgreSQL.
type ListingRepository struct {
	db *sqlx.DB
}

// NewListingRepository creates a new repository.
func NewListingRepository(db *sqlx.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// execExpectOneRow runs an exec and returns domain.ErrNotFound when no row was affected.
func (r *ListingRepository) execExpectOneRow(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Create inserts a validated listing and assigns its id.
func (r *ListingRepository) Create(ctx context.Context, l *domain.Listing) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	query := `
		INSERT INTO listings (id, account_id, title, description, price, image_ref,
			scheduled_at, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		l.ID, l.AccountID, l.Title, l.Description, l.Price, l.ImageRef,
		l.ScheduledAt, l.Status, l.RetryCount,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create listing: %w", err)
	}
	return nil
}

// GetByID retrieves a single listing.
func (r *ListingRepository) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	query := `SELECT ` + listingSelectList + ` FROM listings WHERE id = $1`

	var l domain.Listing
	err := r.db.GetContext(ctx, &l, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return &l, nil
}

// List returns listings, newest first, optionally filtered by status.
func (r *ListingRepository) List(ctx context.Context, status domain.ListingStatus, limit int) ([]domain.Listing, error) {
	listings := []domain.Listing{}
	var err error
	if status == "" {
		query := `SELECT ` + listingSelectList + ` FROM listings
			ORDER BY created_at DESC LIMIT $1`
		err = r.db.SelectContext(ctx, &listings, query, limit)
	} else {
		query := `SELECT ` + listingSelectList + ` FROM listings
			WHERE status = $1 ORDER BY created_at DESC LIMIT $2`
		err = r.db.SelectContext(ctx, &listings, query, status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return listings, nil
}

// FetchDue returns pending listings whose scheduled time has passed,
// oldest first. Runs process this queue in FIFO order.
func (r *ListingRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]domain.Listing, error) {
	query := `SELECT ` + listingSelectList + ` FROM listings
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2`

	listings := []domain.Listing{}
	if err := r.db.SelectContext(ctx, &listings, query, now, limit); err != nil {
		return nil, fmt.Errorf("fetch due listings: %w", err)
	}
	return listings, nil
}

// FetchByIDs returns the pending listings among the given ids, FIFO by
// scheduled time. Non-pending ids are silently skipped so a re-submitted
// run cannot re-post an already posted listing.
func (r *ListingRepository) FetchByIDs(ctx context.Context, ids []string) ([]domain.Listing, error) {
	query := `SELECT ` + listingSelectList + ` FROM listings
		WHERE id = ANY($1) AND status = 'pending'
		ORDER BY scheduled_at ASC`

	listings := []domain.Listing{}
	if err := r.db.SelectContext(ctx, &listings, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("fetch listings by ids: %w", err)
	}
	return listings, nil
}

// MarkPosting transitions pending -> posting. The status guard keeps the
// transition monotonic even if two runs race on the same listing.
func (r *ListingRepository) MarkPosting(ctx context.Context, id string) error {
	query := `
		UPDATE listings
		SET status = 'posting', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`
	if err := r.execExpectOneRow(ctx, query, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark posting: %w", err)
	}
	return nil
}

// MarkPosted transitions posting -> posted and clears any stale error message.
func (r *ListingRepository) MarkPosted(ctx context.Context, id string) error {
	query := `
		UPDATE listings
		SET status = 'posted', error_message = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'posting'`
	if err := r.execExpectOneRow(ctx, query, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark posted: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure and increments the retry counter.
// Accepts listings in pending state too: a session-missing failure never
// enters posting.
func (r *ListingRepository) MarkFailed(ctx context.Context, id, errorMsg string) error {
	query := `
		UPDATE listings
		SET status = 'failed',
		    error_message = $2,
		    retry_count = retry_count + 1,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'posting')`
	if err := r.execExpectOneRow(ctx, query, id, errorMsg); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ResetForRetry is the explicit operator action that re-queues a failed
// listing. Retry count is kept; there is no automatic re-queue.
func (r *ListingRepository) ResetForRetry(ctx context.Context, id string) error {
	query := `
		UPDATE listings
		SET status = 'pending', error_message = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'failed'`
	if err := r.execExpectOneRow(ctx, query, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("reset for retry: %w", err)
	}
	return nil
}

// AccountStats holds per-account posting counts for the health endpoint.
type AccountStats struct {
	AccountID string `db:"account_id" json:"account_id"`
	Total     int64  `db:"total"      json:"total"`
	Posted    int64  `db:"posted"     json:"posted"`
	Failed    int64  `db:"failed"     json:"failed"`
}

// StatsByAccount aggregates listing counts per account.
func (r *ListingRepository) StatsByAccount(ctx context.Context) ([]AccountStats, error) {
	query := `
		SELECT account_id,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'posted') AS posted,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed
		FROM listings
		GROUP BY account_id
		ORDER BY account_id`

	stats := []AccountStats{}
	if err := r.db.SelectContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("stats by account: %w", err)
	}
	return stats, nil
}
