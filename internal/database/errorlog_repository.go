package database

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/listkit/autoposter/internal/domain"
)

const (
	defaultErrorLogLimit = 50
	maxErrorLogLimit     = 500
)

// ErrorLogRepository appends and queries posting error records.
// Rows are append-only; there is no update path.
type ErrorLogRepository struct {
	db *sqlx.DB
}

// NewErrorLogRepository creates a new repository.
func NewErrorLogRepository(db *sqlx.DB) *ErrorLogRepository {
	return &ErrorLogRepository{db: db}
}

// Insert appends one error log entry and assigns its id and timestamp.
func (r *ErrorLogRepository) Insert(ctx context.Context, e *domain.ErrorLog) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	query := `
		INSERT INTO error_logs (id, listing_id, category, message, screenshot_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		e.ID, e.ListingID, e.Category, e.Message, e.ScreenshotRef,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert error log: %w", err)
	}
	return nil
}

// ErrorLogFilter narrows List results. Zero values mean "no filter".
type ErrorLogFilter struct {
	ListingID string
	Category  domain.ErrorCategory
	Limit     int
}

// List returns error log entries, newest first.
func (r *ErrorLogRepository) List(ctx context.Context, filter ErrorLogFilter) ([]domain.ErrorLog, error) {
	query := `SELECT id, listing_id, category, message, screenshot_ref, created_at
		FROM error_logs WHERE 1=1`
	args := []any{}

	if filter.ListingID != "" {
		args = append(args, filter.ListingID)
		query += ` AND listing_id = $` + strconv.Itoa(len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += ` AND category = $` + strconv.Itoa(len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultErrorLogLimit
	}
	if limit > maxErrorLogLimit {
		limit = maxErrorLogLimit
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))

	entries := []domain.ErrorLog{}
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list error logs: %w", err)
	}
	return entries, nil
}
