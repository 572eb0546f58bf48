package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/listkit/autoposter/internal/domain"
)

const jobSelectList = `job_id, status, total, completed, failed,
			current_listing_id, current_listing_title, error_message,
			started_at, completed_at`

// JobRepository persists posting jobs in PostgreSQL.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job row.
func (r *JobRepository) Create(ctx context.Context, j *domain.Job) error {
	query := `
		INSERT INTO posting_jobs (job_id, status, total, completed, failed, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := r.db.ExecContext(ctx, query,
		j.JobID, j.Status, j.Total, j.Completed, j.Failed, j.StartedAt); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Get retrieves a job by id.
func (r *JobRepository) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobSelectList + ` FROM posting_jobs WHERE job_id = $1`

	var j domain.Job
	err := r.db.GetContext(ctx, &j, query, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// Update writes the full mutable state of a job. The tracker is the
// single writer per job so a whole-row update cannot lose counts.
func (r *JobRepository) Update(ctx context.Context, j *domain.Job) error {
	query := `
		UPDATE posting_jobs
		SET status = $2,
		    completed = $3,
		    failed = $4,
		    current_listing_id = $5,
		    current_listing_title = $6,
		    error_message = $7,
		    completed_at = $8
		WHERE job_id = $1`

	result, err := r.db.ExecContext(ctx, query,
		j.JobID, j.Status, j.Completed, j.Failed,
		j.CurrentListingID, j.CurrentListingTitle, j.ErrorMessage, j.CompletedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
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
