package database_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/listkit/autoposter/internal/database"
	"github.com/listkit/autoposter/internal/domain"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

var listingColumns = []string{
	"id", "account_id", "title", "description", "price", "image_ref",
	"scheduled_at", "status", "error_message", "retry_count", "created_at", "updated_at",
}

func TestListingRepository_MarkPosting(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewListingRepository(db)
	ctx := context.Background()
	listingID := "11111111-2222-3333-4444-555555555555"

	testCases := []struct {
		name      string
		setupMock func()
		wantErr   bool
	}{
		{
			name: "pending listing transitions to posting",
			setupMock: func() {
				mock.ExpectExec("UPDATE listings").
					WithArgs(listingID).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantErr: false,
		},
		{
			name: "non-pending listing is not touched",
			setupMock: func() {
				mock.ExpectExec("UPDATE listings").
					WithArgs(listingID).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: true,
		},
		{
			name: "database error propagates",
			setupMock: func() {
				mock.ExpectExec("UPDATE listings").
					WithArgs(listingID).
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			callErr := repo.MarkPosting(ctx, listingID)
			if (callErr != nil) != tc.wantErr {
				t.Errorf("MarkPosting() error = %v, wantErr %v", callErr, tc.wantErr)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestListingRepository_MarkFailed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewListingRepository(db)
	ctx := context.Background()
	listingID := "11111111-2222-3333-4444-555555555555"

	mock.ExpectExec("UPDATE listings").
		WithArgs(listingID, "could not find price input field").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkFailed(ctx, listingID, "could not find price input field"); err != nil {
		t.Errorf("MarkFailed() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestListingRepository_MarkFailed_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewListingRepository(db)

	mock.ExpectExec("UPDATE listings").
		WithArgs("missing", "boom").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkFailed(context.Background(), "missing", "boom")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("MarkFailed() error = %v, want ErrNotFound", err)
	}
}

func TestListingRepository_ResetForRetry(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewListingRepository(db)

	mock.ExpectExec("UPDATE listings").
		WithArgs("listing-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.ResetForRetry(context.Background(), "listing-1"); err != nil {
		t.Errorf("ResetForRetry() error = %v", err)
	}
}

func TestListingRepository_FetchDue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewListingRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows(listingColumns).
		AddRow("listing-1", "seller@example.com", "Oak chair", "solid oak", 49.99, nil,
			now.Add(-time.Hour), "pending", nil, 0, now, now).
		AddRow("listing-2", "seller@example.com", "Pine desk", "", 120.00, "posts/desk.jpg",
			now.Add(-time.Minute), "pending", nil, 1, now, now)

	mock.ExpectQuery("SELECT (.+) FROM listings").
		WillReturnRows(rows)

	listings, err := repo.FetchDue(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("FetchDue() error = %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("FetchDue() returned %d listings, want 2", len(listings))
	}
	if listings[0].Title != "Oak chair" {
		t.Errorf("first listing title = %q, want %q", listings[0].Title, "Oak chair")
	}
	if listings[1].RetryCount != 1 {
		t.Errorf("second listing retry count = %d, want 1", listings[1].RetryCount)
	}
}

func TestListingRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewListingRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM listings").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}
