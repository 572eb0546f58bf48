package domain

import (
	"fmt"
	"time"
)

// ListingStatus represents the state of a marketplace listing.
type ListingStatus string

const (
	ListingStatusPending ListingStatus = "pending"
	ListingStatusPosting ListingStatus = "posting"
	ListingStatusPosted  ListingStatus = "posted"
	ListingStatusFailed  ListingStatus = "failed"
)

// IsTerminal reports whether the status is a terminal posting outcome.
func (s ListingStatus) IsTerminal() bool {
	return s == ListingStatusPosted || s == ListingStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusPending, ListingStatusPosting, ListingStatusPosted, ListingStatusFailed:
		return true
	}
	return false
}

// Listing is one marketplace item submission, the unit of posting work.
// Status transitions are monotonic (pending -> posting -> posted|failed);
// failed goes back to pending only through an explicit retry reset.
type Listing struct {
	ID           string        `db:"id"            json:"id"`
	AccountID    string        `db:"account_id"    json:"account_id"`
	Title        string        `db:"title"         json:"title"`
	Description  string        `db:"description"   json:"description"`
	Price        float64       `db:"price"         json:"price"`
	ImageRef     *string       `db:"image_ref"     json:"image_ref,omitempty"`
	ScheduledAt  time.Time     `db:"scheduled_at"  json:"scheduled_at"`
	Status       ListingStatus `db:"status"        json:"status"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int           `db:"retry_count"   json:"retry_count"`
	CreatedAt    time.Time     `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"    json:"updated_at"`
}

// NewListing creates a listing in pending status with validation.
// Price must be strictly positive; the external UI rejects free listings
// and a zero price is almost always an upstream parsing bug.
func NewListing(accountID, title, description string, price float64, imageRef *string, scheduledAt time.Time) (*Listing, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account_id is required", ErrInvalidListing)
	}
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidListing)
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive, got %v", ErrInvalidListing, price)
	}
	if imageRef != nil && *imageRef == "" {
		imageRef = nil
	}
	if scheduledAt.IsZero() {
		scheduledAt = time.Now()
	}

	now := time.Now()
	return &Listing{
		AccountID:   accountID,
		Title:       title,
		Description: description,
		Price:       price,
		ImageRef:    imageRef,
		ScheduledAt: scheduledAt,
		Status:      ListingStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
