// Package domain contains the core domain models for the autoposter service.
package domain

import "errors"

// ErrNotFound is returned when an entity is not found in the database.
var ErrNotFound = errors.New("entity not found")

// ErrInvalidListing is returned when creating a listing with invalid fields.
var ErrInvalidListing = errors.New("invalid listing")
