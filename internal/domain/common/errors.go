// Package common holds shared error values for the ingestion domain.
package common

import "errors"

var (
	ErrNotFound   = errors.New("requested item not found")
	ErrConflict   = errors.New("item already exists or conflict")
	ErrBadRequest = errors.New("bad request")

	// ErrStoreUnavailable marks a failed round-trip to the storage
	// collaborator. Rows affected by it must never be inserted silently.
	ErrStoreUnavailable = errors.New("storage collaborator unavailable")
)
