package storage

import "errors"

// Store errors. Events and score runs are append-only: a stored run is never
// rewritten, so a repeated run id is reported rather than overwritten.
var (
	// ErrNotFound means the run or wallet has no stored record.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey means the run id, (run id, wallet) pair or event id is already stored.
	ErrDuplicateKey = errors.New("duplicate key: stored runs are immutable")

	// ErrInvalidInput means a record is missing its run id or wallet.
	ErrInvalidInput = errors.New("invalid input")
)
