package domain

import (
	"errors"
	"fmt"
)

// ErrInput marks malformed or unreadable input. Input errors are fatal:
// the run aborts before any output is written.
var ErrInput = errors.New("invalid input")

// InputError describes a single malformed event record.
type InputError struct {
	Index  int    // record position, -1 if not record-specific
	Wallet string // wallet of the record, if known
	Field  string // offending field, if any
	Err    error
}

func (e *InputError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("invalid input: %v", e.Err)
	case e.Field == "":
		return fmt.Sprintf("invalid input: record %d (wallet %q): %v", e.Index, e.Wallet, e.Err)
	default:
		return fmt.Sprintf("invalid input: record %d (wallet %q) field %s: %v", e.Index, e.Wallet, e.Field, e.Err)
	}
}

// Unwrap returns the underlying cause.
func (e *InputError) Unwrap() error {
	return e.Err
}

// Is reports ErrInput so callers can match any input failure with errors.Is.
func (e *InputError) Is(target error) bool {
	return target == ErrInput
}
