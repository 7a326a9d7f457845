package store

import (
	"errors"
	"fmt"
)

// FatalError marks a store failure that poisons the whole migration
// transaction (lost connectivity, failed savepoint bookkeeping). The
// importer aborts the session on fatal errors and degrades everything
// else to per-record warnings.
type FatalError struct {
	Err error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal store error: %v", e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as a FatalError. Returns nil for nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
