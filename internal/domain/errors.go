package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema marks input that is missing a required column or carries an
	// unparseable value. Raised before any computation.
	ErrSchema = errors.New("schema error")

	// ErrLookup marks a record whose cell or day-of-year is not covered by the
	// threshold map.
	ErrLookup = errors.New("threshold lookup error")

	// ErrIntegrity marks a violated severity backfill invariant, e.g. duplicate
	// day values within a cell-year. The run must abort.
	ErrIntegrity = errors.New("integrity violation")
)

// EngineError wraps an operation, a human-facing message, and the
// underlying error class.
type EngineError struct {
	Op  string
	Msg string
	Err error
}

func (e *EngineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func newEngineError(op, msg string, err error) error {
	return &EngineError{Op: op, Msg: msg, Err: err}
}
