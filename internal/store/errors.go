package store

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned by writes when no engine could be opened,
	// not even in memory. Reads in that state return empty results.
	ErrUnavailable = errors.New("store unavailable")

	// ErrInvalidArgument reports a caller error such as a negative page.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidRecord reports a record that violates the data model.
	ErrInvalidRecord = errors.New("invalid record")
)

// OpError is an operation failure on an open store: constraint
// violations, I/O errors, a full disk. Callers log it and carry on.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// opError wraps err as an OpError unless it is nil or already one.
func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	return &OpError{Op: op, Err: err}
}
