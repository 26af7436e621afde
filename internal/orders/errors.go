package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrInvalidState = errors.New("invalid order state")

	errDuplicate = errors.New("duplicate key")
)

// ValidationError rejects malformed input before the store is touched.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError lists the requested pixels that were not free.
type ConflictError struct {
	PixelIDs []int
}

func (e *ConflictError) Error() string {
	parts := make([]string, len(e.PixelIDs))
	for i, id := range e.PixelIDs {
		parts[i] = strconv.Itoa(id)
	}
	return "pixels not available: " + strings.Join(parts, ",")
}

// StoreError wraps a failure of the underlying store. It is transient from
// the caller's point of view: no partial state was committed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	// domain errors raised inside a transaction pass through untouched
	var ve *ValidationError
	var ce *ConflictError
	if errors.As(err, &ve) || errors.As(err, &ce) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsTransient reports whether err is a store failure or timeout that a
// caller may retry.
func IsTransient(err error) bool {
	var se *StoreError
	return errors.As(err, &se) || errors.Is(err, context.DeadlineExceeded)
}
