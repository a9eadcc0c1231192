package model

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Concrete failures wrap one of these so callers can use errors.Is.
var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrEmbedding         = errors.New("embedding failed")
	ErrPersistence       = errors.New("persistence failed")
	ErrTimeout           = errors.New("timeout")
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate id")

	// ErrNotIndexed marks a message that was stored but could not be indexed.
	ErrNotIndexed = errors.New("stored but not indexed")
)

// WrapCall tags err from an external collaborator call with kind, and with
// ErrTimeout as well when the call ran out of time.
func WrapCall(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %s: %w", kind, ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}
