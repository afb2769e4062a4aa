package segcache

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/segcache/index"
)

var (
	// ErrTimeout indicates a provider call exceeded its budget. Recoverable:
	// the manager keeps running and the index stays consistent.
	ErrTimeout = errors.New("segcache: provider call timed out")

	// ErrProviderFailure wraps an unexpected error from a provider,
	// including serialization failures on the affected operation.
	ErrProviderFailure = errors.New("segcache: provider failure")

	// ErrInvariant aliases the index invariant sentinel: a thread-ownership
	// breach or a lookup naming a column the header does not constrain.
	ErrInvariant = index.ErrInvariant

	// ErrClosed is returned for commands and events sent after Close.
	ErrClosed = errors.New("segcache: manager is closed")
)

// TimeoutError reports which provider operation timed out and its budget.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type TimeoutError struct {
	Op     string
	Budget time.Duration
	cause  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("segcache: provider %s timed out after %s", e.Op, e.Budget)
}

func (e *TimeoutError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return ErrTimeout
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ProviderError wraps an unexpected provider failure.
//
// The original underlying error can be accessed via errors.Unwrap.
type ProviderError struct {
	Op    string
	cause error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("segcache: provider %s failed: %v", e.Op, e.cause)
}

func (e *ProviderError) Unwrap() error { return e.cause }

// Is reports whether target is ErrProviderFailure.
func (e *ProviderError) Is(target error) bool { return target == ErrProviderFailure }
