package index

import (
	"errors"
	"fmt"
)

// ErrInvariant is the sentinel for invariant violations: an operation off
// the owning goroutine, or a locate call naming a column the header does
// not constrain. These are programmer errors, fatal to the operation and
// never silently ignored.
var ErrInvariant = errors.New("segment cache index: invariant violation")

// InvariantError carries the detail of an invariant violation.
// It unwraps to ErrInvariant.
type InvariantError struct {
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("segment cache index: invariant violation: %s", e.Detail)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

func invariantf(format string, args ...any) error {
	return &InvariantError{Detail: fmt.Sprintf(format, args...)}
}
