package model

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every pipeline component.
var (
	// ErrConnector marks a source failure (unreachable, malformed payload).
	// It is isolated to one connector execution and never aborts a run.
	ErrConnector = errors.New("connector error")
	// ErrDuplicateDelivery marks a redelivered work item. Handlers absorb
	// it as a no-op; it is never surfaced to operators.
	ErrDuplicateDelivery = errors.New("duplicate delivery")
	// ErrInvalidState marks an operation targeting an entity whose state
	// does not allow it, e.g. deciding an already decided inbox item.
	ErrInvalidState = errors.New("invalid state")
	// ErrConfiguration marks invalid settings or unknown connector ids.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a missing entity.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a write that kept losing concurrent races after
	// bounded retries.
	ErrConflict = errors.New("conflict")
	// ErrTimeout marks a connector execution that exceeded its budget.
	ErrTimeout = errors.New("connector timeout")
)

// KindError attaches an operation name and a taxonomy kind to a cause.
// errors.Is matches both Kind and Err.
type KindError struct {
	Op   string
	Kind error
	Err  error
}

func (e *KindError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *KindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// WrapKind wraps err with an operation and kind.
func WrapKind(op string, kind, err error) error {
	return &KindError{Op: op, Kind: kind, Err: err}
}

// NewKind builds a kind error with a formatted message.
func NewKind(op string, kind error, format string, args ...any) error {
	return &KindError{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}
