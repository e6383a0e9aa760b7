package domain

import (
	"errors"
	"fmt"
)

// SaveErrorKind classifies persistence failures so callers can choose a
// recovery path without inspecting messages.
type SaveErrorKind int

const (
	// KindTransport is a failure to reach or talk to the store
	KindTransport SaveErrorKind = iota
	// KindRejected means the store refused the values
	KindRejected
	// KindNotFound means the target record no longer exists
	KindNotFound
	// KindReadOnly means the parent bill is locked
	KindReadOnly
)

func (k SaveErrorKind) String() string {
	switch k {
	case KindRejected:
		return "rejected"
	case KindNotFound:
		return "not found"
	case KindReadOnly:
		return "read only"
	default:
		return "transport"
	}
}

// SaveError is returned by persistence gateways for failed writes
type SaveError struct {
	Op   string
	Kind SaveErrorKind
	ID   string
	Err  error
}

func (e *SaveError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// NewSaveError wraps err with an operation and kind
func NewSaveError(op string, kind SaveErrorKind, id string, err error) *SaveError {
	return &SaveError{Op: op, Kind: kind, ID: id, Err: err}
}

// SaveErrorKindOf returns the kind of err, defaulting to KindTransport for
// errors that did not come from a gateway.
func SaveErrorKindOf(err error) SaveErrorKind {
	var se *SaveError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransport
}

// Message returns the innermost message for display
func Message(err error) string {
	var se *SaveError
	if errors.As(err, &se) && se.Err != nil {
		return se.Err.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
