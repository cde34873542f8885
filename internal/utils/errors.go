package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures by how the control loop reacts to them.
type ErrorKind string

const (
	// KindFetch covers network, timeout and non-2xx scrape failures. The cycle is skipped.
	KindFetch ErrorKind = "fetch"
	// KindParse covers malformed exposition text. The cycle degrades to a best-effort sample.
	KindParse ErrorKind = "parse"
	// KindPersist covers control signal write failures. The signal stays unconfirmed.
	KindPersist ErrorKind = "persist"
	// KindConfig covers invalid startup configuration and is fatal.
	KindConfig ErrorKind = "config"
	// KindUnknown is returned for errors that carry no kind.
	KindUnknown ErrorKind = "unknown"
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op   string
	Msg  string
	Kind ErrorKind
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(kind ErrorKind, op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Kind: kind, Err: err}
}

// KindOf returns the kind of the first AppError in err's chain.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != "" {
		return appErr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
