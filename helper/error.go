package helper

import (
	"errors"
	"strings"
)

// Error is an error carrying the trace of operations it passed through.
type Error struct {
	Original error
	Trace    []string
}

// NewError wraps err with a trace entry. If err itself is an Error the
// trace is extended instead of nesting a second Error.
func NewError(trace string, err error) error {
	if err == nil {
		err = errors.New("unknown error")
	}

	if existing, ok := err.(*Error); ok {
		return &Error{
			Original: existing.Original,
			Trace:    append([]string{trace}, existing.Trace...),
		}
	}

	return &Error{
		Original: err,
		Trace:    []string{trace},
	}
}

// Error returns the trace followed by the original message,
// e.g. "persist keywords: select document: sql: no rows in result set".
func (e *Error) Error() string {
	return strings.Join(e.Trace, ": ") + ": " + e.Original.Error()
}

// Unwrap returns the original error so errors.Is and errors.As keep working.
func (e *Error) Unwrap() error {
	return e.Original
}
