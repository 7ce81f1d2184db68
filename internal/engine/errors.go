package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures for the application layer.
type ErrorKind string

const (
	// KindConfig covers invalid or missing configuration, surfaced
	// synchronously at construction or start.
	KindConfig ErrorKind = "config"

	// KindTransport covers connection failures and remote service errors.
	// The in-flight session is aborted before the error is surfaced.
	KindTransport ErrorKind = "transport"

	// KindResource covers capture device loss or permission denial. The
	// engine returns to idle and waits for an explicit retry.
	KindResource ErrorKind = "resource"

	// KindParse covers malformed collaborator payloads. The offending
	// message is dropped and the session continues.
	KindParse ErrorKind = "parse"
)

// Error is a classified engine failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the classification of err, or empty for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
