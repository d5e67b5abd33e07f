// Package gate holds the request admission checks that run before any
// extractor work: session tickets, per-client rate limits, the domain block
// list, the private-network guard, origin checks and shared-secret checks.
package gate

import (
	"fmt"
	"time"
)

// Kind classifies a gate rejection.
type Kind int

const (
	KindBadRequest Kind = iota + 1
	KindUnauthorized
	KindForbidden
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a rejection with a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	// RetryAfter is set for KindRateLimited.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func badRequest(msg string, err error) *Error {
	return &Error{Kind: KindBadRequest, Message: msg, Err: err}
}

func unauthorized(msg string, err error) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg, Err: err}
}

func forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}
