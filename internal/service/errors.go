package service

import (
	"errors"

	"github.com/juniorsir/stream-dl/internal/entitlement"
	"github.com/juniorsir/stream-dl/internal/extract"
	"github.com/juniorsir/stream-dl/internal/gate"
)

// Error codes carried in the API envelope.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL"
	CodeUpstreamFailure = "UPSTREAM_FAILURE"
	CodeUpstreamTimeout = "UPSTREAM_TIMEOUT"
)

// ServiceError wraps an error with a code for API response mapping.
type ServiceError struct {
	Code    string
	Message string
	// Reason refines UPSTREAM_FAILURE (private, login_required, ...).
	Reason string
	// RetryAfterSeconds is set for RATE_LIMITED.
	RetryAfterSeconds string
	Err               error
}

func (e *ServiceError) Error() string { return e.Message }
func (e *ServiceError) Unwrap() error { return e.Err }

func invalidArg(msg string) *ServiceError {
	return &ServiceError{Code: CodeInvalidArgument, Message: msg}
}

func notFound(msg string) *ServiceError {
	return &ServiceError{Code: CodeNotFound, Message: msg}
}

func conflict(msg string) *ServiceError {
	return &ServiceError{Code: CodeConflict, Message: msg}
}

func internal(msg string, err error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: msg, Err: err}
}

// FromGate converts an admission rejection. Other errors become INTERNAL.
func FromGate(err error) *ServiceError {
	var gerr *gate.Error
	if !errors.As(err, &gerr) {
		return internal("An internal server error occurred.", err)
	}
	se := &ServiceError{Message: gerr.Message, Err: err}
	switch gerr.Kind {
	case gate.KindBadRequest:
		se.Code = CodeInvalidArgument
	case gate.KindUnauthorized:
		se.Code = CodeUnauthorized
	case gate.KindForbidden:
		se.Code = CodeForbidden
	case gate.KindRateLimited:
		se.Code = CodeRateLimited
		se.RetryAfterSeconds = gate.RetryAfterSeconds(gerr.RetryAfter)
	default:
		se.Code = CodeInternal
	}
	return se
}

// fromUpstream converts extractor and entitlement errors. A non-empty
// override replaces the classified message for upstream failures.
func fromUpstream(err error, override string) *ServiceError {
	var failure *extract.Failure
	if errors.As(err, &failure) {
		if failure.Timeout {
			return &ServiceError{Code: CodeUpstreamTimeout, Message: failure.Message, Reason: string(failure.Reason), Err: err}
		}
		msg := failure.Message
		if override != "" {
			msg = override
		}
		return &ServiceError{Code: CodeUpstreamFailure, Message: msg, Reason: string(failure.Reason), Err: err}
	}
	var denied *entitlement.DeniedError
	if errors.As(err, &denied) {
		return &ServiceError{Code: CodeForbidden, Message: denied.Message, Err: err}
	}
	var parseErr *extract.ParseError
	if errors.As(err, &parseErr) {
		return internal("Failed to parse video data from helper.", err)
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	if override != "" {
		return internal(override, err)
	}
	return internal("An internal server error occurred.", err)
}
