package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/juniorsir/stream-dl/internal/service"
)

const msgInternal = "An internal server error occurred."

func invalidArgumentError(message string) *service.ServiceError {
	return &service.ServiceError{
		Code:    service.CodeInvalidArgument,
		Message: message,
	}
}

func writeInvalidArgument(w http.ResponseWriter, message string) {
	writeServiceError(w, invalidArgumentError(message))
}

func writePayloadTooLarge(w http.ResponseWriter, limit int64) {
	msg := "request body too large"
	if limit > 0 {
		msg = "request body too large (max " + strconv.FormatInt(limit, 10) + " bytes)"
	}
	WriteError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", msg)
}

func writeDecodeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *requestBodyTooLargeError
	if errors.As(err, &tooLarge) {
		writePayloadTooLarge(w, tooLarge.Limit)
		return
	}
	writeInvalidArgument(w, err.Error())
}

func statusForCode(code string) int {
	switch code {
	case service.CodeInvalidArgument:
		return http.StatusBadRequest
	case service.CodeUnauthorized:
		return http.StatusUnauthorized
	case service.CodeForbidden:
		return http.StatusForbidden
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeConflict:
		return http.StatusConflict
	case service.CodeRateLimited:
		return http.StatusTooManyRequests
	case service.CodeUpstreamFailure:
		return http.StatusBadGateway
	case service.CodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps service errors to HTTP response codes. Anything
// that is not a *service.ServiceError is reported with the generic message.
func writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *service.ServiceError
	if err == nil || !errors.As(err, &svcErr) {
		WriteError(w, http.StatusInternalServerError, service.CodeInternal, msgInternal)
		return
	}

	status := statusForCode(svcErr.Code)
	if svcErr.Code == service.CodeRateLimited && svcErr.RetryAfterSeconds != "" {
		w.Header().Set("Retry-After", svcErr.RetryAfterSeconds)
	}
	msg := svcErr.Message
	if msg == "" && status == http.StatusInternalServerError {
		msg = msgInternal
	}
	WriteJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    svcErr.Code,
			Message: msg,
			Reason:  svcErr.Reason,
		},
	})
}

// writeGateError reports an admission rejection from internal/gate.
func writeGateError(w http.ResponseWriter, err error) {
	writeServiceError(w, service.FromGate(err))
}
