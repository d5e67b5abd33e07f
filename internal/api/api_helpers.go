package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

type requestBodyTooLargeError struct {
	Limit int64
}

func (e *requestBodyTooLargeError) Error() string {
	return fmt.Sprintf("request body too large (max %d bytes)", e.Limit)
}

// --- Body Decoding ---

// DecodeBody decodes the JSON request body into v, rejecting unknown fields.
func DecodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &requestBodyTooLargeError{Limit: maxErr.Limit}
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is required")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &requestBodyTooLargeError{Limit: maxErr.Limit}
		}
		return fmt.Errorf("invalid request body: must contain a single JSON value")
	}
	return nil
}

// --- Validation ---

// newValidator returns the validator shared by all request DTOs. Field
// names in errors come from the json tag.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage renders the first failed rule of err.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + ": is required"
	case "max":
		return fmt.Sprintf("%s: must be at most %s characters", fe.Field(), fe.Param())
	case "url", "http_url":
		return fe.Field() + ": must be a valid URL"
	default:
		return fmt.Sprintf("%s: failed %q validation", fe.Field(), fe.Tag())
	}
}

// --- Query Parameters ---

// ParseBoolQuery parses an optional boolean query parameter.
// Returns nil when the parameter is not present.
func ParseBoolQuery(r *http.Request, key string) (*bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("%s: must be true or false", key)
	}
	return &b, nil
}

// ParseBoundedIntQuery parses an optional positive integer query parameter,
// clamping it to max. Returns def when the parameter is absent.
func ParseBoundedIntQuery(r *http.Request, key string, def, max int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: must be a positive integer", key)
	}
	if n > max {
		n = max
	}
	return n, nil
}
