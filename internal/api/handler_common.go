package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
)

// decodeBodyOrWriteInvalid decodes and validates a JSON body. When
// validation fails, onInvalid (if non-empty) replaces the generated message
// so handlers can keep their established client-facing wording.
func decodeBodyOrWriteInvalid(
	w http.ResponseWriter,
	r *http.Request,
	validate *validator.Validate,
	v any,
	onInvalid string,
) bool {
	if err := DecodeBody(r, v); err != nil {
		writeDecodeBodyError(w, err)
		return false
	}
	if err := validate.Struct(v); err != nil {
		if onInvalid != "" {
			writeInvalidArgument(w, onInvalid)
		} else {
			writeInvalidArgument(w, validationMessage(err))
		}
		return false
	}
	return true
}

func parseBoolQueryOrWriteInvalid(w http.ResponseWriter, r *http.Request, key string) (*bool, bool) {
	v, err := ParseBoolQuery(r, key)
	if err != nil {
		writeInvalidArgument(w, err.Error())
		return nil, false
	}
	return v, true
}

func parseBoundedIntQueryOrWriteInvalid(w http.ResponseWriter, r *http.Request, key string, def, max int) (int, bool) {
	n, err := ParseBoundedIntQuery(r, key, def, max)
	if err != nil {
		writeInvalidArgument(w, err.Error())
		return 0, false
	}
	return n, true
}
