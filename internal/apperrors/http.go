package apperrors

import (
	"errors"
	"net/http"
)

// HTTPStatus maps an error to the appropriate HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrRuntimeUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// StatusForKind maps a taxonomy kind to the HTTP status used for error envelopes.
func StatusForKind(kind Kind) int {
	if err, ok := sentinels[kind]; ok {
		return HTTPStatus(err)
	}
	return http.StatusInternalServerError
}
