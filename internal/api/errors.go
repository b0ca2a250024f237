package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/lorakit/internal/inventory"
	"github.com/samcharles93/lorakit/internal/lora"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// classify maps domain errors onto an HTTP status and error type.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, lora.ErrInvalidRequest),
		errors.Is(err, inventory.ErrInvalidName):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, inventory.ErrNotFound):
		return http.StatusNotFound, "not_found_error"
	default:
		return http.StatusUnprocessableEntity, "checkpoint_error"
	}
}
