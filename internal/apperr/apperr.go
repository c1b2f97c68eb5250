// Package apperr defines the error kinds shared by the settings,
// conversation, and generation layers. Callers wrap these sentinels with
// fmt.Errorf("%w") and test for them with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation marks malformed input: bad value for a value type, empty
	// required field, unknown key or scope.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a referenced conversation, message, or setting that
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a duplicate insert of a unique tuple.
	ErrConflict = errors.New("conflict")

	// ErrDatabase marks an underlying persistence failure.
	ErrDatabase = errors.New("database error")

	// ErrIntegrity marks an orchestration fault, such as persistence that
	// returned no identifier. Never retried.
	ErrIntegrity = errors.New("integrity error")

	// ErrBackend marks a failed or timed out call to the model backend.
	ErrBackend = errors.New("backend error")
)

// HTTPStatus maps an error to the status code the API reports for it.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrDatabase):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
