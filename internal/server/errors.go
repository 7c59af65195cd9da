package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/ink-prompts/internal/types"
)

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		notFound   *types.ErrNotFound
		forbidden  *types.ErrForbidden
		conflict   *types.ErrConflict
		validation *types.ErrValidation
		activeJob  *types.ErrActiveJob
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &activeJob):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
