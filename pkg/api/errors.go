package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/voyager-qa/voyager/pkg/storage"
)

// mapServiceError maps service-layer errors to HTTP error responses
func mapServiceError(err error) *echo.HTTPError {
	var validErr *storage.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, storage.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, storage.ErrTerminalState) {
		return echo.NewHTTPError(http.StatusConflict, "execution is in a terminal state")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
