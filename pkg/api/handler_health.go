package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/voyager-qa/voyager/pkg/storage"
	"github.com/voyager-qa/voyager/pkg/version"
)

const healthProbeTimeout = 5 * time.Second

// healthHandler handles GET /health. A storage probe failure degrades the
// status to unhealthy with 503; breaker and cache state are informational.
func (s *Server) healthHandler(c *echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthProbeTimeout)
	defer cancel()

	resp := &HealthResponse{
		Status:     "healthy",
		Version:    version.Full(),
		Storage:    "ok",
		ActiveRuns: s.manager.ActiveCount(),
	}
	if s.breaker != nil {
		resp.Breakers = s.breaker.States()
	}
	if s.domCache != nil {
		stats := s.domCache.Stats()
		resp.Cache = &stats
	}

	// any answer, including not-found, proves the backend is reachable
	if _, err := s.store.GetConfig(ctx, "health.probe"); err != nil && !errors.Is(err, storage.ErrNotFound) {
		resp.Status = "unhealthy"
		resp.Storage = err.Error()
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}
