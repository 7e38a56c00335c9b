// Package api exposes the HTTP/JSON surface: execution endpoints, plan
// management, confidence-threshold configuration, and health.
package api

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/voyager-qa/voyager/pkg/cache"
	"github.com/voyager-qa/voyager/pkg/planner"
	"github.com/voyager-qa/voyager/pkg/resilience"
	"github.com/voyager-qa/voyager/pkg/runner"
	"github.com/voyager-qa/voyager/pkg/storage"
	"github.com/voyager-qa/voyager/pkg/thresholds"
)

// Server wires the HTTP routes to the service layer
type Server struct {
	echo       *echo.Echo
	store      storage.Store
	manager    *runner.Manager
	planner    *planner.Planner
	thresholds *thresholds.Service
	breaker    *resilience.CircuitBreaker
	domCache   *cache.DOMCache
	logger     *slog.Logger
}

// Deps are the collaborators the HTTP surface exposes. Breaker and DOMCache
// are optional; when present their state shows up in /health.
type Deps struct {
	Store      storage.Store
	Manager    *runner.Manager
	Planner    *planner.Planner
	Thresholds *thresholds.Service
	Breaker    *resilience.CircuitBreaker
	DOMCache   *cache.DOMCache
}

// NewServer creates the server and registers all routes
func NewServer(deps Deps) *Server {
	s := &Server{
		echo:       echo.New(),
		store:      deps.Store,
		manager:    deps.Manager,
		planner:    deps.Planner,
		thresholds: deps.Thresholds,
		breaker:    deps.Breaker,
		domCache:   deps.DOMCache,
		logger:     slog.Default().With("component", "api"),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP makes the server usable as an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.Use(securityHeaders())
	e.Use(s.requestLogger())

	// executions
	e.POST("/execute", s.executeHandler)
	e.POST("/execute-async", s.executeAsyncHandler)
	e.GET("/get-status/:testId", s.statusHandler)
	e.GET("/get-history/:scenarioId", s.historyHandler)
	e.GET("/get-latest/:scenarioId", s.latestHandler)
	e.DELETE("/executions/:testId", s.deleteExecutionHandler)
	e.DELETE("/executions", s.deleteAllExecutionsHandler)

	// plans
	e.POST("/plan", s.planHandler)
	e.GET("/list-plans", s.listPlansHandler)
	e.GET("/get-plan/:planId", s.getPlanHandler)
	e.PUT("/plans/:planId", s.updatePlanHandler)
	e.DELETE("/plans/:planId", s.deletePlanHandler)
	e.DELETE("/plans", s.deleteAllPlansHandler)

	// confidence thresholds
	e.GET("/confidence-thresholds", s.listThresholdsHandler)
	e.GET("/confidence-thresholds/:actionType", s.getThresholdHandler)
	e.PUT("/confidence-thresholds/:actionType", s.setThresholdHandler)
	e.DELETE("/confidence-thresholds/:actionType", s.deleteThresholdHandler)
	e.DELETE("/confidence-thresholds", s.deleteAllThresholdsHandler)

	e.GET("/health", s.healthHandler)
}
