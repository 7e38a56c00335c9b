package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/voyager-qa/voyager/pkg/runner"
)

// executeHandler handles POST /execute. Runs the scenario to completion and
// returns the full report; executionMode "async" delegates to the async path.
func (s *Server) executeHandler(c *echo.Context) error {
	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Scenario == "" && req.PlanID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "scenario or planId is required")
	}
	if req.ExecutionMode == "async" {
		return s.startAsync(c, req)
	}

	report, err := s.manager.ExecuteSync(c.Request().Context(), runner.RunRequest{
		Scenario: req.Scenario,
		PlanID:   req.PlanID,
		FailFast: req.FailFast,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, report)
}

// executeAsyncHandler handles POST /execute-async
func (s *Server) executeAsyncHandler(c *echo.Context) error {
	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Scenario == "" && req.PlanID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "scenario or planId is required")
	}
	return s.startAsync(c, req)
}

func (s *Server) startAsync(c *echo.Context, req ExecuteRequest) error {
	exec, err := s.manager.StartAsync(c.Request().Context(), runner.RunRequest{
		Scenario: req.Scenario,
		PlanID:   req.PlanID,
		FailFast: req.FailFast,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, &AsyncExecuteResponse{
		TestID:     exec.TestID,
		ScenarioID: exec.ScenarioID,
		Status:     string(exec.Status),
	})
}

// statusHandler handles GET /get-status/:testId
func (s *Server) statusHandler(c *echo.Context) error {
	testID := c.Param("testId")
	if testID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "test id is required")
	}

	exec, err := s.store.GetExecution(c.Request().Context(), testID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &StatusResponse{Execution: exec, Progress: exec.Progress()})
}

// historyHandler handles GET /get-history/:scenarioId
func (s *Server) historyHandler(c *echo.Context) error {
	scenarioID := c.Param("scenarioId")
	if scenarioID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "scenario id is required")
	}

	execs, err := s.store.GetExecutionsByScenario(c.Request().Context(), scenarioID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, execs)
}

// latestHandler handles GET /get-latest/:scenarioId
func (s *Server) latestHandler(c *echo.Context) error {
	scenarioID := c.Param("scenarioId")
	if scenarioID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "scenario id is required")
	}

	exec, err := s.store.GetLatestExecutionByScenario(c.Request().Context(), scenarioID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, exec)
}

// deleteExecutionHandler handles DELETE /executions/:testId. An active run
// is cancelled before its record is removed.
func (s *Server) deleteExecutionHandler(c *echo.Context) error {
	testID := c.Param("testId")
	if testID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "test id is required")
	}

	if s.manager.Cancel(testID) {
		s.logger.Info("Cancelled active execution before deletion", "test_id", testID)
	}
	if err := s.store.DeleteExecution(c.Request().Context(), testID); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &MessageResponse{Message: "execution deleted"})
}

// deleteAllExecutionsHandler handles DELETE /executions
func (s *Server) deleteAllExecutionsHandler(c *echo.Context) error {
	if err := s.store.DeleteAllExecutions(c.Request().Context()); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &MessageResponse{Message: "all executions deleted"})
}
