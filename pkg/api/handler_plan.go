package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/voyager-qa/voyager/pkg/storage"
)

// planHandler handles POST /plan. Synthesizes and persists a plan without
// executing it.
func (s *Server) planHandler(c *echo.Context) error {
	var req PlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Scenario == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "scenario is required")
	}

	plan, err := s.planner.CreatePlan(c.Request().Context(), req.Scenario)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, plan)
}

// listPlansHandler handles GET /list-plans
func (s *Server) listPlansHandler(c *echo.Context) error {
	plans, err := s.store.ListPlans(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, plans)
}

// getPlanHandler handles GET /get-plan/:planId
func (s *Server) getPlanHandler(c *echo.Context) error {
	planID := c.Param("planId")
	if planID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "plan id is required")
	}

	plan, err := s.store.GetPlan(c.Request().Context(), planID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, plan)
}

// updatePlanHandler handles PUT /plans/:planId. Only name and steps are
// editable over HTTP; phase and history belong to the refinement pipeline.
func (s *Server) updatePlanHandler(c *echo.Context) error {
	planID := c.Param("planId")
	if planID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "plan id is required")
	}

	var req UpdatePlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name == nil && req.Steps == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "name or steps is required")
	}
	for i, step := range req.Steps {
		if step.ID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "every step requires an id")
		}
		if step.Action.Name == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "step "+req.Steps[i].ID+" has no action")
		}
	}

	plan, err := s.store.UpdatePlan(c.Request().Context(), planID, storage.PlanUpdate{
		Name:  req.Name,
		Steps: req.Steps,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, plan)
}

// deletePlanHandler handles DELETE /plans/:planId
func (s *Server) deletePlanHandler(c *echo.Context) error {
	planID := c.Param("planId")
	if planID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "plan id is required")
	}

	if err := s.store.DeletePlan(c.Request().Context(), planID); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &MessageResponse{Message: "plan deleted"})
}

// deleteAllPlansHandler handles DELETE /plans
func (s *Server) deleteAllPlansHandler(c *echo.Context) error {
	if err := s.store.DeleteAllPlans(c.Request().Context()); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &MessageResponse{Message: "all plans deleted"})
}
