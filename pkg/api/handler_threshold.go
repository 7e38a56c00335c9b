package api

import (
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/voyager-qa/voyager/pkg/thresholds"
)

// listThresholdsHandler handles GET /confidence-thresholds
func (s *Server) listThresholdsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.thresholds.GetAllThresholds(c.Request().Context()))
}

// getThresholdHandler handles GET /confidence-thresholds/:actionType
func (s *Server) getThresholdHandler(c *echo.Context) error {
	action := c.Param("actionType")
	if !thresholds.IsValidAction(action) {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown action type %q", action))
	}

	value := s.thresholds.GetThreshold(c.Request().Context(), action)
	return c.JSON(http.StatusOK, &ThresholdResponse{ActionType: action, Value: value})
}

// setThresholdHandler handles PUT /confidence-thresholds/:actionType
func (s *Server) setThresholdHandler(c *echo.Context) error {
	action := c.Param("actionType")

	var req ThresholdRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := s.thresholds.SetThreshold(c.Request().Context(), action, req.Value); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &ThresholdResponse{ActionType: action, Value: req.Value})
}

// deleteThresholdHandler handles DELETE /confidence-thresholds/:actionType
func (s *Server) deleteThresholdHandler(c *echo.Context) error {
	action := c.Param("actionType")
	if err := s.thresholds.DeleteThreshold(c.Request().Context(), action); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &MessageResponse{Message: "threshold reset to default"})
}

// deleteAllThresholdsHandler handles DELETE /confidence-thresholds
func (s *Server) deleteAllThresholdsHandler(c *echo.Context) error {
	if err := s.thresholds.DeleteAllThresholds(c.Request().Context()); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &MessageResponse{Message: "all thresholds reset to defaults"})
}
