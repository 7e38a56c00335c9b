package api

import (
	"github.com/voyager-qa/voyager/pkg/cache"
	"github.com/voyager-qa/voyager/pkg/models"
)

// AsyncExecuteResponse is returned by POST /execute-async
type AsyncExecuteResponse struct {
	TestID     string `json:"testId"`
	ScenarioID string `json:"scenarioId"`
	Status     string `json:"status"`
}

// StatusResponse is returned by GET /get-status/:testId. Progress is
// computed from the current and total step counts.
type StatusResponse struct {
	*models.Execution
	Progress int `json:"progress"`
}

// MessageResponse acknowledges mutations that return no entity
type MessageResponse struct {
	Message string `json:"message"`
}

// ThresholdResponse is returned by the single-threshold endpoints
type ThresholdResponse struct {
	ActionType string  `json:"actionType"`
	Value      float64 `json:"value"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Storage    string            `json:"storage"`
	ActiveRuns int               `json:"active_runs"`
	Breakers   map[string]string `json:"breakers,omitempty"`
	Cache      *cache.Stats      `json:"cache,omitempty"`
}
