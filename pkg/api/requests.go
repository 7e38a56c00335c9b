package api

import "github.com/voyager-qa/voyager/pkg/models"

// ExecuteRequest is the HTTP request body for POST /execute and
// POST /execute-async. Exactly one of Scenario or PlanID is required.
type ExecuteRequest struct {
	Scenario      string `json:"scenario,omitempty"`
	PlanID        string `json:"planId,omitempty"`
	ExecutionMode string `json:"executionMode,omitempty"`
	FailFast      *bool  `json:"failFast,omitempty"`
}

// PlanRequest is the HTTP request body for POST /plan
type PlanRequest struct {
	Scenario string `json:"scenario"`
}

// UpdatePlanRequest is the HTTP request body for PUT /plans/:planId.
// Only the provided fields change.
type UpdatePlanRequest struct {
	Name  *string       `json:"name,omitempty"`
	Steps []models.Step `json:"steps,omitempty"`
}

// ThresholdRequest is the HTTP request body for PUT /confidence-thresholds/:actionType
type ThresholdRequest struct {
	Value float64 `json:"value"`
}
