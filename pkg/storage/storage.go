// Package storage persists plans, executions, and configuration entries
// behind a single interface with in-memory and Redis implementations.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/voyager-qa/voyager/pkg/models"
)

// ExecutionUpdate is the allow-list of execution fields that may change
// after creation. TestID, ScenarioID, Scenario, and CreatedAt are immutable.
type ExecutionUpdate struct {
	Status      *models.ExecutionStatus
	PlanID      *string
	CurrentStep *int
	TotalSteps  *int
	Results     []models.ExecutionResult
	ReportData  *models.Report
	Error       *string
	CompletedAt *time.Time
}

// PlanUpdate is the allow-list of plan fields that may change after
// creation. ID, ScenarioID, and CreatedAt are immutable; RefinementHistory
// may only grow.
type PlanUpdate struct {
	Name              *string
	Phase             *models.PlanPhase
	Steps             []models.Step
	RefinementHistory []models.RefinementRecord
}

// Store persists executions, plans, and configuration. Implementations must
// keep the scenario indices in sync with primary records on every mutation.
type Store interface {
	// Executions
	CreateExecution(ctx context.Context, scenario string) (*models.Execution, error)
	GetExecution(ctx context.Context, testID string) (*models.Execution, error)
	GetExecutionsByScenario(ctx context.Context, scenarioID string) ([]*models.Execution, error)
	GetLatestExecutionByScenario(ctx context.Context, scenarioID string) (*models.Execution, error)
	UpdateExecution(ctx context.Context, testID string, update ExecutionUpdate) (*models.Execution, error)
	DeleteExecution(ctx context.Context, testID string) error
	ListExecutions(ctx context.Context) ([]*models.Execution, error)
	DeleteAllExecutions(ctx context.Context) error

	// Plans
	SavePlan(ctx context.Context, plan *models.Plan) error
	GetPlan(ctx context.Context, planID string) (*models.Plan, error)
	ListPlans(ctx context.Context) ([]*models.Plan, error)
	GetPlansByScenario(ctx context.Context, scenarioID string) ([]*models.Plan, error)
	UpdatePlan(ctx context.Context, planID string, update PlanUpdate) (*models.Plan, error)
	DeletePlan(ctx context.Context, planID string) error
	DeleteAllPlans(ctx context.Context) error

	// Configuration
	GetConfig(ctx context.Context, key string) (*models.ConfigEntry, error)
	SetConfig(ctx context.Context, key string, value any, description string) (*models.ConfigEntry, error)
	GetAllConfig(ctx context.Context, prefix string) ([]*models.ConfigEntry, error)
	DeleteConfig(ctx context.Context, key string) error
	DeleteAllConfig(ctx context.Context, prefix string) error

	Close() error
}

// Config holds storage backend selection
type Config struct {
	// Type selects the backend: "memory" or "redis"
	Type string
	// RedisURL is the connection URL for the redis backend
	RedisURL string
}

// New creates a Store for the configured backend
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown storage type %q (expected memory or redis)", cfg.Type)
	}
}

// validatePlan checks the fields every saved plan must carry
func validatePlan(plan *models.Plan) error {
	if plan == nil {
		return NewValidationError("plan", "plan is required")
	}
	if plan.ID == "" {
		return NewValidationError("id", "plan id is required")
	}
	if plan.ScenarioID == "" {
		return NewValidationError("scenarioId", "scenario id is required")
	}
	if plan.Phase != "" && !plan.Phase.IsValid() {
		return NewValidationError("phase", fmt.Sprintf("invalid plan phase %q", plan.Phase))
	}
	return nil
}

// applyExecutionUpdate merges an allow-listed patch into an execution copy.
// The caller guarantees exclusive access to the copy.
func applyExecutionUpdate(exec *models.Execution, update ExecutionUpdate) error {
	if exec.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminalState, exec.TestID, exec.Status)
	}
	if update.Status != nil {
		exec.Status = *update.Status
	}
	if update.PlanID != nil {
		exec.PlanID = *update.PlanID
	}
	if update.CurrentStep != nil {
		exec.CurrentStep = *update.CurrentStep
	}
	if update.TotalSteps != nil {
		exec.TotalSteps = *update.TotalSteps
	}
	if update.Results != nil {
		exec.Results = update.Results
	}
	if update.ReportData != nil {
		exec.ReportData = update.ReportData
	}
	if update.Error != nil {
		exec.Error = *update.Error
	}
	if update.CompletedAt != nil {
		exec.CompletedAt = update.CompletedAt
	}
	exec.UpdatedAt = time.Now().UTC()
	return nil
}

// applyPlanUpdate merges an allow-listed patch into a plan copy
func applyPlanUpdate(plan *models.Plan, update PlanUpdate) error {
	if update.Name != nil {
		plan.Name = *update.Name
	}
	if update.Phase != nil {
		if !update.Phase.IsValid() {
			return NewValidationError("phase", fmt.Sprintf("invalid plan phase %q", *update.Phase))
		}
		plan.Phase = *update.Phase
	}
	if update.Steps != nil {
		plan.Steps = update.Steps
	}
	if update.RefinementHistory != nil {
		if len(update.RefinementHistory) < len(plan.RefinementHistory) {
			return NewValidationError("refinementHistory", "refinement history is append-only")
		}
		plan.RefinementHistory = update.RefinementHistory
	}
	return nil
}
