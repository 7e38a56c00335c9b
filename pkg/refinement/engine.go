// Package refinement decides when an in-flight plan should be re-planned.
// Strategies inspect the upcoming step and the live page and return scored
// decisions; the engine picks the winner by confidence, then priority.
package refinement

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/voyager-qa/voyager/pkg/browser"
	"github.com/voyager-qa/voyager/pkg/models"
)

// Context is everything a strategy may inspect when deciding. StepResult
// is nil before a step runs and set when deciding about a failure.
type Context struct {
	Session             browser.Session
	ExecutedResults     []models.ExecutionResult
	CurrentStepIndex    int
	TotalSteps          int
	PreviousRefinements []models.RefinementRecord
	PageURL             string
	PreviousPageURL     string
	PageChanged         bool
	StepResult          *models.ExecutionResult
}

// Decision is one strategy's verdict. RemoveStep asks the orchestrator to
// drop the step instead of re-planning it.
type Decision struct {
	ShouldRefine bool    `json:"shouldRefine"`
	Reason       string  `json:"reason"`
	Priority     int     `json:"priority"`
	Confidence   float64 `json:"confidence"`
	Strategy     string  `json:"strategy,omitempty"`
	RemoveStep   bool    `json:"removeStep,omitempty"`
}

// NoRefinement is the verdict when no strategy fires
func NoRefinement() Decision {
	return Decision{ShouldRefine: false, Reason: "no refinement"}
}

// Strategy evaluates one refinement trigger
type Strategy interface {
	Name() string
	ShouldRefine(ctx context.Context, step models.Step, plan *models.Plan, rc Context) Decision
}

// Engine holds the ordered strategy list and arbitrates their decisions
type Engine struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewEngine creates an engine over the given strategies
func NewEngine(strategies ...Strategy) *Engine {
	return &Engine{
		strategies: strategies,
		logger:     slog.Default().With("component", "refinement-engine"),
	}
}

// Decide asks every strategy and returns the winning decision: highest
// confidence first, ties broken by priority
func (e *Engine) Decide(ctx context.Context, step models.Step, plan *models.Plan, rc Context) Decision {
	var fired []Decision
	for _, strategy := range e.strategies {
		decision := strategy.ShouldRefine(ctx, step, plan, rc)
		if decision.ShouldRefine {
			decision.Strategy = strategy.Name()
			fired = append(fired, decision)
		}
	}
	if len(fired) == 0 {
		return NoRefinement()
	}

	sort.SliceStable(fired, func(i, j int) bool {
		if fired[i].Confidence != fired[j].Confidence {
			return fired[i].Confidence > fired[j].Confidence
		}
		return fired[i].Priority > fired[j].Priority
	})

	winner := fired[0]
	e.logger.Debug("Refinement decision",
		"step_id", step.ID, "strategy", winner.Strategy,
		"reason", winner.Reason, "confidence", winner.Confidence, "candidates", len(fired))
	return winner
}

// refinedWithin reports whether the step was touched by any refinement in
// the trailing window. Used to dampen strategies that would otherwise fire
// on every loop iteration.
func refinedWithin(records []models.RefinementRecord, stepID string, window time.Duration) bool {
	cutoff := time.Now().Add(-window)
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].StepID == stepID && records[i].Timestamp.After(cutoff) {
			return true
		}
	}
	return false
}

// refinedBy reports whether any refinement record carries the strategy name
func refinedBy(records []models.RefinementRecord, strategy string) bool {
	for _, r := range records {
		if r.Strategy == strategy {
			return true
		}
	}
	return false
}
