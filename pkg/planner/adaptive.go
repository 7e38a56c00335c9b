package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/voyager-qa/voyager/pkg/browser"
	"github.com/voyager-qa/voyager/pkg/cache"
	"github.com/voyager-qa/voyager/pkg/dom"
	"github.com/voyager-qa/voyager/pkg/llm"
	"github.com/voyager-qa/voyager/pkg/models"
	"github.com/voyager-qa/voyager/pkg/prompt"
	"github.com/voyager-qa/voyager/pkg/storage"
)

// AdaptivePlanner refines whole plans, single next steps, and rewrites
// failed steps after recovery. Every operation appends to the plan's
// refinement history and persists the result; the caller's plan value is
// never mutated.
type AdaptivePlanner struct {
	provider  llm.Provider
	models    llm.ModelSet
	extractor *dom.Extractor
	domCache  *cache.DOMCache
	store     storage.Store
	logger    *slog.Logger
}

// NewAdaptivePlanner creates the adaptive planner
func NewAdaptivePlanner(client *llm.Client, extractor *dom.Extractor, domCache *cache.DOMCache, store storage.Store) *AdaptivePlanner {
	return &AdaptivePlanner{
		provider:  client.Provider,
		models:    client.Models,
		extractor: extractor,
		domCache:  domCache,
		store:     store,
		logger:    slog.Default().With("component", "adaptive-planner"),
	}
}

// refinePlanResponse is the JSON shape of whole-plan refinement
type refinePlanResponse struct {
	Steps          []models.Step `json:"steps"`
	RemovedStepIDs []string      `json:"removedStepIds"`
	Reason         string        `json:"reason"`
}

// refineStepResponse is the JSON shape of single-step refinement
type refineStepResponse struct {
	Step   *models.Step `json:"step"`
	Remove bool         `json:"remove"`
	Reason string       `json:"reason"`
}

// adaptResponse is the JSON shape of failure adaptation
type adaptResponse struct {
	Step   *models.Step `json:"step"`
	Reason string       `json:"reason"`
}

// RefinePlan re-plans the whole remaining plan against the live DOM.
// The stepID/reason/strategy triple records which decision triggered it.
func (a *AdaptivePlanner) RefinePlan(
	ctx context.Context,
	plan *models.Plan,
	session browser.Session,
	executed []models.ExecutionResult,
	stepID, reason, strategy string,
) (*models.Plan, error) {
	planJSON, err := json.Marshal(plan.Steps)
	if err != nil {
		return nil, fmt.Errorf("encoding plan: %w", err)
	}
	resultsJSON := marshalResults(executed)
	summary := a.domSummary(ctx, session)

	resp, err := a.provider.CreateChatCompletion(ctx, llm.Request{
		Model:          a.models.PlannerModel(),
		Messages:       prompt.RefinePlanMessages(string(planJSON), resultsJSON, summary),
		Temperature:    0.2,
		ResponseFormat: &llm.ResponseFormat{Type: llm.ResponseFormatJSON},
	})
	if err != nil {
		return nil, fmt.Errorf("plan refinement failed: %w", err)
	}
	var parsed refinePlanResponse
	if err := decodeResponse(resp.Content, &parsed); err != nil {
		return nil, llm.NewProviderError(a.provider.Name(), "refinement response is not valid JSON", err)
	}
	if len(parsed.Steps) == 0 && len(parsed.RemovedStepIDs) == 0 {
		return nil, llm.NewProviderError(a.provider.Name(), "refinement response contains no steps", nil)
	}

	refined := plan.Clone()
	if len(parsed.Steps) > 0 {
		refined.Steps = dropRemoved(parsed.Steps, parsed.RemovedStepIDs)
	} else {
		refined.Steps = dropRemoved(refined.Steps, parsed.RemovedStepIDs)
	}
	if refined.Phase == models.PlanPhaseInitial {
		refined.Phase = models.PlanPhaseRefined
	}
	if parsed.Reason != "" {
		reason = fmt.Sprintf("%s: %s", reason, parsed.Reason)
	}
	refined.AppendRefinement(stepID, reason, strategy)

	if err := a.store.SavePlan(ctx, refined); err != nil {
		return nil, fmt.Errorf("persisting refined plan: %w", err)
	}
	a.logger.Info("Plan refined",
		"plan_id", refined.ID, "strategy", strategy,
		"steps", len(refined.Steps), "removed", len(parsed.RemovedStepIDs))
	return refined, nil
}

// RefineNextStep refines only the next step, which may be amended or
// removed but never multiplied. Returns the updated plan and the ids of
// removed steps.
func (a *AdaptivePlanner) RefineNextStep(
	ctx context.Context,
	plan *models.Plan,
	session browser.Session,
	executed []models.ExecutionResult,
	nextIndex int,
	testID string,
) (*models.Plan, []string, error) {
	if nextIndex < 0 || nextIndex >= len(plan.Steps) {
		return plan, nil, nil
	}
	step := plan.Steps[nextIndex]

	stepJSON, err := json.Marshal(step)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding step: %w", err)
	}
	resp, err := a.provider.CreateChatCompletion(ctx, llm.Request{
		Model:          a.models.PlannerModel(),
		Messages:       prompt.RefineStepMessages(string(stepJSON), marshalResults(executed), a.domSummary(ctx, session)),
		Temperature:    0.2,
		ResponseFormat: &llm.ResponseFormat{Type: llm.ResponseFormatJSON},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("next-step refinement failed: %w", err)
	}
	var parsed refineStepResponse
	if err := decodeResponse(resp.Content, &parsed); err != nil {
		return nil, nil, llm.NewProviderError(a.provider.Name(), "next-step response is not valid JSON", err)
	}

	refined := plan.Clone()
	var removed []string
	switch {
	case parsed.Remove:
		removed = []string{step.ID}
		refined.Steps = dropRemoved(refined.Steps, removed)
		refined.AppendRefinement(step.ID, reasonOr(parsed.Reason, "next step is unnecessary"), "next-step")
	case parsed.Step != nil && parsed.Step.ID == step.ID:
		if updated, idx := refined.StepByID(step.ID); updated != nil {
			amended := *parsed.Step
			amended.RetryCount = updated.RetryCount
			refined.Steps[idx] = amended
		}
		refined.AppendRefinement(step.ID, reasonOr(parsed.Reason, "next step amended"), "next-step")
	default:
		// nothing to change
		return plan, nil, nil
	}

	if refined.Phase == models.PlanPhaseInitial {
		refined.Phase = models.PlanPhaseRefined
	}
	if err := a.store.SavePlan(ctx, refined); err != nil {
		return nil, nil, fmt.Errorf("persisting refined plan: %w", err)
	}
	a.logger.Debug("Next step refined",
		"test_id", testID, "plan_id", refined.ID, "step_id", step.ID, "removed", removed)
	return refined, removed, nil
}

// AdaptPlan rewrites a failed step around a rediscovered selector and
// moves the plan to the adaptive phase. The step passed in already
// carries the discovered selector in its arguments; the LLM pass adjusts
// surrounding arguments and falls back to the mechanical rewrite when it
// fails.
func (a *AdaptivePlanner) AdaptPlan(
	ctx context.Context,
	plan *models.Plan,
	failedStep models.Step,
	failure models.ExecutionResult,
	session browser.Session,
) (*models.Plan, error) {
	adapted := plan.Clone()
	current, idx := adapted.StepByID(failedStep.ID)
	if current == nil {
		return nil, storage.NewValidationError("stepId", fmt.Sprintf("step %s is not part of plan %s", failedStep.ID, plan.ID))
	}

	rewritten := failedStep.Clone()
	if resp, err := a.adaptStepViaLLM(ctx, failedStep, failure, session); err != nil {
		a.logger.Warn("LLM adaptation failed, keeping mechanical rewrite",
			"step_id", failedStep.ID, "error", err)
	} else if resp.Step != nil && resp.Step.ID == failedStep.ID {
		rewritten = resp.Step.Clone()
		rewritten.RetryCount = failedStep.RetryCount
		rewritten.OriginalSelector = failedStep.OriginalSelector
		rewritten.ElementDiscovery = failedStep.ElementDiscovery
	}
	adapted.Steps[idx] = rewritten

	adapted.Phase = models.PlanPhaseAdaptive
	adapted.AppendRefinement(failedStep.ID,
		fmt.Sprintf("recovered from failure: %s", failure.Error), "recovery")

	if err := a.store.SavePlan(ctx, adapted); err != nil {
		return nil, fmt.Errorf("persisting adapted plan: %w", err)
	}
	a.logger.Info("Plan adapted after failure", "plan_id", adapted.ID, "step_id", failedStep.ID)
	return adapted, nil
}

func (a *AdaptivePlanner) adaptStepViaLLM(
	ctx context.Context,
	failedStep models.Step,
	failure models.ExecutionResult,
	session browser.Session,
) (*adaptResponse, error) {
	stepJSON, err := json.Marshal(failedStep)
	if err != nil {
		return nil, err
	}
	resp, err := a.provider.CreateChatCompletion(ctx, llm.Request{
		Model: a.models.PlannerModel(),
		Messages: prompt.AdaptPlanMessages(
			string(stepJSON), failure.Error, failedStep.Action.StringArg("selector"), a.domSummary(ctx, session)),
		Temperature:    0.2,
		ResponseFormat: &llm.ResponseFormat{Type: llm.ResponseFormatJSON},
	})
	if err != nil {
		return nil, err
	}
	var parsed adaptResponse
	if err := decodeResponse(resp.Content, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// domSummary reads the page summary through the shared cache
func (a *AdaptivePlanner) domSummary(ctx context.Context, session browser.Session) string {
	url, err := session.URL(ctx)
	if err == nil && url != "" {
		if cached, ok := a.domCache.Get(url); ok {
			return cached
		}
	}
	summary := a.extractor.Extract(ctx, session, dom.DefaultExtractOptions())
	if err == nil && url != "" && summary != "[]" {
		a.domCache.Set(url, summary)
	}
	return summary
}

func marshalResults(results []models.ExecutionResult) string {
	trimmed := make([]models.ExecutionResult, len(results))
	for i, r := range results {
		trimmed[i] = r
		if r.Snapshot != nil {
			// screenshots do not belong in text prompts
			snap := *r.Snapshot
			snap.Metadata.ScreenshotBase64 = ""
			trimmed[i].Snapshot = &snap
		}
	}
	data, err := json.Marshal(trimmed)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func dropRemoved(steps []models.Step, removedIDs []string) []models.Step {
	if len(removedIDs) == 0 {
		return steps
	}
	removed := make(map[string]bool, len(removedIDs))
	for _, id := range removedIDs {
		removed[id] = true
	}
	kept := steps[:0:0]
	for _, s := range steps {
		if !removed[s.ID] {
			kept = append(kept, s)
		}
	}
	return kept
}

func reasonOr(reason, fallback string) string {
	if reason != "" {
		return reason
	}
	return fallback
}
