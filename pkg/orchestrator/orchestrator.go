// Package orchestrator runs one plan against one browser session: it
// consults the refinement engine before and after every step, recovers
// failed steps through element discovery, verifies outcomes, and emits the
// final report. A single orchestrator processes its steps sequentially and
// exclusively owns its session until cleanup.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voyager-qa/voyager/pkg/browser"
	"github.com/voyager-qa/voyager/pkg/discovery"
	"github.com/voyager-qa/voyager/pkg/models"
	"github.com/voyager-qa/voyager/pkg/planner"
	"github.com/voyager-qa/voyager/pkg/refinement"
	"github.com/voyager-qa/voyager/pkg/thresholds"
	"github.com/voyager-qa/voyager/pkg/verifier"
)

const (
	// networkIdleCeiling bounds post-navigation settling waits
	networkIdleCeiling = 5 * time.Second
	// defaultMaxRetries is the default cap on recovery attempts per step
	defaultMaxRetries = 2
)

// ProgressFunc receives step-by-step progress during a run
type ProgressFunc func(currentStep, totalSteps int, results []models.ExecutionResult)

// Deps are the collaborators an orchestrator needs
type Deps struct {
	Executor   *browser.Executor
	Discovery  *discovery.Service
	Adaptive   *planner.AdaptivePlanner
	Verifier   *verifier.Verifier
	Engine     *refinement.Engine
	Thresholds *thresholds.Service
}

// Orchestrator executes one plan adaptively
type Orchestrator struct {
	deps   Deps
	logger *slog.Logger

	// FailFast stops the run on the first failed or unverified step
	FailFast bool
	// ProactiveRefinement enables the pre-step decision pass
	ProactiveRefinement bool
	// MaxRetries caps recovery attempts per step
	MaxRetries int
	// OnProgress, when set, is called after every processed step
	OnProgress ProgressFunc
}

// New creates an orchestrator with fail-fast and proactive refinement on
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		deps:                deps,
		logger:              slog.Default().With("component", "orchestrator"),
		FailFast:            true,
		ProactiveRefinement: true,
		MaxRetries:          defaultMaxRetries,
	}
}

// Run executes the plan and returns the report. The session is released on
// every exit path; cleanup failures are logged, never returned.
func (o *Orchestrator) Run(ctx context.Context, plan *models.Plan, testID string) *models.Report {
	startTime := time.Now().UTC()
	defer func() {
		if err := o.deps.Executor.Cleanup(context.Background()); err != nil {
			o.logger.Warn("Browser cleanup failed", "test_id", testID, "error", err)
		}
	}()

	session := o.deps.Executor.Session()
	removed := make(map[string]bool)
	var results []models.ExecutionResult
	var failReason string
	lastURL := ""

	for index := 0; index < len(plan.Steps); {
		if ctx.Err() != nil {
			failReason = "cancelled"
			break
		}

		step := plan.Steps[index].Clone()
		if removed[step.ID] {
			index++
			continue
		}
		if o.unnecessaryReveal(ctx, step, session) {
			o.logger.Info("Skipping reveal step, target form already visible",
				"test_id", testID, "step_id", step.ID)
			removed[step.ID] = true
			plan.AppendRefinement(step.ID, "unnecessary reveal step: target form is already visible", refinement.StrategyProactive)
			index++
			continue
		}

		currentURL, _ := session.URL(ctx)
		rc := refinement.Context{
			Session:             session,
			ExecutedResults:     results,
			CurrentStepIndex:    index,
			TotalSteps:          len(plan.Steps),
			PreviousRefinements: plan.RefinementHistory,
			PageURL:             currentURL,
			PreviousPageURL:     lastURL,
			PageChanged:         lastURL != "" && currentURL != lastURL,
		}

		if o.ProactiveRefinement {
			decision := o.deps.Engine.Decide(ctx, step, plan, rc)
			if decision.ShouldRefine {
				if decision.RemoveStep {
					removed[step.ID] = true
					plan.AppendRefinement(step.ID, decision.Reason, decision.Strategy)
					index++
					continue
				}
				plan, index, step = o.refineBeforeStep(ctx, plan, step, index, results, rc, decision, session)
				if removed[step.ID] || step.ID == "" {
					index++
					continue
				}
			}
		}

		result := o.deps.Executor.Execute(ctx, step)
		if result.Status != models.ResultStatusSuccess {
			rc.StepResult = &result
			decision := o.deps.Engine.Decide(ctx, step, plan, rc)
			if decision.ShouldRefine {
				if recovered, adaptedPlan := o.attemptRecovery(ctx, &step, result, plan, session); recovered {
					plan = adaptedPlan
					result = o.deps.Executor.Execute(ctx, step)
				}
			}
			if result.Status != models.ResultStatusSuccess {
				results = append(results, result)
				failReason = fmt.Sprintf("step %s failed: %s", step.ID, result.Error)
				o.logger.Warn("Step failed", "test_id", testID, "step_id", step.ID, "error", result.Error)
				if o.FailFast {
					break
				}
				index++
				continue
			}
		}

		verification := o.verify(ctx, step, result)
		result.Verification = &verification
		results = append(results, result)
		if !verification.IsVerified {
			failReason = fmt.Sprintf("step %s not verified: %s", step.ID, verification.Evidence)
			o.logger.Warn("Step verification failed",
				"test_id", testID, "step_id", step.ID, "evidence", verification.Evidence)
			if o.FailFast {
				break
			}
			index++
			continue
		}

		if result.Snapshot != nil && result.Snapshot.Metadata.URL != "" {
			lastURL = result.Snapshot.Metadata.URL
		}

		if index+1 < len(plan.Steps) {
			if refined, removedIDs, err := o.deps.Adaptive.RefineNextStep(ctx, plan, session, results, index+1, testID); err != nil {
				o.logger.Warn("Next-step refinement failed, keeping plan",
					"test_id", testID, "error", err)
			} else {
				plan = refined
				for _, id := range removedIDs {
					removed[id] = true
				}
			}
		}

		if o.OnProgress != nil {
			o.OnProgress(index+1, len(plan.Steps), results)
		}
		index++
	}

	if failReason == "" && ctx.Err() != nil {
		failReason = "cancelled"
	}
	return &models.Report{
		TestID:     testID,
		ScenarioID: plan.ScenarioID,
		PlanID:     plan.ID,
		Results:    results,
		Summary: models.ReportSummary{
			StartTime: startTime,
			EndTime:   time.Now().UTC(),
			Success:   failReason == "",
			Reason:    failReason,
		},
	}
}

// refineBeforeStep runs a full-plan refinement and realigns the cursor on
// the (possibly amended or dropped) current step. A zero-ID step signals
// the step vanished from the refined plan.
func (o *Orchestrator) refineBeforeStep(
	ctx context.Context,
	plan *models.Plan,
	step models.Step,
	index int,
	results []models.ExecutionResult,
	rc refinement.Context,
	decision refinement.Decision,
	session browser.Session,
) (*models.Plan, int, models.Step) {
	if rc.PageChanged || step.Action.Name == "navigate" {
		o.settle(ctx, session)
	}

	refined, err := o.deps.Adaptive.RefinePlan(ctx, plan, session, results, step.ID, decision.Reason, decision.Strategy)
	if err != nil {
		o.logger.Warn("Plan refinement failed, continuing with current plan",
			"step_id", step.ID, "error", err)
		return plan, index, step
	}

	current, idx := refined.StepByID(step.ID)
	if current == nil {
		// the step was dropped; the cursor now points at its successor
		return refined, index - 1, models.Step{}
	}
	return refined, idx, current.Clone()
}

// attemptRecovery rediscovers the failed step's element and adapts the
// plan around it. Returns false when retries are exhausted, discovery
// fails, or its confidence sits below the default threshold.
func (o *Orchestrator) attemptRecovery(
	ctx context.Context,
	step *models.Step,
	failure models.ExecutionResult,
	plan *models.Plan,
	session browser.Session,
) (bool, *models.Plan) {
	if step.RetryCount >= o.MaxRetries {
		o.logger.Info("Recovery abandoned, retries exhausted", "step_id", step.ID)
		return false, plan
	}

	description := step.Action.StringArg("description")
	if description == "" {
		description = step.Action.StringArg("selector")
	}
	if description == "" {
		description = step.Description
	}

	found, err := o.deps.Discovery.Discover(ctx, session, description, step.Action.Name)
	if err != nil {
		o.logger.Warn("Element rediscovery failed", "step_id", step.ID, "error", err)
		return false, plan
	}
	threshold := o.deps.Thresholds.GetThreshold(ctx, thresholds.ActionDefault)
	if found.Confidence < threshold {
		o.logger.Info("Rediscovered element rejected, confidence below threshold",
			"step_id", step.ID, "confidence", found.Confidence, "threshold", threshold)
		return false, plan
	}

	if step.OriginalSelector == "" {
		step.OriginalSelector = step.Action.StringArg("selector")
	}
	if step.Action.Arguments == nil {
		step.Action.Arguments = make(map[string]any)
	}
	step.Action.Arguments["selector"] = found.Selector
	step.Action.Arguments["confidence"] = found.Confidence
	step.Action.Arguments["alternatives"] = found.Alternatives
	step.ElementDiscovery = &models.ElementDiscoveryInfo{
		Strategy:     found.Strategy,
		Confidence:   found.Confidence,
		Alternatives: found.Alternatives,
		DiscoveredAt: time.Now().UTC(),
	}
	step.RetryCount++

	adapted, err := o.deps.Adaptive.AdaptPlan(ctx, plan, *step, failure, session)
	if err != nil {
		o.logger.Warn("Plan adaptation failed", "step_id", step.ID, "error", err)
		return false, plan
	}
	if current, _ := adapted.StepByID(step.ID); current != nil {
		*step = current.Clone()
	}
	o.logger.Info("Step recovered via element discovery",
		"step_id", step.ID, "selector", found.Selector,
		"confidence", found.Confidence, "strategy", found.Strategy)
	return true, adapted
}

// verify judges the step, preferring its own assertion when one exists.
// Verifier errors count as not verified.
func (o *Orchestrator) verify(ctx context.Context, step models.Step, result models.ExecutionResult) models.Verification {
	if step.Assertion != "" {
		verifications, err := o.deps.Verifier.VerifyAssertions(ctx, []string{step.Assertion}, result)
		if err != nil {
			return models.Verification{IsVerified: false, Evidence: fmt.Sprintf("assertion check failed: %v", err)}
		}
		return verifications[0]
	}
	verification, err := o.deps.Verifier.VerifyStep(ctx, step, result)
	if err != nil {
		return models.Verification{IsVerified: false, Evidence: fmt.Sprintf("verification failed: %v", err)}
	}
	return verification
}

// unnecessaryReveal reports whether the step only reveals a form that is
// already on screen
func (o *Orchestrator) unnecessaryReveal(ctx context.Context, step models.Step, session browser.Session) bool {
	return refinement.IsRevealStep(step) && browser.VisibleFormPresent(ctx, session)
}

// settle waits briefly for the network to go idle after navigation or a
// page change; timeouts are swallowed
func (o *Orchestrator) settle(ctx context.Context, session browser.Session) {
	waitCtx, cancel := context.WithTimeout(ctx, networkIdleCeiling)
	defer cancel()
	if err := session.WaitForNetworkIdle(waitCtx, networkIdleCeiling); err != nil {
		o.logger.Debug("Network idle wait ended early", "error", err)
	}
}
