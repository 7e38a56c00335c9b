package refinement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/voyager-qa/voyager/pkg/browser"
	"github.com/voyager-qa/voyager/pkg/dom"
	"github.com/voyager-qa/voyager/pkg/models"
	"github.com/voyager-qa/voyager/pkg/thresholds"
)

// Strategy names, recorded in plan refinement history
const (
	StrategyNavigation = "navigation"
	StrategyFailure    = "failure"
	StrategyPageChange = "page-change"
	StrategyConfidence = "confidence"
	StrategyProactive  = "proactive"
)

const (
	// maxStepRetries is the default cap on recovery attempts per step
	maxStepRetries = 2
	// dedupWindow suppresses re-firing on a step refined moments ago
	dedupWindow = 5 * time.Second
)

// DefaultStrategies returns the reference strategy set in priority order.
// maxRetries caps recovery attempts per step; zero or negative picks the
// default.
func DefaultStrategies(thresholdSvc *thresholds.Service, extractor *dom.Extractor, maxRetries int) []Strategy {
	return []Strategy{
		&NavigationStrategy{},
		&FailureStrategy{MaxRetries: maxRetries},
		&PageChangeStrategy{},
		&ConfidenceStrategy{Thresholds: thresholdSvc, Extractor: extractor},
		&ProactiveStrategy{Extractor: extractor},
	}
}

// NavigationStrategy refines the whole plan right after the first
// navigation, when the planner has seen no real page yet
type NavigationStrategy struct{}

func (s *NavigationStrategy) Name() string { return StrategyNavigation }

func (s *NavigationStrategy) ShouldRefine(ctx context.Context, step models.Step, plan *models.Plan, rc Context) Decision {
	if step.Action.Name != "navigate" || plan.Phase != models.PlanPhaseInitial {
		return Decision{}
	}
	if refinedBy(rc.PreviousRefinements, StrategyNavigation) {
		return Decision{}
	}
	if !hasInteractionAfter(plan, rc.CurrentStepIndex) {
		return Decision{}
	}
	return Decision{
		ShouldRefine: true,
		Reason:       "initial plan has never seen the live page; refine after navigation",
		Priority:     100,
		Confidence:   0.9,
	}
}

// FailureStrategy refines after an interactive step failed
type FailureStrategy struct {
	// MaxRetries caps recovery attempts per step; zero or negative picks
	// the default
	MaxRetries int
}

func (s *FailureStrategy) Name() string { return StrategyFailure }

func (s *FailureStrategy) retryCap() int {
	if s.MaxRetries > 0 {
		return s.MaxRetries
	}
	return maxStepRetries
}

func (s *FailureStrategy) ShouldRefine(ctx context.Context, step models.Step, plan *models.Plan, rc Context) Decision {
	if rc.StepResult == nil || rc.StepResult.Status == models.ResultStatusSuccess {
		return Decision{}
	}
	if !step.Action.Interactive() || step.RetryCount >= s.retryCap() {
		return Decision{}
	}
	if refinedWithin(rc.PreviousRefinements, step.ID, dedupWindow) {
		return Decision{}
	}
	return Decision{
		ShouldRefine: true,
		Reason:       fmt.Sprintf("step %s failed: %s", step.ID, rc.StepResult.Error),
		Priority:     95,
		Confidence:   0.95,
	}
}

// PageChangeStrategy refines interactive steps when the page URL changed
// under the plan
type PageChangeStrategy struct{}

func (s *PageChangeStrategy) Name() string { return StrategyPageChange }

func (s *PageChangeStrategy) ShouldRefine(ctx context.Context, step models.Step, plan *models.Plan, rc Context) Decision {
	if !rc.PageChanged || !step.Action.Interactive() {
		return Decision{}
	}
	if refinedWithin(rc.PreviousRefinements, step.ID, dedupWindow) {
		return Decision{}
	}
	return Decision{
		ShouldRefine: true,
		Reason:       fmt.Sprintf("page changed from %s to %s", rc.PreviousPageURL, rc.PageURL),
		Priority:     90,
		Confidence:   0.85,
	}
}

// ConfidenceStrategy refines steps whose discovery confidence sits below
// the per-action threshold
type ConfidenceStrategy struct {
	Thresholds *thresholds.Service
	Extractor  *dom.Extractor
}

func (s *ConfidenceStrategy) Name() string { return StrategyConfidence }

func (s *ConfidenceStrategy) ShouldRefine(ctx context.Context, step models.Step, plan *models.Plan, rc Context) Decision {
	if !step.Action.Interactive() {
		return Decision{}
	}
	confidence, ok := stepConfidence(step)
	if !ok {
		return Decision{}
	}
	threshold := s.Thresholds.GetThreshold(ctx, step.Action.Name)
	if confidence >= threshold {
		return Decision{}
	}
	if refinedWithin(rc.PreviousRefinements, step.ID, dedupWindow) {
		return Decision{}
	}

	decisionConfidence := 0.8
	if !selectorResolves(ctx, s.Extractor, rc.Session, step.Action.StringArg("selector")) {
		decisionConfidence = 0.9
	}
	return Decision{
		ShouldRefine: true,
		Reason:       fmt.Sprintf("step confidence %.2f below %s threshold %.2f", confidence, step.Action.Name, threshold),
		Priority:     80,
		Confidence:   decisionConfidence,
	}
}

// ProactiveStrategy catches broken selectors before execution and marks
// reveal steps for removal when their target is already on screen
type ProactiveStrategy struct {
	Extractor *dom.Extractor
}

func (s *ProactiveStrategy) Name() string { return StrategyProactive }

func (s *ProactiveStrategy) ShouldRefine(ctx context.Context, step models.Step, plan *models.Plan, rc Context) Decision {
	if !step.Action.Interactive() {
		return Decision{}
	}

	if IsRevealStep(step) && rc.Session != nil && browser.VisibleFormPresent(ctx, rc.Session) {
		return Decision{
			ShouldRefine: true,
			Reason:       "reveal step is unnecessary: target form is already visible",
			Priority:     80,
			Confidence:   0.85,
			RemoveStep:   true,
		}
	}

	selector := step.Action.StringArg("selector")
	if selector == "" || !selectorResolves(ctx, s.Extractor, rc.Session, selector) {
		reason := "step has no selector yet"
		if selector != "" {
			reason = fmt.Sprintf("selector %q does not resolve on the page", selector)
		}
		return Decision{
			ShouldRefine: true,
			Reason:       reason,
			Priority:     70,
			Confidence:   0.75,
		}
	}
	return Decision{}
}

// hasInteractionAfter reports whether any later step manipulates an element
func hasInteractionAfter(plan *models.Plan, index int) bool {
	for i := index + 1; i < len(plan.Steps); i++ {
		if plan.Steps[i].Action.Interactive() {
			return true
		}
	}
	return false
}

// stepConfidence reads the step's recorded discovery confidence
func stepConfidence(step models.Step) (float64, bool) {
	if v, ok := step.Action.FloatArg("confidence"); ok {
		return v, true
	}
	if step.ElementDiscovery != nil {
		return step.ElementDiscovery.Confidence, true
	}
	return 0, false
}

// selectorResolves validates a selector against the live page; absent
// sessions or selectors count as unresolved
func selectorResolves(ctx context.Context, extractor *dom.Extractor, session browser.Session, selector string) bool {
	if selector == "" || session == nil || extractor == nil {
		return false
	}
	validation, err := extractor.ValidateSelector(ctx, session, selector)
	if err != nil {
		return false
	}
	return validation.Exists
}

// IsRevealStep detects click steps whose purpose is to reveal a form
func IsRevealStep(step models.Step) bool {
	if step.Action.Name != "click" {
		return false
	}
	text := strings.ToLower(step.Description + " " + step.Action.StringArg("description"))
	verb := strings.Contains(text, "reveal") || strings.Contains(text, "show") || strings.Contains(text, "open")
	target := strings.Contains(text, "form") || strings.Contains(text, "login") ||
		strings.Contains(text, "signup") || strings.Contains(text, "sign in") || strings.Contains(text, "sign up")
	return verb && target
}
