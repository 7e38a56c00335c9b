package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyager-qa/voyager/pkg/browser"
	"github.com/voyager-qa/voyager/pkg/cache"
	"github.com/voyager-qa/voyager/pkg/discovery"
	"github.com/voyager-qa/voyager/pkg/dom"
	"github.com/voyager-qa/voyager/pkg/llm"
	"github.com/voyager-qa/voyager/pkg/models"
	"github.com/voyager-qa/voyager/pkg/planner"
	"github.com/voyager-qa/voyager/pkg/refinement"
	"github.com/voyager-qa/voyager/pkg/storage"
	"github.com/voyager-qa/voyager/pkg/thresholds"
	"github.com/voyager-qa/voyager/pkg/verifier"
)

// scriptedLLM answers next-step refinement with "no change" and LLM
// verification with a pass; everything else errors so tests notice
// unexpected calls
func scriptedLLM() *llm.StubProvider {
	stub := &llm.StubProvider{}
	stub.RespondFunc = func(req llm.Request) (*llm.Response, error) {
		system := req.Messages[0].Content
		switch {
		case strings.Contains(system, "single next step"):
			return &llm.Response{Content: `{"step": null, "remove": false, "reason": "no change"}`, Role: llm.RoleAssistant}, nil
		case strings.Contains(system, "achieved its intent"):
			return &llm.Response{Content: `{"isVerified": true, "evidence": "intent satisfied"}`, Role: llm.RoleAssistant}, nil
		default:
			return nil, errors.New("unscripted prompt")
		}
	}
	return stub
}

// pageEvaluate scripts the in-page helpers: the visible-form probe, the
// heading verification, typed-value read-back, and selector validation
func pageEvaluate(typed map[string]string, validSelectors map[string]bool, formVisible, headingPassed bool) func(string) (string, error) {
	return func(script string) (string, error) {
		switch {
		case strings.Contains(script, "input[type=password]"):
			return fmt.Sprintf(`{"present": %t}`, formVisible), nil
		case strings.Contains(script, "h1,h2,h3"):
			return fmt.Sprintf(`{"passed": %t, "actual": "Example Domain"}`, headingPassed), nil
		case strings.Contains(script, "document.querySelector("):
			for selector, value := range typed {
				if strings.Contains(script, strconv.Quote(selector)) {
					return strconv.Quote(value), nil
				}
			}
			return "null", nil
		case strings.Contains(script, "interactiveSelectors"):
			return "[]", nil
		default:
			for selector, exists := range validSelectors {
				if strings.Contains(script, "querySelectorAll("+strconv.Quote(selector)+")") {
					count := 0
					if exists {
						count = 1
					}
					return fmt.Sprintf(`{"exists": %t, "isUnique": %t, "isVisible": %t, "count": %d}`,
						exists, exists, exists, count), nil
				}
			}
			return `{"exists": false, "isUnique": false, "isVisible": false, "count": 0}`, nil
		}
	}
}

// cannedStrategy is a fixed discovery answer for recovery tests
type cannedStrategy struct {
	result *discovery.Result
	err    error
}

func (c *cannedStrategy) Name() string { return "canned" }
func (c *cannedStrategy) Discover(ctx context.Context, session browser.Session, description, actionType string) (*discovery.Result, error) {
	return c.result, c.err
}

type harness struct {
	stub    *llm.StubProvider
	session *browser.StubSession
	store   storage.Store
	orch    *Orchestrator
}

func newHarness(t *testing.T, session *browser.StubSession, stub *llm.StubProvider, found *cannedStrategy) *harness {
	t.Helper()
	store := storage.NewMemoryStore()
	client := &llm.Client{Provider: stub}
	extractor := dom.NewExtractor()
	domCache := cache.New(cache.DefaultConfig())
	thresholdSvc := thresholds.NewService(context.Background(), store, nil)

	executor := browser.NewExecutor(session)
	executor.CaptureScreenshots = false

	if found == nil {
		found = &cannedStrategy{err: errors.New("no discovery scripted")}
	}
	orch := New(Deps{
		Executor:   executor,
		Discovery:  discovery.NewService(found),
		Adaptive:   planner.NewAdaptivePlanner(client, extractor, domCache, store),
		Verifier:   verifier.NewVerifier(client),
		Engine:     refinement.NewEngine(refinement.DefaultStrategies(thresholdSvc, extractor, 0)...),
		Thresholds: thresholdSvc,
	})
	return &harness{stub: stub, session: session, store: store, orch: orch}
}

func savedPlan(t *testing.T, steps ...models.Step) *models.Plan {
	t.Helper()
	return &models.Plan{
		ID:         "plan-1",
		ScenarioID: "scenario-abc",
		Name:       "test plan",
		Phase:      models.PlanPhaseRefined,
		Steps:      steps,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestRunSuccessfulNavigateAndVerify(t *testing.T) {
	session := browser.NewStubSession("")
	session.EvaluateFunc = pageEvaluate(nil, nil, false, true)
	h := newHarness(t, session, scriptedLLM(), nil)

	var progress []int
	h.orch.OnProgress = func(current, total int, results []models.ExecutionResult) {
		progress = append(progress, current)
	}

	plan := savedPlan(t,
		models.Step{ID: "step-1", Description: "open example.com",
			Action: models.Action{Name: "navigate", Arguments: map[string]any{"url": "https://example.com"}}},
		models.Step{ID: "step-2", Description: "check the heading",
			Action: models.Action{Name: "verify_heading_contains", Arguments: map[string]any{"value": "Example Domain"}}},
	)
	report := h.orch.Run(context.Background(), plan, "test-1")

	assert.True(t, report.Summary.Success)
	assert.Empty(t, report.Summary.Reason)
	require.Len(t, report.Results, 2)
	for _, result := range report.Results {
		assert.Equal(t, models.ResultStatusSuccess, result.Status)
		require.NotNil(t, result.Verification)
		assert.True(t, result.Verification.IsVerified)
	}
	assert.Equal(t, []int{1, 2}, progress)
	assert.True(t, session.Closed(), "session is released after the run")
}

func TestRunSkipsUnnecessaryRevealStep(t *testing.T) {
	session := browser.NewStubSession("https://example.com/login")
	session.EvaluateFunc = pageEvaluate(
		map[string]string{"#email": "a@b.c", "#password": "secret"},
		map[string]bool{"#email": true, "#password": true, "button[type=submit]": true},
		true, false)
	h := newHarness(t, session, scriptedLLM(), nil)

	plan := savedPlan(t,
		models.Step{ID: "step-1", Description: "click login button to reveal form",
			Action: models.Action{Name: "click", Arguments: map[string]any{"selector": "#show-login"}}},
		models.Step{ID: "step-2", Description: "type email",
			Action: models.Action{Name: "type", Arguments: map[string]any{"selector": "#email", "value": "a@b.c"}}},
		models.Step{ID: "step-3", Description: "type password",
			Action: models.Action{Name: "type", Arguments: map[string]any{"selector": "#password", "value": "secret"}}},
		models.Step{ID: "step-4", Description: "click submit",
			Action: models.Action{Name: "click", Arguments: map[string]any{"selector": "button[type=submit]"}}},
	)
	report := h.orch.Run(context.Background(), plan, "test-2")

	assert.True(t, report.Summary.Success)
	require.Len(t, report.Results, 3, "the reveal step never executes")
	assert.NotContains(t, session.Calls(), "click #show-login")

	require.NotEmpty(t, plan.RefinementHistory)
	assert.Contains(t, plan.RefinementHistory[0].Reason, "unnecessary")
	assert.Equal(t, "step-1", plan.RefinementHistory[0].StepID)
}

func TestRunRecoversFailedStepThroughDiscovery(t *testing.T) {
	session := browser.NewStubSession("")
	session.FailSelectors = map[string]error{"#old-button": errors.New("no node found for selector #old-button")}
	session.EvaluateFunc = pageEvaluate(nil, map[string]bool{"#new-button": true}, false, false)

	found := &cannedStrategy{result: &discovery.Result{Selector: "#new-button", Confidence: 0.82}}
	h := newHarness(t, session, scriptedLLM(), found)
	h.orch.ProactiveRefinement = false

	plan := savedPlan(t,
		models.Step{ID: "step-1", Description: "open the page",
			Action: models.Action{Name: "navigate", Arguments: map[string]any{"url": "https://example.com"}}},
		models.Step{ID: "step-2", Description: "click the old button",
			Action: models.Action{Name: "click", Arguments: map[string]any{"selector": "#old-button"}}},
	)
	report := h.orch.Run(context.Background(), plan, "test-3")

	assert.True(t, report.Summary.Success)
	require.Len(t, report.Results, 2)
	assert.Equal(t, models.ResultStatusSuccess, report.Results[1].Status)

	calls := session.Calls()
	assert.Contains(t, calls, "click #old-button")
	assert.Contains(t, calls, "click #new-button")

	adapted, err := h.store.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanPhaseAdaptive, adapted.Phase)
	step, _ := adapted.StepByID("step-2")
	require.NotNil(t, step)
	assert.Equal(t, "#new-button", step.Action.StringArg("selector"))
	assert.Equal(t, "#old-button", step.OriginalSelector)
	assert.Equal(t, 1, step.RetryCount)
}

func TestRunRejectsLowConfidenceRecovery(t *testing.T) {
	session := browser.NewStubSession("")
	session.FailSelectors = map[string]error{"#old-button": errors.New("no node found for selector #old-button")}
	session.EvaluateFunc = pageEvaluate(nil, nil, false, false)

	found := &cannedStrategy{result: &discovery.Result{Selector: "#maybe", Confidence: 0.3}}
	h := newHarness(t, session, scriptedLLM(), found)
	h.orch.ProactiveRefinement = false

	plan := savedPlan(t,
		models.Step{ID: "step-1", Description: "click the old button",
			Action: models.Action{Name: "click", Arguments: map[string]any{"selector": "#old-button"}}},
	)
	report := h.orch.Run(context.Background(), plan, "test-4")

	assert.False(t, report.Summary.Success)
	assert.Contains(t, report.Summary.Reason, "step-1")
	require.Len(t, report.Results, 1)
	assert.Equal(t, models.ResultStatusFailure, report.Results[0].Status)
	assert.NotContains(t, session.Calls(), "click #maybe", "rejected discovery is never executed")
}

func TestRecoveryCapFollowsConfiguredRetries(t *testing.T) {
	newSession := func() *browser.StubSession {
		session := browser.NewStubSession("")
		session.FailSelectors = map[string]error{"#old-button": errors.New("no node found for selector #old-button")}
		session.EvaluateFunc = pageEvaluate(nil, map[string]bool{"#new-button": true}, false, false)
		return session
	}
	worn := models.Step{ID: "step-1", Description: "click the old button", RetryCount: 2,
		Action: models.Action{Name: "click", Arguments: map[string]any{"selector": "#old-button"}}}
	found := &cannedStrategy{result: &discovery.Result{Selector: "#new-button", Confidence: 0.82}}

	// at the default cap of two a twice-retried step is out of budget
	h := newHarness(t, newSession(), scriptedLLM(), found)
	h.orch.ProactiveRefinement = false
	report := h.orch.Run(context.Background(), savedPlan(t, worn), "test-7")
	assert.False(t, report.Summary.Success)
	assert.NotContains(t, h.session.Calls(), "click #new-button")

	// raising the cap lets the same step recover
	h = newHarness(t, newSession(), scriptedLLM(), found)
	h.orch.ProactiveRefinement = false
	h.orch.MaxRetries = 3
	h.orch.deps.Engine = refinement.NewEngine(refinement.DefaultStrategies(
		thresholds.NewService(context.Background(), h.store, nil), dom.NewExtractor(), 3)...)

	report = h.orch.Run(context.Background(), savedPlan(t, worn), "test-8")
	assert.True(t, report.Summary.Success)
	assert.Contains(t, h.session.Calls(), "click #new-button")
}

func TestRunContinuesPastFailuresWithoutFailFast(t *testing.T) {
	session := browser.NewStubSession("")
	session.FailSelectors = map[string]error{"#broken": errors.New("no node found")}
	session.EvaluateFunc = pageEvaluate(nil, nil, false, false)
	h := newHarness(t, session, scriptedLLM(), nil)
	h.orch.ProactiveRefinement = false
	h.orch.FailFast = false

	plan := savedPlan(t,
		models.Step{ID: "step-1", Description: "click the broken button",
			Action: models.Action{Name: "click", Arguments: map[string]any{"selector": "#broken"}}},
		models.Step{ID: "step-2", Description: "open the page",
			Action: models.Action{Name: "navigate", Arguments: map[string]any{"url": "https://example.com"}}},
	)
	report := h.orch.Run(context.Background(), plan, "test-5")

	assert.False(t, report.Summary.Success)
	require.Len(t, report.Results, 2, "the run continues past the failed step")
	assert.Equal(t, models.ResultStatusFailure, report.Results[0].Status)
	assert.Equal(t, models.ResultStatusSuccess, report.Results[1].Status)
	assert.Contains(t, report.Summary.Reason, "step-1", "the first failure names the report reason")
}

func TestRunCancelledBeforeFirstStep(t *testing.T) {
	session := browser.NewStubSession("")
	h := newHarness(t, session, scriptedLLM(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := savedPlan(t,
		models.Step{ID: "step-1", Action: models.Action{Name: "navigate", Arguments: map[string]any{"url": "https://example.com"}}},
	)
	report := h.orch.Run(ctx, plan, "test-6")

	assert.False(t, report.Summary.Success)
	assert.Equal(t, "cancelled", report.Summary.Reason)
	assert.Empty(t, report.Results)
	assert.True(t, session.Closed(), "cleanup still runs on cancellation")
}
