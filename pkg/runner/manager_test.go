package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
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

// scriptedLLM answers plan synthesis, plan naming, next-step refinement,
// and verification; everything else errors so tests notice unexpected calls
func scriptedLLM() *llm.StubProvider {
	stub := &llm.StubProvider{}
	stub.RespondFunc = func(req llm.Request) (*llm.Response, error) {
		system := req.Messages[0].Content
		switch {
		case strings.Contains(system, "convert natural-language test scenarios"):
			return &llm.Response{Content: `{"steps": [
				{"id": "step-1", "description": "open example.com",
				 "action": {"name": "navigate", "arguments": {"url": "https://example.com"}}},
				{"id": "step-2", "description": "check the heading",
				 "action": {"name": "verify_heading_contains", "arguments": {"value": "Example Domain"}}}
			]}`, Role: llm.RoleAssistant}, nil
		case strings.Contains(system, "You name browser test plans"):
			return &llm.Response{Content: "Open example and check heading", Role: llm.RoleAssistant}, nil
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

// pageEvaluate scripts the in-page probes used during a run
func pageEvaluate(headingPassed bool) func(string) (string, error) {
	return func(script string) (string, error) {
		switch {
		case strings.Contains(script, "input[type=password]"):
			return `{"present": false}`, nil
		case strings.Contains(script, "h1,h2,h3"):
			return fmt.Sprintf(`{"passed": %t, "actual": "Example Domain"}`, headingPassed), nil
		case strings.Contains(script, "interactiveSelectors"):
			return "[]", nil
		default:
			return "null", nil
		}
	}
}

// sessionFactory hands out stub sessions and remembers them for assertions
type sessionFactory struct {
	mu       sync.Mutex
	evaluate func(string) (string, error)
	err      error
	sessions []*browser.StubSession
}

func (f *sessionFactory) new(ctx context.Context) (browser.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	session := browser.NewStubSession("")
	session.EvaluateFunc = f.evaluate
	f.mu.Lock()
	f.sessions = append(f.sessions, session)
	f.mu.Unlock()
	return session, nil
}

func (f *sessionFactory) last() *browser.StubSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return nil
	}
	return f.sessions[len(f.sessions)-1]
}

func newManager(t *testing.T, stub *llm.StubProvider, factory *sessionFactory) (*Manager, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	client := &llm.Client{Provider: stub}
	extractor := dom.NewExtractor()
	domCache := cache.New(cache.DefaultConfig())
	thresholdSvc := thresholds.NewService(context.Background(), store, nil)

	manager := NewManager(Deps{
		Store:      store,
		Planner:    planner.NewPlanner(client, store),
		Adaptive:   planner.NewAdaptivePlanner(client, extractor, domCache, store),
		Discovery:  discovery.NewService(),
		Verifier:   verifier.NewVerifier(client),
		Engine:     refinement.NewEngine(refinement.DefaultStrategies(thresholdSvc, extractor, 0)...),
		Thresholds: thresholdSvc,
		Browser:    factory.new,
	}, Options{FailFast: true, ProactiveRefinement: true, CaptureScreenshots: false})
	return manager, store
}

func waitTerminal(t *testing.T, store storage.Store, testID string) *models.Execution {
	t.Helper()
	var exec *models.Execution
	require.Eventually(t, func() bool {
		var err error
		exec, err = store.GetExecution(context.Background(), testID)
		return err == nil && exec.Terminal()
	}, 5*time.Second, 10*time.Millisecond, "execution never reached a terminal state")
	return exec
}

func TestStartAsyncRunsToCompletion(t *testing.T) {
	factory := &sessionFactory{evaluate: pageEvaluate(true)}
	manager, store := newManager(t, scriptedLLM(), factory)

	exec, err := manager.StartAsync(context.Background(), RunRequest{Scenario: "Open example.com and check the heading"})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, exec.Status)
	assert.NotEmpty(t, exec.TestID)
	assert.NotEmpty(t, exec.ScenarioID)

	final := waitTerminal(t, store, exec.TestID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	assert.NotEmpty(t, final.PlanID)
	assert.Equal(t, 2, final.TotalSteps)
	assert.Equal(t, 2, final.CurrentStep)
	require.NotNil(t, final.ReportData)
	assert.True(t, final.ReportData.Summary.Success)
	require.NotNil(t, final.CompletedAt)

	plan, err := store.GetPlan(context.Background(), final.PlanID)
	require.NoError(t, err)
	assert.Equal(t, final.ScenarioID, plan.ScenarioID)

	require.Eventually(t, func() bool { return manager.ActiveCount() == 0 },
		time.Second, 10*time.Millisecond)
	assert.True(t, factory.last().Closed(), "browser session is released")
}

func TestStartAsyncFailedStepMarksExecutionFailed(t *testing.T) {
	factory := &sessionFactory{evaluate: pageEvaluate(false)}
	manager, store := newManager(t, scriptedLLM(), factory)

	exec, err := manager.StartAsync(context.Background(), RunRequest{Scenario: "Open example.com and check the heading"})
	require.NoError(t, err)

	final := waitTerminal(t, store, exec.TestID)
	assert.Equal(t, models.ExecutionStatusFailed, final.Status)
	assert.NotEmpty(t, final.Error)
	require.NotNil(t, final.ReportData)
	assert.False(t, final.ReportData.Summary.Success)
}

func TestCancelStopsActiveRun(t *testing.T) {
	factory := &sessionFactory{evaluate: pageEvaluate(true)}
	manager, store := newManager(t, scriptedLLM(), factory)

	plan := &models.Plan{
		ID:         storage.NewPlanID(),
		ScenarioID: storage.GenerateScenarioID("long running scenario"),
		Scenario:   "long running scenario",
		Name:       "long running",
		Phase:      models.PlanPhaseRefined,
		Steps: []models.Step{
			{ID: "step-1", Description: "wait a long time",
				Action: models.Action{Name: "wait", Arguments: map[string]any{"seconds": 30.0}}},
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SavePlan(context.Background(), plan))

	exec, err := manager.StartAsync(context.Background(), RunRequest{PlanID: plan.ID})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := store.GetExecution(context.Background(), exec.TestID)
		return err == nil && current.Status == models.ExecutionStatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, manager.Cancel(exec.TestID))

	final := waitTerminal(t, store, exec.TestID)
	assert.Equal(t, models.ExecutionStatusFailed, final.Status)
	assert.NotEmpty(t, final.Error)
	assert.False(t, manager.Cancel(exec.TestID), "a finished run is no longer cancellable")
}

func TestExecuteSyncReturnsReport(t *testing.T) {
	factory := &sessionFactory{evaluate: pageEvaluate(true)}
	manager, store := newManager(t, scriptedLLM(), factory)

	report, err := manager.ExecuteSync(context.Background(), RunRequest{Scenario: "Open example.com and check the heading"})
	require.NoError(t, err)
	assert.True(t, report.Summary.Success)
	require.Len(t, report.Results, 2)

	final, err := store.GetExecution(context.Background(), report.TestID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
}

func TestRepeatedScenarioSharesScenarioID(t *testing.T) {
	factory := &sessionFactory{evaluate: pageEvaluate(true)}
	manager, store := newManager(t, scriptedLLM(), factory)

	scenario := "Open example.com and check the heading"
	first, err := manager.ExecuteSync(context.Background(), RunRequest{Scenario: scenario})
	require.NoError(t, err)
	second, err := manager.ExecuteSync(context.Background(), RunRequest{Scenario: scenario})
	require.NoError(t, err)

	assert.Equal(t, first.ScenarioID, second.ScenarioID)
	assert.NotEqual(t, first.TestID, second.TestID)

	history, err := store.GetExecutionsByScenario(context.Background(), first.ScenarioID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestStartAsyncValidatesRequest(t *testing.T) {
	factory := &sessionFactory{evaluate: pageEvaluate(true)}
	manager, _ := newManager(t, scriptedLLM(), factory)

	_, err := manager.StartAsync(context.Background(), RunRequest{})
	require.Error(t, err)
	assert.True(t, storage.IsValidationError(err))
}

func TestStartAsyncUnknownPlanFailsSynchronously(t *testing.T) {
	factory := &sessionFactory{evaluate: pageEvaluate(true)}
	manager, _ := newManager(t, scriptedLLM(), factory)

	_, err := manager.StartAsync(context.Background(), RunRequest{PlanID: "plan_missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBrowserFailureMarksExecutionFailed(t *testing.T) {
	factory := &sessionFactory{err: errors.New("browser pool exhausted")}
	manager, store := newManager(t, scriptedLLM(), factory)

	exec, err := manager.StartAsync(context.Background(), RunRequest{Scenario: "Open example.com and check the heading"})
	require.NoError(t, err)

	final := waitTerminal(t, store, exec.TestID)
	assert.Equal(t, models.ExecutionStatusFailed, final.Status)
	assert.Contains(t, final.Error, "browser session failed")
}

func TestStopDrainsActiveRuns(t *testing.T) {
	factory := &sessionFactory{evaluate: pageEvaluate(true)}
	manager, store := newManager(t, scriptedLLM(), factory)

	plan := &models.Plan{
		ID:         storage.NewPlanID(),
		ScenarioID: storage.GenerateScenarioID("drain scenario"),
		Scenario:   "drain scenario",
		Name:       "drain",
		Phase:      models.PlanPhaseRefined,
		Steps: []models.Step{
			{ID: "step-1", Description: "wait a long time",
				Action: models.Action{Name: "wait", Arguments: map[string]any{"seconds": 30.0}}},
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SavePlan(context.Background(), plan))

	exec, err := manager.StartAsync(context.Background(), RunRequest{PlanID: plan.ID})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return manager.ActiveCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	manager.Stop(5 * time.Second)
	assert.Equal(t, 0, manager.ActiveCount())

	final, err := store.GetExecution(context.Background(), exec.TestID)
	require.NoError(t, err)
	assert.True(t, final.Terminal())
}
