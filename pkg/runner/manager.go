// Package runner owns execution lifecycles: it creates execution records,
// runs one orchestrator per test id on a background goroutine, streams
// progress into storage, and supports cancellation and graceful drain.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voyager-qa/voyager/pkg/browser"
	"github.com/voyager-qa/voyager/pkg/discovery"
	"github.com/voyager-qa/voyager/pkg/models"
	"github.com/voyager-qa/voyager/pkg/orchestrator"
	"github.com/voyager-qa/voyager/pkg/planner"
	"github.com/voyager-qa/voyager/pkg/refinement"
	"github.com/voyager-qa/voyager/pkg/storage"
	"github.com/voyager-qa/voyager/pkg/thresholds"
	"github.com/voyager-qa/voyager/pkg/verifier"
)

// Deps bundles everything a run needs. Browser creates one fresh session
// per run; the other collaborators are shared.
type Deps struct {
	Store      storage.Store
	Planner    *planner.Planner
	Adaptive   *planner.AdaptivePlanner
	Discovery  *discovery.Service
	Verifier   *verifier.Verifier
	Engine     *refinement.Engine
	Thresholds *thresholds.Service
	Browser    browser.Factory
}

// Options tune every run started by a manager. A zero MaxRetries keeps the
// orchestrator default.
type Options struct {
	FailFast            bool
	ProactiveRefinement bool
	CaptureScreenshots  bool
	MaxRetries          int
}

// DefaultOptions enables fail-fast, proactive refinement, and screenshots
func DefaultOptions() Options {
	return Options{FailFast: true, ProactiveRefinement: true, CaptureScreenshots: true, MaxRetries: 2}
}

// RunRequest describes one run. Exactly one of Scenario or PlanID is
// required; FailFast overrides the manager default when set.
type RunRequest struct {
	Scenario string
	PlanID   string
	FailFast *bool
}

// Manager starts, tracks, and cancels executions. One orchestrator runs
// per test id; the registry maps test ids to their cancel functions.
type Manager struct {
	deps   Deps
	opts   Options
	logger *slog.Logger

	mu     sync.RWMutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager
func NewManager(deps Deps, opts Options) *Manager {
	return &Manager{
		deps:   deps,
		opts:   opts,
		logger: slog.Default().With("component", "run-manager"),
		active: make(map[string]context.CancelFunc),
	}
}

// StartAsync creates a pending execution and runs it in the background.
// The run's lifetime is detached from the caller's context; use Cancel to
// stop it.
func (m *Manager) StartAsync(ctx context.Context, req RunRequest) (*models.Execution, error) {
	exec, plan, err := m.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.register(exec.TestID, cancel)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.unregister(exec.TestID)
		defer cancel()
		m.run(runCtx, exec.TestID, req, plan)
	}()

	m.logger.Info("Execution started",
		"test_id", exec.TestID, "scenario_id", exec.ScenarioID)
	return exec, nil
}

// ExecuteSync runs to completion on the caller's goroutine and returns the
// report. The caller's context cancels the run at the next step boundary.
func (m *Manager) ExecuteSync(ctx context.Context, req RunRequest) (*models.Report, error) {
	exec, plan, err := m.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.register(exec.TestID, cancel)
	m.wg.Add(1)
	defer m.wg.Done()
	defer m.unregister(exec.TestID)
	defer cancel()

	return m.run(runCtx, exec.TestID, req, plan), nil
}

// Cancel stops the run for a test id at its next step boundary. Returns
// false when no run with that id is active.
func (m *Manager) Cancel(testID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if cancel, ok := m.active[testID]; ok {
		cancel()
		return true
	}
	return false
}

// ActiveCount returns how many runs are in flight
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Stop cancels every active run and waits up to timeout for them to reach
// a terminal state
func (m *Manager) Stop(timeout time.Duration) {
	m.mu.RLock()
	count := len(m.active)
	for _, cancel := range m.active {
		cancel()
	}
	m.mu.RUnlock()
	if count > 0 {
		m.logger.Info("Draining active executions", "count", count)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("Run manager stopped")
	case <-time.After(timeout):
		m.logger.Warn("Run manager drain timed out", "timeout", timeout)
	}
}

// prepare validates the request and creates the pending execution record.
// For plan-based runs the plan is resolved here so request errors surface
// synchronously.
func (m *Manager) prepare(ctx context.Context, req RunRequest) (*models.Execution, *models.Plan, error) {
	if req.Scenario == "" && req.PlanID == "" {
		return nil, nil, storage.NewValidationError("scenario", "scenario or planId is required")
	}

	var plan *models.Plan
	scenario := req.Scenario
	if req.PlanID != "" {
		var err error
		plan, err = m.deps.Store.GetPlan(ctx, req.PlanID)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving plan %s: %w", req.PlanID, err)
		}
		if scenario == "" {
			scenario = plan.Scenario
		}
		if scenario == "" {
			scenario = plan.Name
		}
	}

	exec, err := m.deps.Store.CreateExecution(ctx, scenario)
	if err != nil {
		return nil, nil, err
	}
	return exec, plan, nil
}

// run drives one execution to its terminal state and returns the report.
// Terminal writes use a background context so a cancelled run still lands
// in storage.
func (m *Manager) run(ctx context.Context, testID string, req RunRequest, plan *models.Plan) *models.Report {
	if plan == nil {
		created, err := m.deps.Planner.CreatePlan(ctx, req.Scenario)
		if err != nil {
			m.logger.Error("Plan synthesis failed", "test_id", testID, "error", err)
			m.finish(testID, nil, fmt.Sprintf("plan synthesis failed: %v", err))
			return failedReport(testID, "", fmt.Sprintf("plan synthesis failed: %v", err))
		}
		plan = created
	}

	running := models.ExecutionStatusRunning
	totalSteps := len(plan.Steps)
	if _, err := m.deps.Store.UpdateExecution(ctx, testID, storage.ExecutionUpdate{
		Status:     &running,
		PlanID:     &plan.ID,
		TotalSteps: &totalSteps,
	}); err != nil {
		m.logger.Warn("Failed to mark execution running", "test_id", testID, "error", err)
	}

	session, err := m.deps.Browser(ctx)
	if err != nil {
		m.logger.Error("Browser session creation failed", "test_id", testID, "error", err)
		reason := fmt.Sprintf("browser session failed: %v", err)
		m.finish(testID, nil, reason)
		return failedReport(testID, plan.ScenarioID, reason)
	}

	executor := browser.NewExecutor(session)
	executor.CaptureScreenshots = m.opts.CaptureScreenshots

	orch := orchestrator.New(orchestrator.Deps{
		Executor:   executor,
		Discovery:  m.deps.Discovery,
		Adaptive:   m.deps.Adaptive,
		Verifier:   m.deps.Verifier,
		Engine:     m.deps.Engine,
		Thresholds: m.deps.Thresholds,
	})
	orch.FailFast = m.opts.FailFast
	if req.FailFast != nil {
		orch.FailFast = *req.FailFast
	}
	orch.ProactiveRefinement = m.opts.ProactiveRefinement
	if m.opts.MaxRetries > 0 {
		orch.MaxRetries = m.opts.MaxRetries
	}
	orch.OnProgress = func(currentStep, total int, results []models.ExecutionResult) {
		if _, err := m.deps.Store.UpdateExecution(ctx, testID, storage.ExecutionUpdate{
			CurrentStep: &currentStep,
			TotalSteps:  &total,
			Results:     results,
		}); err != nil {
			m.logger.Warn("Progress update failed", "test_id", testID, "error", err)
		}
	}

	report := orch.Run(ctx, plan, testID)
	m.finish(testID, report, report.Summary.Reason)
	return report
}

// finish writes the terminal state. A nil report means the run never
// produced one (setup failure).
func (m *Manager) finish(testID string, report *models.Report, reason string) {
	ctx := context.Background()
	now := time.Now().UTC()

	status := models.ExecutionStatusCompleted
	update := storage.ExecutionUpdate{CompletedAt: &now}
	if report != nil {
		update.ReportData = report
		update.Results = report.Results
		if !report.Summary.Success {
			status = models.ExecutionStatusFailed
		}
	} else {
		status = models.ExecutionStatusFailed
	}
	if status == models.ExecutionStatusFailed && reason != "" {
		update.Error = &reason
	}
	update.Status = &status

	if _, err := m.deps.Store.UpdateExecution(ctx, testID, update); err != nil {
		m.logger.Error("Failed to write terminal execution state",
			"test_id", testID, "status", status, "error", err)
		return
	}
	m.logger.Info("Execution finished", "test_id", testID, "status", status, "reason", reason)
}

func (m *Manager) register(testID string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[testID] = cancel
}

func (m *Manager) unregister(testID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, testID)
}

// failedReport builds the minimal report for runs that died before the
// orchestrator produced one
func failedReport(testID, scenarioID, reason string) *models.Report {
	now := time.Now().UTC()
	return &models.Report{
		TestID:     testID,
		ScenarioID: scenarioID,
		Summary: models.ReportSummary{
			StartTime: now,
			EndTime:   now,
			Success:   false,
			Reason:    reason,
		},
	}
}
