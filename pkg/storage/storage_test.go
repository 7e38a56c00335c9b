package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyager-qa/voyager/pkg/models"
)

// runStoreTests exercises the Store contract. Both backends must pass the
// same suite.
func runStoreTests(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("execution lifecycle", func(t *testing.T) {
		exec, err := store.CreateExecution(ctx, "Navigate to example.com and verify the heading")
		require.NoError(t, err)
		assert.NotEmpty(t, exec.TestID)
		assert.Equal(t, GenerateScenarioID("Navigate to example.com and verify the heading"), exec.ScenarioID)
		assert.Equal(t, models.ExecutionStatusPending, exec.Status)
		assert.False(t, exec.CreatedAt.IsZero())

		got, err := store.GetExecution(ctx, exec.TestID)
		require.NoError(t, err)
		assert.Equal(t, exec.TestID, got.TestID)
		assert.Equal(t, exec.Scenario, got.Scenario)

		running := models.ExecutionStatusRunning
		currentStep := 1
		totalSteps := 3
		updated, err := store.UpdateExecution(ctx, exec.TestID, ExecutionUpdate{
			Status:      &running,
			CurrentStep: &currentStep,
			TotalSteps:  &totalSteps,
		})
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusRunning, updated.Status)
		assert.Equal(t, 1, updated.CurrentStep)
		assert.Equal(t, 3, updated.TotalSteps)
		assert.Equal(t, exec.CreatedAt.Unix(), updated.CreatedAt.Unix(), "createdAt is preserved on update")
	})

	t.Run("create rejects empty scenario", func(t *testing.T) {
		_, err := store.CreateExecution(ctx, "   ")
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("get unknown execution returns not found", func(t *testing.T) {
		_, err := store.GetExecution(ctx, "test-missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update unknown execution returns not found", func(t *testing.T) {
		status := models.ExecutionStatusRunning
		_, err := store.UpdateExecution(ctx, "test-missing", ExecutionUpdate{Status: &status})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("terminal executions are immutable", func(t *testing.T) {
		exec, err := store.CreateExecution(ctx, "terminal immutability scenario")
		require.NoError(t, err)

		completed := models.ExecutionStatusCompleted
		now := time.Now().UTC()
		_, err = store.UpdateExecution(ctx, exec.TestID, ExecutionUpdate{
			Status:      &completed,
			CompletedAt: &now,
		})
		require.NoError(t, err)

		failed := models.ExecutionStatusFailed
		_, err = store.UpdateExecution(ctx, exec.TestID, ExecutionUpdate{Status: &failed})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTerminalState)

		got, err := store.GetExecution(ctx, exec.TestID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusCompleted, got.Status)
	})

	t.Run("scenario index tracks executions", func(t *testing.T) {
		scenario := "scenario index tracking"
		scenarioID := GenerateScenarioID(scenario)

		first, err := store.CreateExecution(ctx, scenario)
		require.NoError(t, err)
		second, err := store.CreateExecution(ctx, scenario)
		require.NoError(t, err)
		assert.NotEqual(t, first.TestID, second.TestID)
		assert.Equal(t, first.ScenarioID, second.ScenarioID)

		execs, err := store.GetExecutionsByScenario(ctx, scenarioID)
		require.NoError(t, err)
		require.Len(t, execs, 2)
		// newest first
		assert.False(t, execs[0].CreatedAt.Before(execs[1].CreatedAt))

		latest, err := store.GetLatestExecutionByScenario(ctx, scenarioID)
		require.NoError(t, err)
		assert.Equal(t, second.TestID, latest.TestID)

		// deletion removes the index entry as well
		require.NoError(t, store.DeleteExecution(ctx, second.TestID))
		execs, err = store.GetExecutionsByScenario(ctx, scenarioID)
		require.NoError(t, err)
		require.Len(t, execs, 1)
		assert.Equal(t, first.TestID, execs[0].TestID)

		require.NoError(t, store.DeleteExecution(ctx, first.TestID))
		execs, err = store.GetExecutionsByScenario(ctx, scenarioID)
		require.NoError(t, err)
		assert.Empty(t, execs)

		_, err = store.GetLatestExecutionByScenario(ctx, scenarioID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete unknown execution returns not found", func(t *testing.T) {
		assert.ErrorIs(t, store.DeleteExecution(ctx, "test-missing"), ErrNotFound)
	})

	t.Run("plan round trip", func(t *testing.T) {
		plan := &models.Plan{
			ID:         NewPlanID(),
			ScenarioID: GenerateScenarioID("plan round trip"),
			Name:       "Round trip",
			Phase:      models.PlanPhaseInitial,
			Steps: []models.Step{
				{
					ID:          "step-1",
					Description: "Navigate to the home page",
					Action: models.Action{
						Name:      "navigate",
						Arguments: map[string]any{"url": "https://example.com"},
					},
				},
			},
		}
		require.NoError(t, store.SavePlan(ctx, plan))

		got, err := store.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, plan.ID, got.ID)
		assert.Equal(t, plan.ScenarioID, got.ScenarioID)
		assert.Equal(t, plan.Name, got.Name)
		require.Len(t, got.Steps, 1)
		assert.Equal(t, "navigate", got.Steps[0].Action.Name)
		assert.Equal(t, "https://example.com", got.Steps[0].Action.StringArg("url"))
		assert.False(t, got.CreatedAt.IsZero(), "createdAt is injected when missing")
	})

	t.Run("save plan preserves createdAt on upsert", func(t *testing.T) {
		plan := &models.Plan{
			ID:         NewPlanID(),
			ScenarioID: GenerateScenarioID("upsert preserves createdAt"),
			Name:       "v1",
			Phase:      models.PlanPhaseInitial,
		}
		require.NoError(t, store.SavePlan(ctx, plan))
		saved, err := store.GetPlan(ctx, plan.ID)
		require.NoError(t, err)

		plan.Name = "v2"
		plan.Phase = models.PlanPhaseRefined
		require.NoError(t, store.SavePlan(ctx, plan))

		got, err := store.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, "v2", got.Name)
		assert.Equal(t, models.PlanPhaseRefined, got.Phase)
		assert.Equal(t, saved.CreatedAt.Unix(), got.CreatedAt.Unix())
	})

	t.Run("save plan validates required fields", func(t *testing.T) {
		err := store.SavePlan(ctx, &models.Plan{ScenarioID: "scenario-x"})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))

		err = store.SavePlan(ctx, &models.Plan{ID: "plan-x"})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("update plan keeps identity fields", func(t *testing.T) {
		plan := &models.Plan{
			ID:         NewPlanID(),
			ScenarioID: GenerateScenarioID("update keeps identity"),
			Name:       "before",
			Phase:      models.PlanPhaseInitial,
			Steps:      []models.Step{{ID: "step-1", Action: models.Action{Name: "navigate"}}},
		}
		require.NoError(t, store.SavePlan(ctx, plan))
		saved, err := store.GetPlan(ctx, plan.ID)
		require.NoError(t, err)

		name := "after"
		phase := models.PlanPhaseRefined
		updated, err := store.UpdatePlan(ctx, plan.ID, PlanUpdate{
			Name:  &name,
			Phase: &phase,
			Steps: []models.Step{
				{ID: "step-1", Action: models.Action{Name: "navigate"}},
				{ID: "step-2", Action: models.Action{Name: "click"}},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, plan.ID, updated.ID)
		assert.Equal(t, plan.ScenarioID, updated.ScenarioID)
		assert.Equal(t, saved.CreatedAt.Unix(), updated.CreatedAt.Unix())
		assert.Equal(t, "after", updated.Name)
		assert.Len(t, updated.Steps, 2)
	})

	t.Run("update plan rejects shrinking refinement history", func(t *testing.T) {
		plan := &models.Plan{
			ID:         NewPlanID(),
			ScenarioID: GenerateScenarioID("append-only history"),
			Phase:      models.PlanPhaseInitial,
		}
		plan.AppendRefinement("step-1", "first", "proactive_refinement")
		plan.AppendRefinement("step-2", "second", "failure_refinement")
		require.NoError(t, store.SavePlan(ctx, plan))

		_, err := store.UpdatePlan(ctx, plan.ID, PlanUpdate{
			RefinementHistory: []models.RefinementRecord{{StepID: "step-1"}},
		})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("update unknown plan returns not found", func(t *testing.T) {
		name := "x"
		_, err := store.UpdatePlan(ctx, "plan-missing", PlanUpdate{Name: &name})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("plans by scenario", func(t *testing.T) {
		scenarioID := GenerateScenarioID("plans by scenario")
		planA := &models.Plan{ID: NewPlanID(), ScenarioID: scenarioID, Name: "A", Phase: models.PlanPhaseInitial}
		planB := &models.Plan{ID: NewPlanID(), ScenarioID: scenarioID, Name: "B", Phase: models.PlanPhaseInitial}
		require.NoError(t, store.SavePlan(ctx, planA))
		require.NoError(t, store.SavePlan(ctx, planB))

		plans, err := store.GetPlansByScenario(ctx, scenarioID)
		require.NoError(t, err)
		assert.Len(t, plans, 2)

		require.NoError(t, store.DeletePlan(ctx, planA.ID))
		plans, err = store.GetPlansByScenario(ctx, scenarioID)
		require.NoError(t, err)
		require.Len(t, plans, 1)
		assert.Equal(t, planB.ID, plans[0].ID)

		require.NoError(t, store.DeletePlan(ctx, planB.ID))
	})

	t.Run("config round trip", func(t *testing.T) {
		entry, err := store.SetConfig(ctx, "confidence.threshold.click", 0.5, "click threshold")
		require.NoError(t, err)
		assert.Equal(t, "confidence.threshold.click", entry.Key)

		got, err := store.GetConfig(ctx, "confidence.threshold.click")
		require.NoError(t, err)
		v, ok := got.FloatValue()
		require.True(t, ok)
		assert.InDelta(t, 0.5, v, 1e-9)
		assert.Equal(t, "click threshold", got.Description)

		// overwrite preserves createdAt and bumps updatedAt
		_, err = store.SetConfig(ctx, "confidence.threshold.click", 0.8, "click threshold")
		require.NoError(t, err)
		updated, err := store.GetConfig(ctx, "confidence.threshold.click")
		require.NoError(t, err)
		v, ok = updated.FloatValue()
		require.True(t, ok)
		assert.InDelta(t, 0.8, v, 1e-9)
		assert.Equal(t, got.CreatedAt.Unix(), updated.CreatedAt.Unix())
	})

	t.Run("config prefix listing and deletion", func(t *testing.T) {
		_, err := store.SetConfig(ctx, "confidence.threshold.type", 0.7, "")
		require.NoError(t, err)
		_, err = store.SetConfig(ctx, "feature.proactive", true, "")
		require.NoError(t, err)

		entries, err := store.GetAllConfig(ctx, "confidence.threshold.")
		require.NoError(t, err)
		for _, e := range entries {
			assert.Contains(t, e.Key, "confidence.threshold.")
		}
		assert.GreaterOrEqual(t, len(entries), 2)

		require.NoError(t, store.DeleteAllConfig(ctx, "confidence.threshold."))
		entries, err = store.GetAllConfig(ctx, "confidence.threshold.")
		require.NoError(t, err)
		assert.Empty(t, entries)

		// unrelated keys survive prefix deletion
		_, err = store.GetConfig(ctx, "feature.proactive")
		require.NoError(t, err)
		require.NoError(t, store.DeleteConfig(ctx, "feature.proactive"))
		_, err = store.GetConfig(ctx, "feature.proactive")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete unknown config returns not found", func(t *testing.T) {
		assert.ErrorIs(t, store.DeleteConfig(ctx, "missing.key"), ErrNotFound)
	})

	t.Run("delete all plans clears indices", func(t *testing.T) {
		scenarioID := GenerateScenarioID("delete all plans")
		require.NoError(t, store.SavePlan(ctx, &models.Plan{ID: NewPlanID(), ScenarioID: scenarioID, Phase: models.PlanPhaseInitial}))

		require.NoError(t, store.DeleteAllPlans(ctx))

		plans, err := store.ListPlans(ctx)
		require.NoError(t, err)
		assert.Empty(t, plans)

		plans, err = store.GetPlansByScenario(ctx, scenarioID)
		require.NoError(t, err)
		assert.Empty(t, plans)
	})

	t.Run("delete all executions clears indices", func(t *testing.T) {
		scenario := "delete all executions"
		_, err := store.CreateExecution(ctx, scenario)
		require.NoError(t, err)

		require.NoError(t, store.DeleteAllExecutions(ctx))

		execs, err := store.ListExecutions(ctx)
		require.NoError(t, err)
		assert.Empty(t, execs)

		execs, err = store.GetExecutionsByScenario(ctx, GenerateScenarioID(scenario))
		require.NoError(t, err)
		assert.Empty(t, execs)
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer func() { _ = store.Close() }()
	runStoreTests(t, store)
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	plan := &models.Plan{
		ID:         "plan-isolation",
		ScenarioID: "scenario-isolation",
		Phase:      models.PlanPhaseInitial,
		Steps: []models.Step{
			{ID: "step-1", Action: models.Action{Name: "click", Arguments: map[string]any{"selector": "#a"}}},
		},
	}
	require.NoError(t, store.SavePlan(ctx, plan))

	// mutations on returned copies must not bleed into the store
	got, err := store.GetPlan(ctx, "plan-isolation")
	require.NoError(t, err)
	got.Steps[0].Action.Arguments["selector"] = "#changed"

	again, err := store.GetPlan(ctx, "plan-isolation")
	require.NoError(t, err)
	assert.Equal(t, "#a", again.Steps[0].Action.StringArg("selector"))

	// same for the caller's plan after save
	plan.Steps[0].Action.Arguments["selector"] = "#caller"
	again, err = store.GetPlan(ctx, "plan-isolation")
	require.NoError(t, err)
	assert.Equal(t, "#a", again.Steps[0].Action.StringArg("selector"))
}

func TestNewStoreFactory(t *testing.T) {
	ctx := context.Background()

	store, err := New(ctx, Config{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = New(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = New(ctx, Config{Type: "mongodb"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage type")
}
