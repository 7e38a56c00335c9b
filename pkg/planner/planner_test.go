package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyager-qa/voyager/pkg/llm"
	"github.com/voyager-qa/voyager/pkg/models"
	"github.com/voyager-qa/voyager/pkg/storage"
)

const planJSON = `{
  "steps": [
    {"id": "step-1", "description": "open example.com",
     "action": {"name": "navigate", "arguments": {"url": "https://example.com"}}},
    {"description": "check the heading",
     "action": {"name": "verify_heading_contains", "arguments": {"value": "Example Domain"}}}
  ]
}`

func newPlanner(stub *llm.StubProvider, store storage.Store) *Planner {
	return NewPlanner(&llm.Client{Provider: stub}, store)
}

func TestCreatePlan(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := &llm.StubProvider{Queue: []string{planJSON, "Example heading check"}}
	p := newPlanner(stub, store)

	plan, err := p.CreatePlan(context.Background(), "Navigate to example.com and verify the heading contains 'Example Domain'")
	require.NoError(t, err)

	assert.Equal(t, models.PlanPhaseInitial, plan.Phase)
	assert.Equal(t, "Example heading check", plan.Name)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "step-1", plan.Steps[0].ID)
	assert.Equal(t, "step-2", plan.Steps[1].ID, "missing ids are filled in order")
	assert.Equal(t, storage.GenerateScenarioID("Navigate to example.com and verify the heading contains 'Example Domain'"), plan.ScenarioID)

	// the plan is persisted
	saved, err := store.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.ID, saved.ID)
}

func TestCreatePlanEmptyScenario(t *testing.T) {
	p := newPlanner(&llm.StubProvider{}, storage.NewMemoryStore())

	_, err := p.CreatePlan(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, storage.IsValidationError(err))
}

func TestCreatePlanMalformedResponseIsFatal(t *testing.T) {
	stub := &llm.StubProvider{Queue: []string{"I cannot produce a plan, sorry."}}
	p := newPlanner(stub, storage.NewMemoryStore())

	_, err := p.CreatePlan(context.Background(), "do something")
	require.Error(t, err)
	assert.True(t, llm.IsProviderError(err))
}

func TestCreatePlanNoSteps(t *testing.T) {
	stub := &llm.StubProvider{Queue: []string{`{"steps": []}`}}
	p := newPlanner(stub, storage.NewMemoryStore())

	_, err := p.CreatePlan(context.Background(), "do something")
	require.Error(t, err)
	assert.True(t, llm.IsProviderError(err))
}

func TestPlanNameFallsBackToScenarioPrefix(t *testing.T) {
	stub := &llm.StubProvider{Queue: []string{planJSON}} // naming call will fail
	p := newPlanner(stub, storage.NewMemoryStore())

	plan, err := p.CreatePlan(context.Background(),
		"Navigate to the shop, add a red bicycle to the basket, then check out as a guest")
	require.NoError(t, err)
	assert.Equal(t, "Navigate to the shop, add a red bicycle", plan.Name)
}
