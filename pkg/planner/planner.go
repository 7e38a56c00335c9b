// Package planner turns scenario text into executable plans and refines
// in-flight plans against the live DOM.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voyager-qa/voyager/pkg/llm"
	"github.com/voyager-qa/voyager/pkg/models"
	"github.com/voyager-qa/voyager/pkg/prompt"
	"github.com/voyager-qa/voyager/pkg/storage"
)

const maxPlanNameLength = 100

// Planner synthesizes the initial plan for a scenario
type Planner struct {
	provider llm.Provider
	models   llm.ModelSet
	store    storage.Store
	logger   *slog.Logger
}

// NewPlanner creates a planner persisting plans through the store
func NewPlanner(client *llm.Client, store storage.Store) *Planner {
	return &Planner{
		provider: client.Provider,
		models:   client.Models,
		store:    store,
		logger:   slog.Default().With("component", "planner"),
	}
}

// planResponse is the JSON shape the planner prompt requires
type planResponse struct {
	Steps []models.Step `json:"steps"`
}

// CreatePlan synthesizes, names, and persists an initial plan. Malformed
// LLM output is fatal; the caller surfaces it without retrying.
func (p *Planner) CreatePlan(ctx context.Context, scenario string) (*models.Plan, error) {
	scenario = strings.TrimSpace(scenario)
	if scenario == "" {
		return nil, storage.NewValidationError("scenario", "scenario text is required")
	}

	resp, err := p.provider.CreateChatCompletion(ctx, llm.Request{
		Model:          p.models.PlannerModel(),
		Messages:       prompt.PlannerMessages(scenario),
		Temperature:    0.2,
		ResponseFormat: &llm.ResponseFormat{Type: llm.ResponseFormatJSON},
	})
	if err != nil {
		return nil, fmt.Errorf("plan synthesis failed: %w", err)
	}

	var parsed planResponse
	if err := decodeResponse(resp.Content, &parsed); err != nil {
		return nil, llm.NewProviderError(p.provider.Name(), "plan response is not valid JSON", err)
	}
	if len(parsed.Steps) == 0 {
		return nil, llm.NewProviderError(p.provider.Name(), "plan response contains no steps", nil)
	}
	for i := range parsed.Steps {
		if parsed.Steps[i].ID == "" {
			parsed.Steps[i].ID = fmt.Sprintf("step-%d", i+1)
		}
		if parsed.Steps[i].Action.Name == "" {
			return nil, llm.NewProviderError(p.provider.Name(),
				fmt.Sprintf("plan step %s has no action", parsed.Steps[i].ID), nil)
		}
	}

	plan := &models.Plan{
		ID:         storage.NewPlanID(),
		ScenarioID: storage.GenerateScenarioID(scenario),
		Scenario:   scenario,
		Name:       p.planName(ctx, scenario),
		Phase:      models.PlanPhaseInitial,
		Steps:      parsed.Steps,
		CreatedAt:  time.Now().UTC(),
	}
	if err := p.store.SavePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("persisting plan: %w", err)
	}

	p.logger.Info("Plan created",
		"plan_id", plan.ID, "scenario_id", plan.ScenarioID, "steps", len(plan.Steps))
	return plan, nil
}

// planName asks for a short human-readable name, falling back to the
// scenario's first words when the call fails
func (p *Planner) planName(ctx context.Context, scenario string) string {
	resp, err := p.provider.CreateChatCompletion(ctx, llm.Request{
		Model:       p.models.PlannerModel(),
		Messages:    prompt.PlanNameMessages(scenario),
		Temperature: 0.1,
		MaxTokens:   50,
	})
	if err == nil {
		name := strings.TrimSpace(resp.Content)
		if name != "" {
			if len(name) > maxPlanNameLength {
				name = name[:maxPlanNameLength]
			}
			return name
		}
	} else {
		p.logger.Warn("Plan naming failed, using scenario prefix", "error", err)
	}

	words := strings.Fields(scenario)
	if len(words) > 8 {
		words = words[:8]
	}
	name := strings.Join(words, " ")
	if len(name) > maxPlanNameLength {
		name = name[:maxPlanNameLength]
	}
	return name
}

// decodeResponse parses a completion into out, tolerating code fences
func decodeResponse(content string, out any) error {
	return json.Unmarshal([]byte(llm.StripCodeFences(content)), out)
}
