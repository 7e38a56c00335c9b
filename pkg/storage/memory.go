package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/voyager-qa/voyager/pkg/models"
)

// MemoryStore is the in-process Store implementation. Primary records live
// in maps keyed by id; scenario indices mirror every mutation under the
// same lock, so readers never observe a dangling index entry.
type MemoryStore struct {
	mu sync.RWMutex

	executions         map[string]*models.Execution
	executionsByScenID map[string][]string

	plans         map[string]*models.Plan
	plansByScenID map[string][]string

	configs map[string]*models.ConfigEntry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions:         make(map[string]*models.Execution),
		executionsByScenID: make(map[string][]string),
		plans:              make(map[string]*models.Plan),
		plansByScenID:      make(map[string][]string),
		configs:            make(map[string]*models.ConfigEntry),
	}
}

// CreateExecution creates a pending execution for the scenario text
func (s *MemoryStore) CreateExecution(ctx context.Context, scenario string) (*models.Execution, error) {
	if strings.TrimSpace(scenario) == "" {
		return nil, NewValidationError("scenario", "scenario text is required")
	}

	now := time.Now().UTC()
	exec := &models.Execution{
		TestID:     NewTestID(),
		ScenarioID: GenerateScenarioID(scenario),
		Scenario:   scenario,
		Status:     models.ExecutionStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[exec.TestID] = exec
	s.executionsByScenID[exec.ScenarioID] = append(s.executionsByScenID[exec.ScenarioID], exec.TestID)
	return exec.Clone(), nil
}

// GetExecution returns the execution with the given test id
func (s *MemoryStore) GetExecution(ctx context.Context, testID string) (*models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[testID]
	if !ok {
		return nil, ErrNotFound
	}
	return exec.Clone(), nil
}

// GetExecutionsByScenario returns the scenario's executions newest first
func (s *MemoryStore) GetExecutionsByScenario(ctx context.Context, scenarioID string) ([]*models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.executionsByScenID[scenarioID]
	out := make([]*models.Execution, 0, len(ids))
	// walk newest-appended first so equal timestamps keep creation order
	for i := len(ids) - 1; i >= 0; i-- {
		if exec, ok := s.executions[ids[i]]; ok {
			out = append(out, exec.Clone())
		}
	}
	sortExecutionsNewestFirst(out)
	return out, nil
}

// GetLatestExecutionByScenario returns the most recently created execution
func (s *MemoryStore) GetLatestExecutionByScenario(ctx context.Context, scenarioID string) (*models.Execution, error) {
	execs, err := s.GetExecutionsByScenario(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	if len(execs) == 0 {
		return nil, ErrNotFound
	}
	return execs[0], nil
}

// UpdateExecution applies an allow-listed patch. It fails for unknown test
// ids and for executions that already reached a terminal state.
func (s *MemoryStore) UpdateExecution(ctx context.Context, testID string, update ExecutionUpdate) (*models.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.executions[testID]
	if !ok {
		return nil, ErrNotFound
	}
	updated := exec.Clone()
	if err := applyExecutionUpdate(updated, update); err != nil {
		return nil, err
	}
	s.executions[testID] = updated
	return updated.Clone(), nil
}

// DeleteExecution removes the execution and its scenario index entry
func (s *MemoryStore) DeleteExecution(ctx context.Context, testID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.executions[testID]
	if !ok {
		return ErrNotFound
	}
	delete(s.executions, testID)
	s.executionsByScenID[exec.ScenarioID] = removeID(s.executionsByScenID[exec.ScenarioID], testID)
	if len(s.executionsByScenID[exec.ScenarioID]) == 0 {
		delete(s.executionsByScenID, exec.ScenarioID)
	}
	return nil
}

// ListExecutions returns all executions newest first
func (s *MemoryStore) ListExecutions(ctx context.Context) ([]*models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Execution, 0, len(s.executions))
	for _, exec := range s.executions {
		out = append(out, exec.Clone())
	}
	sortExecutionsNewestFirst(out)
	return out, nil
}

// DeleteAllExecutions removes every execution and the whole scenario index
func (s *MemoryStore) DeleteAllExecutions(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions = make(map[string]*models.Execution)
	s.executionsByScenID = make(map[string][]string)
	return nil
}

// SavePlan inserts or replaces a plan. CreatedAt is injected when missing
// and preserved when the plan already exists.
func (s *MemoryStore) SavePlan(ctx context.Context, plan *models.Plan) error {
	if err := validatePlan(plan); err != nil {
		return err
	}

	stored := plan.Clone()
	if stored.Phase == "" {
		stored.Phase = models.PlanPhaseInitial
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.plans[stored.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
		if existing.ScenarioID != stored.ScenarioID {
			return NewValidationError("scenarioId", "scenario id is immutable")
		}
	} else {
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now().UTC()
		}
		s.plansByScenID[stored.ScenarioID] = append(s.plansByScenID[stored.ScenarioID], stored.ID)
	}
	s.plans[stored.ID] = stored
	return nil
}

// GetPlan returns the plan with the given id
func (s *MemoryStore) GetPlan(ctx context.Context, planID string) (*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[planID]
	if !ok {
		return nil, ErrNotFound
	}
	return plan.Clone(), nil
}

// ListPlans returns all plans newest first
func (s *MemoryStore) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Plan, 0, len(s.plans))
	for _, plan := range s.plans {
		out = append(out, plan.Clone())
	}
	sortPlansNewestFirst(out)
	return out, nil
}

// GetPlansByScenario returns the scenario's plans newest first
func (s *MemoryStore) GetPlansByScenario(ctx context.Context, scenarioID string) ([]*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.plansByScenID[scenarioID]
	out := make([]*models.Plan, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if plan, ok := s.plans[ids[i]]; ok {
			out = append(out, plan.Clone())
		}
	}
	sortPlansNewestFirst(out)
	return out, nil
}

// UpdatePlan applies an allow-listed patch; id, scenarioId, and createdAt
// cannot change.
func (s *MemoryStore) UpdatePlan(ctx context.Context, planID string, update PlanUpdate) (*models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.plans[planID]
	if !ok {
		return nil, ErrNotFound
	}
	updated := plan.Clone()
	if err := applyPlanUpdate(updated, update); err != nil {
		return nil, err
	}
	s.plans[planID] = updated
	return updated.Clone(), nil
}

// DeletePlan removes the plan and its scenario index entry
func (s *MemoryStore) DeletePlan(ctx context.Context, planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.plans[planID]
	if !ok {
		return ErrNotFound
	}
	delete(s.plans, planID)
	s.plansByScenID[plan.ScenarioID] = removeID(s.plansByScenID[plan.ScenarioID], planID)
	if len(s.plansByScenID[plan.ScenarioID]) == 0 {
		delete(s.plansByScenID, plan.ScenarioID)
	}
	return nil
}

// DeleteAllPlans removes every plan and the whole scenario index
func (s *MemoryStore) DeleteAllPlans(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = make(map[string]*models.Plan)
	s.plansByScenID = make(map[string][]string)
	return nil
}

// GetConfig returns the configuration entry for the key
func (s *MemoryStore) GetConfig(ctx context.Context, key string) (*models.ConfigEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.configs[key]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

// SetConfig inserts or replaces a configuration entry, preserving CreatedAt
// on overwrite
func (s *MemoryStore) SetConfig(ctx context.Context, key string, value any, description string) (*models.ConfigEntry, error) {
	if key == "" {
		return nil, NewValidationError("key", "config key is required")
	}

	now := time.Now().UTC()
	entry := &models.ConfigEntry{
		Key:         key,
		Value:       value,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.configs[key]; ok {
		entry.CreatedAt = existing.CreatedAt
	}
	s.configs[key] = entry
	copied := *entry
	return &copied, nil
}

// GetAllConfig returns entries whose key starts with prefix, sorted by key.
// An empty prefix returns everything.
func (s *MemoryStore) GetAllConfig(ctx context.Context, prefix string) ([]*models.ConfigEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ConfigEntry, 0, len(s.configs))
	for key, entry := range s.configs {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		copied := *entry
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// DeleteConfig removes the entry for the key
func (s *MemoryStore) DeleteConfig(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[key]; !ok {
		return ErrNotFound
	}
	delete(s.configs, key)
	return nil
}

// DeleteAllConfig removes entries matching prefix; empty prefix clears all
func (s *MemoryStore) DeleteAllConfig(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prefix == "" {
		s.configs = make(map[string]*models.ConfigEntry)
		return nil
	}
	for key := range s.configs {
		if strings.HasPrefix(key, prefix) {
			delete(s.configs, key)
		}
	}
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func sortExecutionsNewestFirst(execs []*models.Execution) {
	sort.SliceStable(execs, func(i, j int) bool {
		return execs[i].CreatedAt.After(execs[j].CreatedAt)
	})
}

func sortPlansNewestFirst(plans []*models.Plan) {
	sort.SliceStable(plans, func(i, j int) bool {
		return plans[i].CreatedAt.After(plans[j].CreatedAt)
	})
}

var _ Store = (*MemoryStore)(nil)
