package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voyager-qa/voyager/pkg/models"
)

// Redis key layout. Primary records hold JSON; set keys hold id memberships
// and are rebuilt into lists by iterating members.
const (
	executionKeyPrefix       = "execution:"
	planKeyPrefix            = "plan:"
	configKeyPrefix          = "config:"
	scenarioExecutionsPrefix = "scenario:executions:"
	scenarioPlansPrefix      = "scenario:plans:"
	executionsAllKey         = "executions:all"
	plansAllKey              = "plans:all"
	configsAllKey            = "configs:all"

	redisConnectTimeout = 5 * time.Second
)

// RedisStore is the remote key-value Store implementation
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection. The URL is
// parsed as redis://...; a bare host:port is accepted as a fallback.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	if url == "" {
		url = "redis://localhost:6379"
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		opt = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed at %s: %w", opt.Addr, err)
	}

	return &RedisStore{
		client: client,
		logger: slog.Default().With("component", "redis-store"),
	}, nil
}

// CreateExecution creates a pending execution for the scenario text
func (s *RedisStore) CreateExecution(ctx context.Context, scenario string) (*models.Execution, error) {
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

	data, err := json.Marshal(exec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution: %w", err)
	}

	// record first, then indices, so a reader never follows a dangling id
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, executionKeyPrefix+exec.TestID, data, 0)
		pipe.SAdd(ctx, scenarioExecutionsPrefix+exec.ScenarioID, exec.TestID)
		pipe.SAdd(ctx, executionsAllKey, exec.TestID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis create execution failed: %w", err)
	}
	return exec, nil
}

// GetExecution returns the execution with the given test id
func (s *RedisStore) GetExecution(ctx context.Context, testID string) (*models.Execution, error) {
	data, err := s.client.Get(ctx, executionKeyPrefix+testID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get execution failed: %w", err)
	}
	var exec models.Execution
	if err := json.Unmarshal(data, &exec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", testID, err)
	}
	return &exec, nil
}

// GetExecutionsByScenario returns the scenario's executions newest first
func (s *RedisStore) GetExecutionsByScenario(ctx context.Context, scenarioID string) ([]*models.Execution, error) {
	indexKey := scenarioExecutionsPrefix + scenarioID
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis scenario index read failed: %w", err)
	}

	out := make([]*models.Execution, 0, len(ids))
	for _, id := range ids {
		exec, err := s.GetExecution(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// stale index member, clean it up
			s.logger.Warn("Removing stale execution index member", "scenario_id", scenarioID, "test_id", id)
			_ = s.client.SRem(ctx, indexKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	sortExecutionsNewestFirst(out)
	return out, nil
}

// GetLatestExecutionByScenario returns the most recently created execution
func (s *RedisStore) GetLatestExecutionByScenario(ctx context.Context, scenarioID string) (*models.Execution, error) {
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
func (s *RedisStore) UpdateExecution(ctx context.Context, testID string, update ExecutionUpdate) (*models.Execution, error) {
	exec, err := s.GetExecution(ctx, testID)
	if err != nil {
		return nil, err
	}
	if err := applyExecutionUpdate(exec, update); err != nil {
		return nil, err
	}

	data, err := json.Marshal(exec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution: %w", err)
	}
	if err := s.client.Set(ctx, executionKeyPrefix+testID, data, 0).Err(); err != nil {
		return nil, fmt.Errorf("redis update execution failed: %w", err)
	}
	return exec, nil
}

// DeleteExecution removes the execution and its index memberships
func (s *RedisStore) DeleteExecution(ctx context.Context, testID string) error {
	exec, err := s.GetExecution(ctx, testID)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, executionKeyPrefix+testID)
		pipe.SRem(ctx, scenarioExecutionsPrefix+exec.ScenarioID, testID)
		pipe.SRem(ctx, executionsAllKey, testID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete execution failed: %w", err)
	}
	return nil
}

// ListExecutions returns all executions newest first
func (s *RedisStore) ListExecutions(ctx context.Context) ([]*models.Execution, error) {
	ids, err := s.client.SMembers(ctx, executionsAllKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis executions index read failed: %w", err)
	}

	out := make([]*models.Execution, 0, len(ids))
	for _, id := range ids {
		exec, err := s.GetExecution(ctx, id)
		if errors.Is(err, ErrNotFound) {
			_ = s.client.SRem(ctx, executionsAllKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	sortExecutionsNewestFirst(out)
	return out, nil
}

// DeleteAllExecutions removes every execution record and all execution
// index keys
func (s *RedisStore) DeleteAllExecutions(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, executionsAllKey).Result()
	if err != nil {
		return fmt.Errorf("redis executions index read failed: %w", err)
	}

	keys := []string{executionsAllKey}
	scenarioSets := make(map[string]struct{})
	for _, id := range ids {
		keys = append(keys, executionKeyPrefix+id)
		if exec, err := s.GetExecution(ctx, id); err == nil {
			scenarioSets[scenarioExecutionsPrefix+exec.ScenarioID] = struct{}{}
		}
	}
	for key := range scenarioSets {
		keys = append(keys, key)
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete all executions failed: %w", err)
	}
	return nil
}

// SavePlan inserts or replaces a plan. CreatedAt is injected when missing
// and preserved when the plan already exists.
func (s *RedisStore) SavePlan(ctx context.Context, plan *models.Plan) error {
	if err := validatePlan(plan); err != nil {
		return err
	}

	stored := plan.Clone()
	if stored.Phase == "" {
		stored.Phase = models.PlanPhaseInitial
	}

	existing, err := s.GetPlan(ctx, stored.ID)
	switch {
	case err == nil:
		stored.CreatedAt = existing.CreatedAt
		if existing.ScenarioID != stored.ScenarioID {
			return NewValidationError("scenarioId", "scenario id is immutable")
		}
	case errors.Is(err, ErrNotFound):
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now().UTC()
		}
	default:
		return err
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, planKeyPrefix+stored.ID, data, 0)
		pipe.SAdd(ctx, scenarioPlansPrefix+stored.ScenarioID, stored.ID)
		pipe.SAdd(ctx, plansAllKey, stored.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save plan failed: %w", err)
	}
	return nil
}

// GetPlan returns the plan with the given id
func (s *RedisStore) GetPlan(ctx context.Context, planID string) (*models.Plan, error) {
	data, err := s.client.Get(ctx, planKeyPrefix+planID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get plan failed: %w", err)
	}
	var plan models.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan %s: %w", planID, err)
	}
	return &plan, nil
}

// ListPlans returns all plans newest first
func (s *RedisStore) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	ids, err := s.client.SMembers(ctx, plansAllKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis plans index read failed: %w", err)
	}

	out := make([]*models.Plan, 0, len(ids))
	for _, id := range ids {
		plan, err := s.GetPlan(ctx, id)
		if errors.Is(err, ErrNotFound) {
			_ = s.client.SRem(ctx, plansAllKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, plan)
	}
	sortPlansNewestFirst(out)
	return out, nil
}

// GetPlansByScenario returns the scenario's plans newest first
func (s *RedisStore) GetPlansByScenario(ctx context.Context, scenarioID string) ([]*models.Plan, error) {
	indexKey := scenarioPlansPrefix + scenarioID
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis scenario plans index read failed: %w", err)
	}

	out := make([]*models.Plan, 0, len(ids))
	for _, id := range ids {
		plan, err := s.GetPlan(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("Removing stale plan index member", "scenario_id", scenarioID, "plan_id", id)
			_ = s.client.SRem(ctx, indexKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, plan)
	}
	sortPlansNewestFirst(out)
	return out, nil
}

// UpdatePlan applies an allow-listed patch; id, scenarioId, and createdAt
// cannot change.
func (s *RedisStore) UpdatePlan(ctx context.Context, planID string, update PlanUpdate) (*models.Plan, error) {
	plan, err := s.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if err := applyPlanUpdate(plan, update); err != nil {
		return nil, err
	}

	data, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan: %w", err)
	}
	if err := s.client.Set(ctx, planKeyPrefix+planID, data, 0).Err(); err != nil {
		return nil, fmt.Errorf("redis update plan failed: %w", err)
	}
	return plan, nil
}

// DeletePlan removes the plan and its index memberships
func (s *RedisStore) DeletePlan(ctx context.Context, planID string) error {
	plan, err := s.GetPlan(ctx, planID)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, planKeyPrefix+planID)
		pipe.SRem(ctx, scenarioPlansPrefix+plan.ScenarioID, planID)
		pipe.SRem(ctx, plansAllKey, planID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete plan failed: %w", err)
	}
	return nil
}

// DeleteAllPlans removes every plan record and all plan index keys
func (s *RedisStore) DeleteAllPlans(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, plansAllKey).Result()
	if err != nil {
		return fmt.Errorf("redis plans index read failed: %w", err)
	}

	keys := []string{plansAllKey}
	scenarioSets := make(map[string]struct{})
	for _, id := range ids {
		keys = append(keys, planKeyPrefix+id)
		if plan, err := s.GetPlan(ctx, id); err == nil {
			scenarioSets[scenarioPlansPrefix+plan.ScenarioID] = struct{}{}
		}
	}
	for key := range scenarioSets {
		keys = append(keys, key)
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete all plans failed: %w", err)
	}
	return nil
}

// GetConfig returns the configuration entry for the key
func (s *RedisStore) GetConfig(ctx context.Context, key string) (*models.ConfigEntry, error) {
	data, err := s.client.Get(ctx, configKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get config failed: %w", err)
	}
	var entry models.ConfigEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config %s: %w", key, err)
	}
	return &entry, nil
}

// SetConfig inserts or replaces a configuration entry, preserving CreatedAt
// on overwrite
func (s *RedisStore) SetConfig(ctx context.Context, key string, value any, description string) (*models.ConfigEntry, error) {
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
	if existing, err := s.GetConfig(ctx, key); err == nil {
		entry.CreatedAt = existing.CreatedAt
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, configKeyPrefix+key, data, 0)
		pipe.SAdd(ctx, configsAllKey, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis set config failed: %w", err)
	}
	return entry, nil
}

// GetAllConfig returns entries whose key starts with prefix, sorted by key
func (s *RedisStore) GetAllConfig(ctx context.Context, prefix string) ([]*models.ConfigEntry, error) {
	keys, err := s.client.SMembers(ctx, configsAllKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis configs index read failed: %w", err)
	}

	out := make([]*models.ConfigEntry, 0, len(keys))
	for _, key := range keys {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		entry, err := s.GetConfig(ctx, key)
		if errors.Is(err, ErrNotFound) {
			_ = s.client.SRem(ctx, configsAllKey, key).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// DeleteConfig removes the entry for the key
func (s *RedisStore) DeleteConfig(ctx context.Context, key string) error {
	if _, err := s.GetConfig(ctx, key); err != nil {
		return err
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, configKeyPrefix+key)
		pipe.SRem(ctx, configsAllKey, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete config failed: %w", err)
	}
	return nil
}

// DeleteAllConfig removes entries matching prefix; empty prefix clears all
func (s *RedisStore) DeleteAllConfig(ctx context.Context, prefix string) error {
	keys, err := s.client.SMembers(ctx, configsAllKey).Result()
	if err != nil {
		return fmt.Errorf("redis configs index read failed: %w", err)
	}

	del := make([]string, 0, len(keys))
	members := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		del = append(del, configKeyPrefix+key)
		members = append(members, key)
	}
	if len(del) == 0 {
		return nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, del...)
		pipe.SRem(ctx, configsAllKey, members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete all config failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
