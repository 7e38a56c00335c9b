// Package thresholds maintains per-action minimum confidence values with
// persisted overrides.
package thresholds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voyager-qa/voyager/pkg/storage"
)

// ConfigKeyPrefix is the dot-notation prefix for persisted threshold entries
const ConfigKeyPrefix = "confidence.threshold."

// Action types with their own threshold. Everything else resolves to "default".
const (
	ActionClick   = "click"
	ActionType    = "type"
	ActionHover   = "hover"
	ActionVerify  = "verify"
	ActionDefault = "default"
)

// baseDefaults are the built-in thresholds, overridable via
// CONFIDENCE_THRESHOLD_<UPPER> environment configuration at construction.
var baseDefaults = map[string]float64{
	ActionClick:   0.5,
	ActionType:    0.7,
	ActionHover:   0.7,
	ActionVerify:  0.7,
	ActionDefault: 0.6,
}

// IsValidAction reports whether the action type has its own threshold slot
func IsValidAction(action string) bool {
	_, ok := baseDefaults[strings.ToLower(action)]
	return ok
}

// Service resolves confidence thresholds. It reads through storage on every
// call and caches only defaults, so runtime configuration changes are picked
// up immediately.
type Service struct {
	store    storage.Store
	logger   *slog.Logger
	defaults map[string]float64
}

// NewService creates the service and seeds any missing threshold entries
// into storage. Pre-existing stored values are never overwritten. The
// overrides map (action -> value) adjusts the built-in defaults, typically
// from CONFIDENCE_THRESHOLD_* environment keys.
func NewService(ctx context.Context, store storage.Store, overrides map[string]float64) *Service {
	defaults := make(map[string]float64, len(baseDefaults))
	for action, value := range baseDefaults {
		defaults[action] = value
	}
	for action, value := range overrides {
		action = strings.ToLower(action)
		if _, ok := defaults[action]; ok && value >= 0 && value <= 1 {
			defaults[action] = value
		}
	}

	s := &Service{
		store:    store,
		logger:   slog.Default().With("component", "threshold-service"),
		defaults: defaults,
	}
	s.seed(ctx)
	return s
}

// seed writes missing threshold entries so operators can discover and tune
// them via the configuration API
func (s *Service) seed(ctx context.Context) {
	for action, value := range s.defaults {
		key := ConfigKeyPrefix + action
		_, err := s.store.GetConfig(ctx, key)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("Failed to read threshold entry, using defaults", "key", key, "error", err)
			continue
		}
		desc := fmt.Sprintf("Minimum discovery confidence for %s actions", action)
		if _, err := s.store.SetConfig(ctx, key, value, desc); err != nil {
			s.logger.Warn("Failed to seed threshold entry", "key", key, "error", err)
		}
	}
}

// GetThreshold returns the threshold for an action type. Stored numeric
// values win; otherwise the in-memory default for the action; otherwise the
// "default" threshold. verify_* action names resolve to the verify slot.
func (s *Service) GetThreshold(ctx context.Context, action string) float64 {
	action = normalizeAction(action)

	entry, err := s.store.GetConfig(ctx, ConfigKeyPrefix+action)
	if err == nil {
		if v, ok := entry.FloatValue(); ok {
			return v
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("Threshold lookup failed, falling back to defaults", "action", action, "error", err)
	}

	if v, ok := s.defaults[action]; ok {
		return v
	}
	return s.defaults[ActionDefault]
}

// GetAllThresholds merges stored entries under the threshold prefix with the
// in-memory defaults
func (s *Service) GetAllThresholds(ctx context.Context) map[string]float64 {
	out := make(map[string]float64, len(s.defaults))
	for action, value := range s.defaults {
		out[action] = value
	}

	entries, err := s.store.GetAllConfig(ctx, ConfigKeyPrefix)
	if err != nil {
		s.logger.Warn("Threshold listing failed, returning defaults", "error", err)
		return out
	}
	for _, entry := range entries {
		action := strings.TrimPrefix(entry.Key, ConfigKeyPrefix)
		if v, ok := entry.FloatValue(); ok {
			out[action] = v
		}
	}
	return out
}

// SetThreshold persists an override for a known action type
func (s *Service) SetThreshold(ctx context.Context, action string, value float64) error {
	action = strings.ToLower(action)
	if !IsValidAction(action) {
		return storage.NewValidationError("actionType", fmt.Sprintf("unknown action type %q", action))
	}
	if value < 0 || value > 1 {
		return storage.NewValidationError("value", "threshold must be within [0,1]")
	}
	desc := fmt.Sprintf("Minimum discovery confidence for %s actions", action)
	_, err := s.store.SetConfig(ctx, ConfigKeyPrefix+action, value, desc)
	return err
}

// DeleteThreshold removes a stored override; lookups fall back to defaults
func (s *Service) DeleteThreshold(ctx context.Context, action string) error {
	action = strings.ToLower(action)
	if !IsValidAction(action) {
		return storage.NewValidationError("actionType", fmt.Sprintf("unknown action type %q", action))
	}
	return s.store.DeleteConfig(ctx, ConfigKeyPrefix+action)
}

// DeleteAllThresholds removes every stored threshold entry
func (s *Service) DeleteAllThresholds(ctx context.Context) error {
	return s.store.DeleteAllConfig(ctx, ConfigKeyPrefix)
}

func normalizeAction(action string) string {
	action = strings.ToLower(strings.TrimSpace(action))
	if strings.HasPrefix(action, "verify") {
		return ActionVerify
	}
	if _, ok := baseDefaults[action]; ok {
		return action
	}
	return ActionDefault
}
