package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateScenarioID(t *testing.T) {
	t.Run("normalizes case and surrounding whitespace", func(t *testing.T) {
		assert.Equal(t, GenerateScenarioID("login test"), GenerateScenarioID("  Login Test  "))
		assert.Equal(t, GenerateScenarioID("login test"), GenerateScenarioID(" LOGIN TEST"))
	})

	t.Run("is deterministic", func(t *testing.T) {
		a := GenerateScenarioID("Navigate to example.com and search for cats")
		b := GenerateScenarioID("Navigate to example.com and search for cats")
		assert.Equal(t, a, b)
	})

	t.Run("distinct scenarios produce distinct ids", func(t *testing.T) {
		assert.NotEqual(t, GenerateScenarioID("scenario one"), GenerateScenarioID("scenario two"))
	})

	t.Run("format is scenario- plus 16 hex chars", func(t *testing.T) {
		id := GenerateScenarioID("any scenario")
		assert.True(t, strings.HasPrefix(id, "scenario-"))
		suffix := strings.TrimPrefix(id, "scenario-")
		assert.Len(t, suffix, 16)
		for _, r := range suffix {
			assert.Contains(t, "0123456789abcdef", string(r))
		}
	})

	t.Run("inner whitespace is significant", func(t *testing.T) {
		assert.NotEqual(t, GenerateScenarioID("login  test"), GenerateScenarioID("login test"))
	})
}

func TestNewTestID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewTestID()
		assert.True(t, strings.HasPrefix(id, "test-"))
		assert.False(t, seen[id], "test ids must be unique")
		seen[id] = true
	}
}

func TestNewPlanID(t *testing.T) {
	a := NewPlanID()
	b := NewPlanID()
	assert.True(t, strings.HasPrefix(a, "plan-"))
	assert.NotEqual(t, a, b)
}
