package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionStatusTerminal(t *testing.T) {
	assert.False(t, ExecutionStatusPending.Terminal())
	assert.False(t, ExecutionStatusRunning.Terminal())
	assert.True(t, ExecutionStatusCompleted.Terminal())
	assert.True(t, ExecutionStatusFailed.Terminal())
}

func TestExecutionProgress(t *testing.T) {
	tests := []struct {
		name string
		exec Execution
		want int
	}{
		{
			name: "pending with no steps",
			exec: Execution{Status: ExecutionStatusPending},
			want: 0,
		},
		{
			name: "running midway",
			exec: Execution{Status: ExecutionStatusRunning, CurrentStep: 2, TotalSteps: 4},
			want: 50,
		},
		{
			name: "completed is always 100",
			exec: Execution{Status: ExecutionStatusCompleted, CurrentStep: 1, TotalSteps: 4},
			want: 100,
		},
		{
			name: "failed reports partial progress",
			exec: Execution{Status: ExecutionStatusFailed, CurrentStep: 3, TotalSteps: 4},
			want: 75,
		},
		{
			name: "current step beyond total is clamped",
			exec: Execution{Status: ExecutionStatusRunning, CurrentStep: 9, TotalSteps: 4},
			want: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.exec.Progress())
		})
	}
}

func TestConfigEntryFloatValue(t *testing.T) {
	entry := &ConfigEntry{Key: "confidence.threshold.click", Value: 0.5}
	v, ok := entry.FloatValue()
	assert.True(t, ok)
	assert.InDelta(t, 0.5, v, 1e-9)

	entry = &ConfigEntry{Key: "k", Value: 3}
	v, ok = entry.FloatValue()
	assert.True(t, ok)
	assert.Equal(t, float64(3), v)

	entry = &ConfigEntry{Key: "k", Value: "0.5"}
	_, ok = entry.FloatValue()
	assert.False(t, ok)
}
