package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var start = time.Date(2025, time.March, 14, 9, 0, 0, 0, time.UTC)

func TestWorkSession_Duration(t *testing.T) {
	open := WorkSession{StartTime: start}
	assert.True(t, open.IsActive())
	assert.Equal(t, 10*time.Minute, open.Duration(start.Add(10*time.Minute)))
	assert.Zero(t, open.Duration(start.Add(-time.Minute)), "never negative")

	end := start.Add(20 * time.Minute)
	closed := WorkSession{StartTime: start, EndTime: &end}
	assert.False(t, closed.IsActive())
	assert.Equal(t, 20*time.Minute, closed.Duration(start.Add(time.Hour)))
}

func TestWorkSession_Pace(t *testing.T) {
	s := WorkSession{
		StartTime:  start,
		Activities: make([]Activity, 6),
	}
	assert.InDelta(t, 2.0, s.Pace(start.Add(3*time.Minute)), 1e-9)
	assert.Zero(t, s.Pace(start))
}

func TestActivityTypeForTool(t *testing.T) {
	tests := map[string]ActivityType{
		"Read":           ActivityRead,
		"Write":          ActivityWrite,
		"MultiEdit":      ActivityEdit,
		"Bash":           ActivityExecute,
		"Grep":           ActivitySearch,
		"WebFetch":       ActivityWeb,
		"Task":           ActivityAgent,
		"TodoWrite":      ActivityTodo,
		"mcp__notch__ok": ActivityMCP,
		"Mystery":        ActivityOther,
	}
	for tool, want := range tests {
		assert.Equal(t, want, ActivityTypeForTool(tool), tool)
		assert.True(t, want.Valid())
	}
	assert.False(t, ActivityType("teleport").Valid())
}
