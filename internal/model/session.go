package model

import (
	"strings"
	"time"
)

// ActivityType classifies a single tool invocation within a session.
type ActivityType string

const (
	ActivityRead    ActivityType = "read"
	ActivityWrite   ActivityType = "write"
	ActivityEdit    ActivityType = "edit"
	ActivityExecute ActivityType = "execute"
	ActivitySearch  ActivityType = "search"
	ActivityWeb     ActivityType = "web"
	ActivityAgent   ActivityType = "agent"
	ActivityTodo    ActivityType = "todo"
	ActivityMCP     ActivityType = "mcp"
	ActivityOther   ActivityType = "other"
)

// ActivityTypes lists every known activity type.
var ActivityTypes = []ActivityType{
	ActivityRead,
	ActivityWrite,
	ActivityEdit,
	ActivityExecute,
	ActivitySearch,
	ActivityWeb,
	ActivityAgent,
	ActivityTodo,
	ActivityMCP,
	ActivityOther,
}

// Valid reports whether a is one of the known activity types.
func (a ActivityType) Valid() bool {
	for _, known := range ActivityTypes {
		if a == known {
			return true
		}
	}
	return false
}

// ActivityTypeForTool maps a hook tool name to its activity type.
func ActivityTypeForTool(tool string) ActivityType {
	switch tool {
	case "Read", "NotebookRead":
		return ActivityRead
	case "Write":
		return ActivityWrite
	case "Edit", "MultiEdit", "NotebookEdit":
		return ActivityEdit
	case "Bash", "BashOutput", "KillShell":
		return ActivityExecute
	case "Grep", "Glob", "LS":
		return ActivitySearch
	case "WebFetch", "WebSearch":
		return ActivityWeb
	case "Task":
		return ActivityAgent
	case "TodoWrite":
		return ActivityTodo
	}
	if strings.HasPrefix(tool, "mcp__") {
		return ActivityMCP
	}
	return ActivityOther
}

// Activity is one entry in a session's activity log. It is owned by
// exactly one WorkSession.
type Activity struct {
	Type      ActivityType `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Tool      string       `json:"tool"`
}

// WorkSession is a span of work on a project together with its activity log.
type WorkSession struct {
	ID          string     `json:"id"`
	ProjectName string     `json:"project_name"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Activities  []Activity `json:"activities,omitempty"`
}

// IsActive reports whether the session has not been ended.
func (s WorkSession) IsActive() bool {
	return s.EndTime == nil
}

// Duration returns end-or-now minus start. It never goes negative.
func (s WorkSession) Duration(now time.Time) time.Duration {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	d := end.Sub(s.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// Pace returns activities per minute over the session's duration.
func (s WorkSession) Pace(now time.Time) float64 {
	minutes := s.Duration(now).Minutes()
	if minutes <= 0 {
		return 0
	}
	return float64(len(s.Activities)) / minutes
}
