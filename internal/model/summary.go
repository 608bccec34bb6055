package model

import "time"

// DailySummary folds the sessions that started within one calendar day.
type DailySummary struct {
	// Date is the local midnight that opens the day.
	Date            time.Time            `json:"date"`
	SessionCount    int                  `json:"session_count"`
	TotalDuration   time.Duration        `json:"total_duration"`
	TotalActivities int                  `json:"total_activities"`
	AveragePace     float64              `json:"average_pace"`
	ActivityCounts  map[ActivityType]int `json:"activity_counts"`
}

// ProjectSummary folds the recent sessions of one project.
type ProjectSummary struct {
	ProjectName     string        `json:"project_name"`
	SessionCount    int           `json:"session_count"`
	TotalDuration   time.Duration `json:"total_duration"`
	TotalActivities int           `json:"total_activities"`
	LastActive      time.Time     `json:"last_active"`
}
