package store

import (
	"sort"
	"time"

	"github.com/notchnoti/notchstore/internal/model"
)

// trendDays is the number of calendar days covered by the weekly trend.
const trendDays = 7

// startOfDay returns the local midnight that opens t's calendar day.
func startOfDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

// dayWindow returns the half-open [start, end) window of t's calendar day.
// AddDate keeps the window correct across DST transitions.
func dayWindow(t time.Time) (time.Time, time.Time) {
	start := startOfDay(t)
	return start, start.AddDate(0, 0, 1)
}

// summarizeDay folds sessions into a DailySummary. Average pace is the
// mean of the per-session paces, zero when there are no sessions.
func summarizeDay(day time.Time, sessions []model.WorkSession, now time.Time) model.DailySummary {
	summary := model.DailySummary{
		Date:           day,
		SessionCount:   len(sessions),
		ActivityCounts: make(map[model.ActivityType]int),
	}

	var paceSum float64
	for _, s := range sessions {
		summary.TotalDuration += s.Duration(now)
		summary.TotalActivities += len(s.Activities)
		paceSum += s.Pace(now)
		for _, a := range s.Activities {
			summary.ActivityCounts[a.Type]++
		}
	}
	if len(sessions) > 0 {
		summary.AveragePace = paceSum / float64(len(sessions))
	}
	return summary
}

// summarizeProjects groups sessions by project and orders the groups by
// most recent start, newest first.
func summarizeProjects(sessions []model.WorkSession, now time.Time) []model.ProjectSummary {
	byName := make(map[string]*model.ProjectSummary)
	for _, s := range sessions {
		p, ok := byName[s.ProjectName]
		if !ok {
			p = &model.ProjectSummary{ProjectName: s.ProjectName}
			byName[s.ProjectName] = p
		}
		p.SessionCount++
		p.TotalDuration += s.Duration(now)
		p.TotalActivities += len(s.Activities)
		if s.StartTime.After(p.LastActive) {
			p.LastActive = s.StartTime
		}
	}

	out := make([]model.ProjectSummary, 0, len(byName))
	for _, p := range byName {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActive.Equal(out[j].LastActive) {
			return out[i].LastActive.After(out[j].LastActive)
		}
		return out[i].ProjectName < out[j].ProjectName
	})
	return out
}
