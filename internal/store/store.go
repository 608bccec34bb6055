package store

import (
	"context"
	"time"

	"github.com/notchnoti/notchstore/internal/model"
)

// NotificationFilter controls filtering and pagination for notification
// queries. Results are always ordered newest first.
type NotificationFilter struct {
	Types   []model.NotificationType // nil means all; empty non-nil matches nothing
	From    *time.Time               // inclusive
	To      *time.Time               // inclusive
	Project *string                  // metadata "project"; evaluated in memory
	Query   *string                  // substring of title or message
	Limit   int
	Offset  int
}

// NotificationRepository is the write, read and maintenance surface for
// notification records.
type NotificationRepository interface {
	// === Write path ===

	Save(ctx context.Context, rec model.NotificationRecord) error
	SaveBatch(ctx context.Context, recs []model.NotificationRecord) error
	UpdateUserChoice(ctx context.Context, id, choice string) error

	// === Read path ===

	Get(ctx context.Context, id string) (*model.NotificationRecord, error)
	Fetch(ctx context.Context, page, pageSize int) ([]model.NotificationRecord, error)
	Query(ctx context.Context, filter NotificationFilter) ([]model.NotificationRecord, error)
	FetchByTypes(ctx context.Context, types []model.NotificationType) ([]model.NotificationRecord, error)
	FetchBetween(ctx context.Context, from, to time.Time) ([]model.NotificationRecord, error)
	FetchByProject(ctx context.Context, project string) ([]model.NotificationRecord, error)
	Search(ctx context.Context, query string, page, pageSize int) ([]model.NotificationRecord, error)
	Count(ctx context.Context) (int, error)
	CountByTypes(ctx context.Context, types []model.NotificationType) (int, error)

	// === Maintenance path ===

	Delete(ctx context.Context, id string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Cleanup(ctx context.Context, keepRecent int) (int64, error)
}

// SessionRepository is the lifecycle, read and statistics surface for
// work sessions.
type SessionRepository interface {
	// === Write path ===

	CreateSession(ctx context.Context, projectName string) (model.WorkSession, error)
	EndSession(ctx context.Context, id string) error
	AddActivity(ctx context.Context, sessionID string, activity model.Activity) error
	SeedSessions(ctx context.Context, sessions []model.WorkSession) error

	// === Read path ===

	Session(ctx context.Context, id string) (*model.WorkSession, error)
	CurrentSession(ctx context.Context) (*model.WorkSession, error)
	FetchRecentSessions(ctx context.Context, limit int) ([]model.WorkSession, error)
	FetchSessionsForProject(ctx context.Context, projectName string) ([]model.WorkSession, error)
	FetchSessionsBetween(ctx context.Context, from, to time.Time) ([]model.WorkSession, error)
	FetchTodaySessions(ctx context.Context) ([]model.WorkSession, error)

	// === Statistics ===

	AggregateToday(ctx context.Context) (model.DailySummary, error)
	AggregateWeeklyTrend(ctx context.Context) ([]model.DailySummary, error)
	AggregateByProject(ctx context.Context) ([]model.ProjectSummary, error)

	// === Maintenance path ===

	DeleteOldSessions(ctx context.Context, olderThanDays int) (int64, error)
}

var (
	_ NotificationRepository = (*NotificationStore)(nil)
	_ SessionRepository      = (*SessionAggregator)(nil)
)

// toUnix stores times as unix nanoseconds.
func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

// fromUnix restores a stored time in UTC.
func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
