package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notchnoti/notchstore/internal/model"
)

// DefaultProjectSessionLimit bounds how many recent sessions the
// per-project view folds.
const DefaultProjectSessionLimit = 100

const unknownProject = "unknown"

const sessionColumns = "id, project_name, start_time, end_time"

// SessionOption configures a SessionAggregator.
type SessionOption func(*SessionAggregator)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionAggregator) {
		if now != nil {
			s.now = now
		}
	}
}

// WithProjectLimit sets how many recent sessions AggregateByProject reads.
func WithProjectLimit(n int) SessionOption {
	return func(s *SessionAggregator) {
		if n > 0 {
			s.projectLimit = n
		}
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *zap.Logger) SessionOption {
	return func(s *SessionAggregator) {
		if l != nil {
			s.logger = l
		}
	}
}

// SessionAggregator is the repository for work sessions and their
// activity logs, plus the statistics folded from them.
type SessionAggregator struct {
	m            *Manager
	logger       *zap.Logger
	now          func() time.Time
	projectLimit int
}

// NewSessionAggregator returns a session repository backed by m.
func NewSessionAggregator(m *Manager, opts ...SessionOption) *SessionAggregator {
	s := &SessionAggregator{
		m:            m,
		logger:       zap.NewNop(),
		now:          time.Now,
		projectLimit: DefaultProjectSessionLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("sessions")
	return s
}

type sessionRow struct {
	ID          string        `db:"id"`
	ProjectName string        `db:"project_name"`
	StartTime   int64         `db:"start_time"`
	EndTime     sql.NullInt64 `db:"end_time"`
}

func (r sessionRow) session() model.WorkSession {
	s := model.WorkSession{
		ID:          r.ID,
		ProjectName: r.ProjectName,
		StartTime:   fromUnix(r.StartTime),
	}
	if r.EndTime.Valid {
		end := fromUnix(r.EndTime.Int64)
		s.EndTime = &end
	}
	return s
}

type activityRow struct {
	SessionID string `db:"session_id"`
	Type      string `db:"type"`
	Timestamp int64  `db:"timestamp"`
	Tool      string `db:"tool"`
}

// normalizeActivity derives a missing type from the tool name and stamps
// a missing timestamp with now.
func normalizeActivity(a model.Activity, now time.Time) (model.Activity, error) {
	if a.Type == "" {
		a.Type = model.ActivityTypeForTool(a.Tool)
	}
	if !a.Type.Valid() {
		return a, fmt.Errorf("%w: unknown activity type %q", ErrInvalidRecord, a.Type)
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = now
	}
	return a, nil
}

// CreateSession starts a new open session for projectName.
func (s *SessionAggregator) CreateSession(ctx context.Context, projectName string) (model.WorkSession, error) {
	if strings.TrimSpace(projectName) == "" {
		projectName = unknownProject
	}
	session := model.WorkSession{
		ID:          uuid.New().String(),
		ProjectName: projectName,
		StartTime:   s.now(),
	}

	err := s.m.RunInWriteContext(ctx, "creating session", func(c Context) error {
		_, err := c.ExecContext(ctx,
			"INSERT INTO work_sessions (id, project_name, start_time) VALUES (?, ?, ?)",
			session.ID, session.ProjectName, toUnix(session.StartTime),
		)
		return err
	})
	if err != nil {
		return model.WorkSession{}, err
	}

	s.logger.Debug("session created",
		zap.String("id", session.ID),
		zap.String("project", projectName))
	return session, nil
}

// EndSession closes the session. The first end time wins; ending a closed
// or missing session is a no-op.
func (s *SessionAggregator) EndSession(ctx context.Context, id string) error {
	now := toUnix(s.now())

	return s.m.RunInWriteContext(ctx, "ending session", func(c Context) error {
		res, err := c.ExecContext(ctx,
			`UPDATE work_sessions SET end_time = MAX(?, start_time)
			WHERE id = ? AND end_time IS NULL`,
			now, id,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			s.logger.Debug("end of unknown or closed session", zap.String("id", id))
		}
		return nil
	})
}

// AddActivity appends an activity to a session's log. A missing session
// is logged and otherwise ignored.
func (s *SessionAggregator) AddActivity(ctx context.Context, sessionID string, activity model.Activity) error {
	activity, err := normalizeActivity(activity, s.now())
	if err != nil {
		return opError("adding activity", err)
	}

	return s.m.RunInWriteContext(ctx, "adding activity", func(c Context) error {
		res, err := c.ExecContext(ctx,
			`INSERT INTO activities (session_id, type, timestamp, tool)
			SELECT ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM work_sessions WHERE id = ?)`,
			sessionID, string(activity.Type), toUnix(activity.Timestamp), activity.Tool, sessionID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			s.logger.Warn("activity for unknown session dropped",
				zap.String("session_id", sessionID),
				zap.String("tool", activity.Tool))
		}
		return nil
	})
}

// SeedSessions imports complete sessions, activities included, in one
// transaction. Sessions without an ID get one.
func (s *SessionAggregator) SeedSessions(ctx context.Context, sessions []model.WorkSession) error {
	if len(sessions) == 0 {
		return nil
	}

	now := s.now()
	sessionRows := make([]Row, 0, len(sessions))
	var activityRows []Row
	for _, ws := range sessions {
		if ws.ID == "" {
			ws.ID = uuid.New().String()
		}
		if strings.TrimSpace(ws.ProjectName) == "" {
			ws.ProjectName = unknownProject
		}
		var end interface{}
		if ws.EndTime != nil {
			if ws.EndTime.Before(ws.StartTime) {
				return opError("seeding sessions",
					fmt.Errorf("%w: session %s ends before it starts", ErrInvalidRecord, ws.ID))
			}
			end = toUnix(*ws.EndTime)
		}
		sessionRows = append(sessionRows, Row{
			"id":           ws.ID,
			"project_name": ws.ProjectName,
			"start_time":   toUnix(ws.StartTime),
			"end_time":     end,
		})

		for _, a := range ws.Activities {
			a, err := normalizeActivity(a, now)
			if err != nil {
				return opError("seeding sessions", fmt.Errorf("session %s: %w", ws.ID, err))
			}
			activityRows = append(activityRows, Row{
				"session_id": ws.ID,
				"type":       string(a.Type),
				"timestamp":  toUnix(a.Timestamp),
				"tool":       a.Tool,
			})
		}
	}

	return s.m.RunInWriteContext(ctx, "seeding sessions", func(c Context) error {
		if err := insertRows(ctx, c, KindSession, sessionRows); err != nil {
			return err
		}
		if len(activityRows) == 0 {
			return nil
		}
		return insertRows(ctx, c, KindActivity, activityRows)
	})
}

// Session returns the session with id, or nil if there is none.
func (s *SessionAggregator) Session(ctx context.Context, id string) (*model.WorkSession, error) {
	sessions, err := s.fetch(ctx, "fetching session "+id,
		"WHERE id = ?", "", id)
	if err != nil || len(sessions) == 0 {
		return nil, err
	}
	return &sessions[0], nil
}

// CurrentSession returns the most recently started open session, or nil.
func (s *SessionAggregator) CurrentSession(ctx context.Context) (*model.WorkSession, error) {
	sessions, err := s.fetch(ctx, "fetching current session",
		"WHERE end_time IS NULL", "LIMIT 1")
	if err != nil || len(sessions) == 0 {
		return nil, err
	}
	return &sessions[0], nil
}

// FetchRecentSessions returns at most limit sessions, newest first.
func (s *SessionAggregator) FetchRecentSessions(ctx context.Context, limit int) ([]model.WorkSession, error) {
	if limit < 0 {
		return nil, opError("fetching recent sessions",
			fmt.Errorf("%w: limit %d", ErrInvalidArgument, limit))
	}
	if limit == 0 {
		return []model.WorkSession{}, nil
	}
	return s.fetch(ctx, "fetching recent sessions", "", fmt.Sprintf("LIMIT %d", limit))
}

// FetchSessionsForProject returns every session of projectName, newest first.
func (s *SessionAggregator) FetchSessionsForProject(ctx context.Context, projectName string) ([]model.WorkSession, error) {
	return s.fetch(ctx, "fetching project sessions", "WHERE project_name = ?", "", projectName)
}

// FetchSessionsBetween returns sessions that started in [from, to), newest first.
func (s *SessionAggregator) FetchSessionsBetween(ctx context.Context, from, to time.Time) ([]model.WorkSession, error) {
	return s.fetch(ctx, "fetching sessions between",
		"WHERE start_time >= ? AND start_time < ?", "",
		toUnix(from), toUnix(to))
}

// FetchTodaySessions returns the sessions that started today.
func (s *SessionAggregator) FetchTodaySessions(ctx context.Context) ([]model.WorkSession, error) {
	from, to := dayWindow(s.now())
	return s.FetchSessionsBetween(ctx, from, to)
}

// fetch loads sessions and eager-loads their activities, all under one
// shared hold on the engine.
func (s *SessionAggregator) fetch(
	ctx context.Context,
	op, where, limit string,
	args ...interface{},
) ([]model.WorkSession, error) {
	query := "SELECT " + sessionColumns + " FROM work_sessions"
	if where != "" {
		query += " " + where
	}
	query += " ORDER BY start_time DESC, id DESC"
	if limit != "" {
		query += " " + limit
	}

	var sessions []model.WorkSession
	err := s.m.View(ctx, func(c Context) error {
		var rows []sessionRow
		if err := c.SelectContext(ctx, &rows, c.Rebind(query), args...); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		sessions = make([]model.WorkSession, len(rows))
		index := make(map[string]int, len(rows))
		ids := make([]string, len(rows))
		for i, r := range rows {
			sessions[i] = r.session()
			index[r.ID] = i
			ids[i] = r.ID
		}
		return loadActivities(ctx, c, ids, func(r activityRow) {
			i := index[r.SessionID]
			sessions[i].Activities = append(sessions[i].Activities, model.Activity{
				Type:      model.ActivityType(r.Type),
				Timestamp: fromUnix(r.Timestamp),
				Tool:      r.Tool,
			})
		})
	})
	if errors.Is(err, sql.ErrNoRows) {
		return []model.WorkSession{}, nil
	}
	if err != nil {
		return nil, opError(op, err)
	}
	if sessions == nil {
		sessions = []model.WorkSession{}
	}
	return sessions, nil
}

// loadActivities reads the activities of the given sessions in insertion
// order, one query per chunk of session ids.
func loadActivities(ctx context.Context, c Context, ids []string, add func(activityRow)) error {
	for start := 0; start < len(ids); start += batchChunkSize {
		end := min(start+batchChunkSize, len(ids))
		query, args, err := sqlx.In(
			"SELECT session_id, type, timestamp, tool FROM activities WHERE session_id IN (?) ORDER BY id",
			ids[start:end],
		)
		if err != nil {
			return fmt.Errorf("expanding session ids: %w", err)
		}
		var rows []activityRow
		if err := c.SelectContext(ctx, &rows, c.Rebind(query), args...); err != nil {
			return fmt.Errorf("loading activities: %w", err)
		}
		for _, r := range rows {
			add(r)
		}
	}
	return nil
}

// AggregateToday folds today's sessions.
func (s *SessionAggregator) AggregateToday(ctx context.Context) (model.DailySummary, error) {
	now := s.now()
	from, to := dayWindow(now)
	sessions, err := s.FetchSessionsBetween(ctx, from, to)
	if err != nil {
		return model.DailySummary{}, err
	}
	return summarizeDay(from, sessions, now), nil
}

// AggregateWeeklyTrend folds each of the last seven calendar days, today
// included, oldest first. The day fetches are independent and run
// concurrently.
func (s *SessionAggregator) AggregateWeeklyTrend(ctx context.Context) ([]model.DailySummary, error) {
	now := s.now()
	today := startOfDay(now)
	trend := make([]model.DailySummary, trendDays)

	g, gctx := errgroup.WithContext(ctx)
	for i := range trendDays {
		day := today.AddDate(0, 0, i-(trendDays-1))
		g.Go(func() error {
			from, to := dayWindow(day)
			sessions, err := s.FetchSessionsBetween(gctx, from, to)
			if err != nil {
				return err
			}
			trend[i] = summarizeDay(from, sessions, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return trend, nil
}

// AggregateByProject folds the most recent sessions per project, ordered
// by last activity.
func (s *SessionAggregator) AggregateByProject(ctx context.Context) ([]model.ProjectSummary, error) {
	sessions, err := s.FetchRecentSessions(ctx, s.projectLimit)
	if err != nil {
		return nil, err
	}
	return summarizeProjects(sessions, s.now()), nil
}

// DeleteOldSessions removes sessions that started more than olderThanDays
// days ago. Their activities go with them.
func (s *SessionAggregator) DeleteOldSessions(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays < 0 {
		return 0, opError("deleting old sessions",
			fmt.Errorf("%w: days %d", ErrInvalidArgument, olderThanDays))
	}
	cutoff := s.now().AddDate(0, 0, -olderThanDays)

	n, err := s.m.BatchDelete(ctx, KindSession, Where("start_time < ?", toUnix(cutoff)))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("old sessions deleted",
			zap.Int64("deleted", n),
			zap.Time("cutoff", cutoff))
	}
	return n, nil
}
