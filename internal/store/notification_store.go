package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/notchnoti/notchstore/internal/model"
)

const notificationColumns = "id, timestamp, title, message, type, priority, icon, metadata, user_choice"

// NotificationStore is the repository for notification records. It only
// touches the engine through its Manager's contexts.
type NotificationStore struct {
	m      *Manager
	logger *zap.Logger
}

// NewNotificationStore returns a repository backed by m.
func NewNotificationStore(m *Manager, logger *zap.Logger) *NotificationStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationStore{m: m, logger: logger.Named("notifications")}
}

// notificationRow is the column form of a NotificationRecord.
type notificationRow struct {
	ID         string         `db:"id"`
	Timestamp  int64          `db:"timestamp"`
	Title      string         `db:"title"`
	Message    string         `db:"message"`
	Type       string         `db:"type"`
	Priority   int            `db:"priority"`
	Icon       sql.NullString `db:"icon"`
	Metadata   sql.NullString `db:"metadata"`
	UserChoice sql.NullString `db:"user_choice"`
}

// prepareNotification fills defaults, enforces the data model and returns
// the record in row form.
func prepareNotification(rec model.NotificationRecord) (Row, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if !rec.Type.Valid() {
		return nil, fmt.Errorf("%w: notification %s has unknown type %q", ErrInvalidRecord, rec.ID, rec.Type)
	}
	if !rec.Priority.Valid() {
		return nil, fmt.Errorf("%w: notification %s has priority %d out of range", ErrInvalidRecord, rec.ID, rec.Priority)
	}
	rec = rec.Truncated()

	metadata, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("notification %s: %w", rec.ID, err)
	}

	return Row{
		"id":          rec.ID,
		"timestamp":   toUnix(rec.Timestamp),
		"title":       rec.Title,
		"message":     rec.Message,
		"type":        string(rec.Type),
		"priority":    int(rec.Priority),
		"icon":        nullableString(rec.Icon),
		"metadata":    metadata,
		"user_choice": nullableString(rec.UserChoice),
	}, nil
}

func (r notificationRow) record() (model.NotificationRecord, error) {
	rec := model.NotificationRecord{
		ID:        r.ID,
		Timestamp: fromUnix(r.Timestamp),
		Title:     r.Title,
		Message:   r.Message,
		Type:      model.NotificationType(r.Type),
		Priority:  model.Priority(r.Priority),
	}
	if r.Icon.Valid {
		icon := r.Icon.String
		rec.Icon = &icon
	}
	if r.UserChoice.Valid {
		choice := r.UserChoice.String
		rec.UserChoice = &choice
	}
	if r.Metadata.Valid && r.Metadata.String != "" {
		if err := json.Unmarshal([]byte(r.Metadata.String), &rec.Metadata); err != nil {
			return model.NotificationRecord{}, fmt.Errorf("unmarshaling metadata of notification %s: %w", r.ID, err)
		}
	}
	return rec, nil
}

func encodeMetadata(md model.Metadata) (interface{}, error) {
	if len(md) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	return string(b), nil
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// Save inserts a single record. An empty ID is replaced by a new UUID and
// a zero timestamp by the current time.
func (s *NotificationStore) Save(ctx context.Context, rec model.NotificationRecord) error {
	row, err := prepareNotification(rec)
	if err != nil {
		return opError("saving notification", err)
	}

	return s.m.RunInWriteContext(ctx, "saving notification", func(c Context) error {
		if _, err := c.NamedExecContext(ctx, KindNotification.insertSQL(), row); err != nil {
			return fmt.Errorf("inserting notification %s: %w", row["id"], err)
		}
		return nil
	})
}

// SaveBatch inserts all records in one transaction. An invalid record
// aborts the batch before anything is written.
func (s *NotificationStore) SaveBatch(ctx context.Context, recs []model.NotificationRecord) error {
	if len(recs) == 0 {
		return nil
	}

	rows := make([]Row, 0, len(recs))
	for _, rec := range recs {
		row, err := prepareNotification(rec)
		if err != nil {
			return opError("saving notification batch", err)
		}
		rows = append(rows, row)
	}

	return s.m.BatchInsert(ctx, KindNotification, rows)
}

// Get returns the record with id, or nil if there is none.
func (s *NotificationStore) Get(ctx context.Context, id string) (*model.NotificationRecord, error) {
	var row notificationRow
	err := s.m.View(ctx, func(c Context) error {
		return c.GetContext(ctx, &row,
			"SELECT "+notificationColumns+" FROM notifications WHERE id = ?", id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, opError("getting notification "+id, err)
	}

	rec, err := row.record()
	if err != nil {
		return nil, opError("getting notification "+id, err)
	}
	return &rec, nil
}

// Fetch returns one page of records, newest first. Page 0 is the most
// recent page.
func (s *NotificationStore) Fetch(ctx context.Context, page, pageSize int) ([]model.NotificationRecord, error) {
	filter, err := pageFilter(page, pageSize)
	if err != nil {
		return nil, opError("fetching notifications", err)
	}
	if pageSize == 0 {
		return []model.NotificationRecord{}, nil
	}
	return s.Query(ctx, filter)
}

// FetchByTypes returns every record whose type is in types.
func (s *NotificationStore) FetchByTypes(ctx context.Context, types []model.NotificationType) ([]model.NotificationRecord, error) {
	if types == nil {
		types = []model.NotificationType{}
	}
	return s.Query(ctx, NotificationFilter{Types: types})
}

// FetchBetween returns records with from <= timestamp <= to.
func (s *NotificationStore) FetchBetween(ctx context.Context, from, to time.Time) ([]model.NotificationRecord, error) {
	return s.Query(ctx, NotificationFilter{From: &from, To: &to})
}

// FetchByProject returns records whose metadata names project. Project is
// not an indexed column, so this scans the whole table.
func (s *NotificationStore) FetchByProject(ctx context.Context, project string) ([]model.NotificationRecord, error) {
	return s.Query(ctx, NotificationFilter{Project: &project})
}

// Search returns one page of records whose title or message contains
// query, ignoring ASCII case.
func (s *NotificationStore) Search(ctx context.Context, query string, page, pageSize int) ([]model.NotificationRecord, error) {
	filter, err := pageFilter(page, pageSize)
	if err != nil {
		return nil, opError("searching notifications", err)
	}
	if pageSize == 0 {
		return []model.NotificationRecord{}, nil
	}
	filter.Query = &query
	return s.Query(ctx, filter)
}

func pageFilter(page, pageSize int) (NotificationFilter, error) {
	if page < 0 || pageSize < 0 {
		return NotificationFilter{}, fmt.Errorf("%w: page %d, page size %d", ErrInvalidArgument, page, pageSize)
	}
	return NotificationFilter{Limit: pageSize, Offset: page * pageSize}, nil
}

// Query returns records matching filter, newest first.
func (s *NotificationStore) Query(ctx context.Context, filter NotificationFilter) ([]model.NotificationRecord, error) {
	if filter.Types != nil && len(filter.Types) == 0 {
		return []model.NotificationRecord{}, nil
	}

	// Project lives inside the metadata blob, so paging has to happen
	// after the in-memory predicate.
	sqlFilter := filter
	if filter.Project != nil {
		sqlFilter.Limit, sqlFilter.Offset = 0, 0
	}

	query, args, err := buildNotificationQuery("SELECT "+notificationColumns, sqlFilter, true)
	if err != nil {
		return nil, opError("querying notifications", err)
	}

	var rows []notificationRow
	err = s.m.View(ctx, func(c Context) error {
		return c.SelectContext(ctx, &rows, c.Rebind(query), args...)
	})
	if err != nil {
		return nil, opError("querying notifications", err)
	}

	recs := make([]model.NotificationRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, opError("querying notifications", err)
		}
		if filter.Project != nil && rec.Metadata.Project() != *filter.Project {
			continue
		}
		recs = append(recs, rec)
	}

	if filter.Project != nil {
		recs = paginate(recs, filter.Offset, filter.Limit)
	}
	return recs, nil
}

func paginate(recs []model.NotificationRecord, offset, limit int) []model.NotificationRecord {
	if offset >= len(recs) {
		return []model.NotificationRecord{}
	}
	recs = recs[offset:]
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs
}

// likeEscaper escapes LIKE wildcards so the query matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// buildNotificationQuery constructs the SQL query and args for a
// NotificationFilter. Project is ignored here.
func buildNotificationQuery(
	selectClause string,
	filter NotificationFilter,
	ordered bool,
) (string, []interface{}, error) {
	var conditions []string
	var args []interface{}

	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		cond, inArgs, err := sqlx.In("type IN (?)", types)
		if err != nil {
			return "", nil, fmt.Errorf("expanding type filter: %w", err)
		}
		conditions = append(conditions, cond)
		args = append(args, inArgs...)
	}
	if filter.From != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, toUnix(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, toUnix(*filter.To))
	}
	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions,
			`(casefold(title) LIKE ? ESCAPE '\' OR casefold(message) LIKE ? ESCAPE '\')`)
		q := "%" + likeEscaper.Replace(strings.ToLower(*filter.Query)) + "%"
		args = append(args, q, q)
	}

	query := selectClause + " FROM notifications"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if !ordered {
		return query, args, nil
	}

	query += " ORDER BY timestamp DESC, id DESC"

	switch {
	case filter.Limit > 0:
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	case filter.Offset > 0:
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", filter.Offset)
	}

	return query, args, nil
}

// Count returns the total number of records.
func (s *NotificationStore) Count(ctx context.Context) (int, error) {
	return s.count(ctx, NotificationFilter{})
}

// CountByTypes returns the number of records whose type is in types.
func (s *NotificationStore) CountByTypes(ctx context.Context, types []model.NotificationType) (int, error) {
	if len(types) == 0 {
		return 0, nil
	}
	return s.count(ctx, NotificationFilter{Types: types})
}

func (s *NotificationStore) count(ctx context.Context, filter NotificationFilter) (int, error) {
	query, args, err := buildNotificationQuery("SELECT COUNT(*)", filter, false)
	if err != nil {
		return 0, opError("counting notifications", err)
	}

	var n int
	err = s.m.View(ctx, func(c Context) error {
		return c.GetContext(ctx, &n, c.Rebind(query), args...)
	})
	if errors.Is(err, sql.ErrNoRows) {
		// Only the null engine yields no row for COUNT(*).
		return 0, nil
	}
	if err != nil {
		return 0, opError("counting notifications", err)
	}
	return n, nil
}

// UpdateUserChoice records the user's answer to an interactive
// notification, both in its own column and in metadata. A missing id is
// a no-op.
func (s *NotificationStore) UpdateUserChoice(ctx context.Context, id, choice string) error {
	return s.m.RunInWriteContext(ctx, "updating user choice", func(c Context) error {
		var raw sql.NullString
		err := c.GetContext(ctx, &raw, "SELECT metadata FROM notifications WHERE id = ?", id)
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug("user choice for unknown notification", zap.String("id", id))
			return nil
		}
		if err != nil {
			return fmt.Errorf("loading notification %s: %w", id, err)
		}

		var md model.Metadata
		if raw.Valid && raw.String != "" {
			if err := json.Unmarshal([]byte(raw.String), &md); err != nil {
				return fmt.Errorf("unmarshaling metadata of notification %s: %w", id, err)
			}
		}
		encoded, err := encodeMetadata(md.With(model.MetaUserChoice, choice))
		if err != nil {
			return err
		}

		_, err = c.ExecContext(ctx,
			"UPDATE notifications SET user_choice = ?, metadata = ? WHERE id = ?",
			choice, encoded, id,
		)
		if err != nil {
			return fmt.Errorf("updating notification %s: %w", id, err)
		}
		return nil
	})
}

// Delete removes a single record. A missing id is not an error.
func (s *NotificationStore) Delete(ctx context.Context, id string) error {
	_, err := s.m.BatchDelete(ctx, KindNotification, Where("id = ?", id))
	return err
}

// DeleteOlderThan removes every record created before cutoff.
func (s *NotificationStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.m.BatchDelete(ctx, KindNotification, Where("timestamp < ?", toUnix(cutoff)))
}

// Cleanup enforces the retention limit: when more than keepRecent records
// exist, the oldest surplus is deleted by id. Running it again on an
// unchanged store deletes nothing.
func (s *NotificationStore) Cleanup(ctx context.Context, keepRecent int) (int64, error) {
	if keepRecent < 0 {
		return 0, opError("cleaning up notifications",
			fmt.Errorf("%w: keepRecent %d", ErrInvalidArgument, keepRecent))
	}

	total, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	if total <= keepRecent {
		return 0, nil
	}

	var ids []string
	err = s.m.View(ctx, func(c Context) error {
		return c.SelectContext(ctx, &ids,
			"SELECT id FROM notifications ORDER BY timestamp ASC, id ASC LIMIT ?",
			total-keepRecent,
		)
	})
	if err != nil {
		return 0, opError("selecting notifications to clean up", err)
	}

	deleted, err := s.m.BatchDelete(ctx, KindNotification, IDsIn("id", ids)...)
	if err != nil {
		return 0, err
	}

	s.logger.Info("notification cleanup",
		zap.Int("total", total),
		zap.Int("keep", keepRecent),
		zap.Int64("deleted", deleted))
	return deleted, nil
}
