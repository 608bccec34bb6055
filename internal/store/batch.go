package store

import (
	"context"
	"fmt"
	"strings"
)

// batchChunkSize bounds the rows per statement so that bound parameters
// stay well below SQLite's variable limit.
const batchChunkSize = 500

// Kind describes a persisted record kind: its table and insert columns.
type Kind struct {
	Table   string
	Columns []string
}

var (
	KindNotification = Kind{
		Table: "notifications",
		Columns: []string{
			"id", "timestamp", "title", "message", "type",
			"priority", "icon", "metadata", "user_choice",
		},
	}
	KindSession = Kind{
		Table:   "work_sessions",
		Columns: []string{"id", "project_name", "start_time", "end_time"},
	}
	KindActivity = Kind{
		Table:   "activities",
		Columns: []string{"session_id", "type", "timestamp", "tool"},
	}
)

func (k Kind) insertSQL() string {
	named := make([]string, len(k.Columns))
	for i, c := range k.Columns {
		named[i] = ":" + c
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		k.Table, strings.Join(k.Columns, ", "), strings.Join(named, ", "))
}

// Row is one record in column-name form, as consumed by BatchInsert.
type Row = map[string]interface{}

// Predicate is a WHERE clause with "?" placeholders and its arguments.
// An empty clause matches every row.
type Predicate struct {
	Where string
	Args  []interface{}
}

// Where builds a Predicate.
func Where(clause string, args ...interface{}) Predicate {
	return Predicate{Where: clause, Args: args}
}

// IDsIn splits an identifier set into "column IN (...)" predicates of at
// most batchChunkSize ids each.
func IDsIn(column string, ids []string) []Predicate {
	var preds []Predicate
	for start := 0; start < len(ids); start += batchChunkSize {
		end := min(start+batchChunkSize, len(ids))
		chunk := ids[start:end]

		placeholders := make([]string, len(chunk))
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			placeholders[i] = "?"
			args[i] = id
		}
		preds = append(preds, Predicate{
			Where: column + " IN (" + strings.Join(placeholders, ", ") + ")",
			Args:  args,
		})
	}
	return preds
}

// BatchInsert inserts rows of one kind in a single transaction using
// multi-row statements. Any failing row aborts the whole batch.
func (m *Manager) BatchInsert(ctx context.Context, kind Kind, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	return m.RunInWriteContext(ctx, "batch insert "+kind.Table, func(c Context) error {
		return insertRows(ctx, c, kind, rows)
	})
}

// insertRows writes rows through c in chunks of batchChunkSize.
func insertRows(ctx context.Context, c Context, kind Kind, rows []Row) error {
	query := kind.insertSQL()
	for start := 0; start < len(rows); start += batchChunkSize {
		end := min(start+batchChunkSize, len(rows))
		if _, err := c.NamedExecContext(ctx, query, rows[start:end]); err != nil {
			return fmt.Errorf("inserting %s rows %d-%d: %w", kind.Table, start, end-1, err)
		}
	}
	return nil
}

// BatchDelete deletes every row of kind matching any of preds in a single
// transaction and returns the number of rows removed.
func (m *Manager) BatchDelete(ctx context.Context, kind Kind, preds ...Predicate) (int64, error) {
	if len(preds) == 0 {
		return 0, nil
	}

	return InWriteContext(ctx, m, "batch delete "+kind.Table, func(c Context) (int64, error) {
		var total int64
		for _, p := range preds {
			query := "DELETE FROM " + kind.Table
			if p.Where != "" {
				query += " WHERE " + p.Where
			}
			res, err := c.ExecContext(ctx, c.Rebind(query), p.Args...)
			if err != nil {
				return 0, fmt.Errorf("deleting from %s: %w", kind.Table, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return 0, fmt.Errorf("counting deleted %s rows: %w", kind.Table, err)
			}
			total += n
		}
		return total, nil
	})
}
