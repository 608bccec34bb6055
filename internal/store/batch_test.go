package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestIDsIn_Chunks(t *testing.T) {
	ids := make([]string, 2*batchChunkSize+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}

	preds := IDsIn("id", ids)

	require.Len(t, preds, 3)
	assert.Len(t, preds[0].Args, batchChunkSize)
	assert.Len(t, preds[1].Args, batchChunkSize)
	assert.Len(t, preds[2].Args, 1)
	assert.Equal(t, "id IN (?)", preds[2].Where)
	assert.Nil(t, IDsIn("id", nil))
}

func TestKind_InsertSQL(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO work_sessions (id, project_name, start_time, end_time) VALUES (:id, :project_name, :start_time, :end_time)",
		KindSession.insertSQL(),
	)
}

func createNotificationRows(t *testing.T, n int) []Row {
	t.Helper()
	rows := make([]Row, n)
	for i := range rows {
		row, err := prepareNotification(createTestNotification(fmt.Sprintf("bulk %d", i), baseTime))
		require.NoError(t, err)
		rows[i] = row
	}
	return rows
}

func TestBatchInsert_SpansChunks(t *testing.T) {
	ctx := context.Background()
	m := createMemoryManager(t)
	s := NewNotificationStore(m, zaptest.NewLogger(t))

	rows := createNotificationRows(t, batchChunkSize*2+7)
	require.NoError(t, m.BatchInsert(ctx, KindNotification, rows))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(rows), n)
}

func TestBatchInsert_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	m := createMemoryManager(t)
	s := NewNotificationStore(m, zaptest.NewLogger(t))

	rows := createNotificationRows(t, batchChunkSize+10)
	// A duplicate primary key in the second chunk fails after the first
	// chunk has already been written to the transaction.
	rows = append(rows, rows[0])

	err := m.BatchInsert(ctx, KindNotification, rows)
	require.Error(t, err)
	var opErr *OpError
	assert.ErrorAs(t, err, &opErr)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a failed batch must not leave partial rows")
}

func TestBatchInsert_Empty(t *testing.T) {
	m := createMemoryManager(t)
	assert.NoError(t, m.BatchInsert(context.Background(), KindNotification, nil))
}

func TestBatchDelete(t *testing.T) {
	ctx := context.Background()
	m := createMemoryManager(t)
	s := NewNotificationStore(m, zaptest.NewLogger(t))

	rows := createNotificationRows(t, batchChunkSize+20)
	require.NoError(t, m.BatchInsert(ctx, KindNotification, rows))

	ids := make([]string, 0, len(rows)-5)
	for _, r := range rows[5:] {
		ids = append(ids, r["id"].(string))
	}

	deleted, err := m.BatchDelete(ctx, KindNotification, IDsIn("id", ids)...)
	require.NoError(t, err)
	assert.Equal(t, int64(len(ids)), deleted)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	deleted, err = m.BatchDelete(ctx, KindNotification)
	require.NoError(t, err)
	assert.Zero(t, deleted, "no predicates deletes nothing")

	deleted, err = m.BatchDelete(ctx, KindNotification, Where(""))
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted, "an empty clause matches every row")
}
