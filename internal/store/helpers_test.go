package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/notchnoti/notchstore/internal/model"
)

// baseTime is a fixed UTC instant that test records are laid out from.
var baseTime = time.Date(2025, time.March, 14, 9, 0, 0, 0, time.UTC)

// createTestManager creates a file-backed manager in a temp dir.
func createTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notchstore.sqlite")
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	m := NewManager(path, opts...)
	t.Cleanup(func() { m.Close() })
	return m
}

// createMemoryManager creates a manager on a private in-memory engine.
func createMemoryManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager("", WithInMemory(), WithLogger(zaptest.NewLogger(t)))
	t.Cleanup(func() { m.Close() })
	return m
}

func createNotificationStore(t *testing.T) *NotificationStore {
	t.Helper()
	return NewNotificationStore(createMemoryManager(t), zaptest.NewLogger(t))
}

// createTestNotification returns a valid record at ts.
func createTestNotification(title string, ts time.Time) model.NotificationRecord {
	return model.NotificationRecord{
		ID:        fmt.Sprintf("n-%s", strings.ReplaceAll(title, " ", "-")),
		Timestamp: ts,
		Title:     title,
		Message:   "message for " + title,
		Type:      model.NotificationInfo,
		Priority:  model.PriorityNormal,
	}
}

// seedNotifications saves n records one minute apart starting at
// baseTime, titled t1..tn.
func seedNotifications(t *testing.T, s *NotificationStore, n int) []model.NotificationRecord {
	t.Helper()
	recs := make([]model.NotificationRecord, n)
	for i := range n {
		recs[i] = createTestNotification(fmt.Sprintf("t%d", i+1), baseTime.Add(time.Duration(i)*time.Minute))
	}
	require.NoError(t, s.SaveBatch(context.Background(), recs))
	return recs
}

func titles(recs []model.NotificationRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Title
	}
	return out
}

// assertSameNotification compares every persisted field of two records.
func assertSameNotification(t *testing.T, want, got model.NotificationRecord) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.True(t, want.Timestamp.Equal(got.Timestamp), "timestamp: want %s, got %s", want.Timestamp, got.Timestamp)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.Message, got.Message)
	assert.Equal(t, want.Type, got.Type)
	assert.Equal(t, want.Priority, got.Priority)
	assert.Equal(t, want.Icon, got.Icon)
	assert.Equal(t, want.Metadata, got.Metadata)
}

// fakeClock is a settable clock for SessionAggregator.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func ptr[T any](v T) *T { return &v }
