package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/notchnoti/notchstore/internal/model"
	"github.com/notchnoti/notchstore/internal/store"
)

// Clock is a settable time source for session tests.
type Clock struct {
	T time.Time
}

// Now returns the clock's current time.
func (c *Clock) Now() time.Time { return c.T }

// Stores bundles a manager with the repositories built on it.
type Stores struct {
	Manager       *store.Manager
	Notifications *store.NotificationStore
	Sessions      *store.SessionAggregator
	Clock         *Clock
}

// NewTestManager creates an in-memory Manager with all migrations applied.
// It automatically closes the manager when the test completes.
func NewTestManager(t *testing.T) *store.Manager {
	t.Helper()

	m := store.NewManager("", store.WithInMemory(), store.WithLogger(zaptest.NewLogger(t)))
	if status := m.Open(); status.State != store.StateOpen {
		t.Fatalf("opening test store: state %s: %v", status.State, status.LastError)
	}

	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return m
}

// NewTestStores creates both repositories on one in-memory manager, with
// the session clock pinned to now.
func NewTestStores(t *testing.T, now time.Time) *Stores {
	t.Helper()

	m := NewTestManager(t)
	clock := &Clock{T: now}
	return &Stores{
		Manager:       m,
		Notifications: store.NewNotificationStore(m, zaptest.NewLogger(t)),
		Sessions: store.NewSessionAggregator(m,
			store.WithClock(clock.Now),
			store.WithSessionLogger(zaptest.NewLogger(t))),
		Clock: clock,
	}
}

// SeedNotifications saves n info notifications one minute apart ending
// at end, titled "n1".."nN" oldest first.
func SeedNotifications(t *testing.T, s *store.NotificationStore, n int, end time.Time) []model.NotificationRecord {
	t.Helper()

	recs := make([]model.NotificationRecord, n)
	for i := range recs {
		recs[i] = model.NotificationRecord{
			ID:        fmt.Sprintf("seed-%d", i+1),
			Timestamp: end.Add(-time.Duration(n-1-i) * time.Minute),
			Title:     fmt.Sprintf("n%d", i+1),
			Message:   "seeded",
			Type:      model.NotificationInfo,
			Priority:  model.PriorityNormal,
		}
	}
	if err := s.SaveBatch(context.Background(), recs); err != nil {
		t.Fatalf("seeding notifications: %v", err)
	}
	return recs
}
