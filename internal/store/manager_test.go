package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// memoryOnlyOpener fails every on-disk open and lets in-memory opens through.
func memoryOnlyOpener(dsn string) (*sqlx.DB, error) {
	if strings.HasPrefix(dsn, memoryDSN) {
		return defaultOpener(dsn)
	}
	return nil, errors.New("disk unavailable")
}

func failingOpener(string) (*sqlx.DB, error) {
	return nil, errors.New("no engine")
}

func roundTrip(t *testing.T, m *Manager) {
	t.Helper()
	ctx := context.Background()
	s := NewNotificationStore(m, zaptest.NewLogger(t))

	rec := createTestNotification("round trip", baseTime)
	rec.Metadata = map[string]string{"project": "notch"}
	require.NoError(t, s.Save(ctx, rec))

	page, err := s.Fetch(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assertSameNotification(t, rec, page[0])
}

func TestManager_OpensLazily(t *testing.T) {
	m := createTestManager(t)

	assert.Equal(t, StateUnopened, m.Status().State)
	_, err := os.Stat(m.Path())
	assert.True(t, os.IsNotExist(err), "store file should not exist before first use")

	m.ReadContext()

	status := m.Status()
	assert.Equal(t, StateOpen, status.State)
	assert.False(t, status.InMemoryFallback)
	assert.False(t, status.Rebuilt)
	_, err = os.Stat(m.Path())
	assert.NoError(t, err, "store file should exist after first use")
}

func TestManager_CreatesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "store.sqlite")
	m := NewManager(path, WithLogger(zaptest.NewLogger(t)))
	t.Cleanup(func() { m.Close() })

	status := m.Open()
	assert.Equal(t, StateOpen, status.State)
	assert.FileExists(t, path)
}

func TestManager_RebuildsCorruptFile(t *testing.T) {
	m := createTestManager(t)
	garbage := bytes.Repeat([]byte("definitely not a database "), 256)
	require.NoError(t, os.WriteFile(m.Path(), garbage, 0o644))

	status := m.Open()

	assert.Equal(t, StateOpen, status.State)
	assert.True(t, status.Rebuilt)
	assert.False(t, status.RebuiltAt.IsZero())
	assert.False(t, status.InMemoryFallback)
	assert.False(t, m.InMemoryFallback())
	assert.Error(t, status.LastError, "the failed open should be recorded")

	roundTrip(t, m)
}

func TestManager_ZeroByteFile(t *testing.T) {
	m := createTestManager(t)
	require.NoError(t, os.WriteFile(m.Path(), nil, 0o644))

	status := m.Open()

	assert.Equal(t, StateOpen, status.State)
	assert.False(t, m.InMemoryFallback())

	roundTrip(t, m)
}

func TestManager_DegradesToMemory(t *testing.T) {
	m := createTestManager(t, WithOpener(memoryOnlyOpener))

	status := m.Open()

	assert.Equal(t, StateDegraded, status.State)
	assert.True(t, status.InMemoryFallback)
	assert.True(t, m.InMemoryFallback())
	assert.False(t, status.Rebuilt)

	roundTrip(t, m)
}

func TestManager_RecoversFromPanickingOpener(t *testing.T) {
	m := createTestManager(t, WithOpener(func(dsn string) (*sqlx.DB, error) {
		if strings.HasPrefix(dsn, memoryDSN) {
			return defaultOpener(dsn)
		}
		panic("driver exploded")
	}))

	status := m.Open()

	assert.Equal(t, StateDegraded, status.State)
	require.Error(t, status.LastError)
	assert.Contains(t, status.LastError.Error(), "driver exploded")
}

func TestManager_FatalServesEmptyReadsAndFailsWrites(t *testing.T) {
	ctx := context.Background()
	m := createTestManager(t, WithOpener(failingOpener))
	s := NewNotificationStore(m, zaptest.NewLogger(t))
	sessions := NewSessionAggregator(m)

	status := m.Open()
	assert.Equal(t, StateFatal, status.State)
	assert.True(t, m.InMemoryFallback())

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	page, err := s.Fetch(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page)

	got, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	err = s.Save(ctx, createTestNotification("lost", baseTime))
	assert.ErrorIs(t, err, ErrUnavailable)
	var opErr *OpError
	assert.ErrorAs(t, err, &opErr)

	_, err = sessions.CreateSession(ctx, "notch")
	assert.ErrorIs(t, err, ErrUnavailable)

	current, err := sessions.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestManager_Reset(t *testing.T) {
	ctx := context.Background()
	m := createTestManager(t)
	s := NewNotificationStore(m, zaptest.NewLogger(t))
	seedNotifications(t, s, 5)

	require.NoError(t, m.Reset(ctx))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	status := m.Status()
	assert.Equal(t, StateOpen, status.State)
	assert.False(t, status.Rebuilt)
	assert.FileExists(t, m.Path())
}

func TestManager_ResetClearsFallback(t *testing.T) {
	ctx := context.Background()
	calls := 0
	m := createTestManager(t, WithOpener(func(dsn string) (*sqlx.DB, error) {
		calls++
		if calls <= 2 {
			return memoryOnlyOpener(dsn)
		}
		return defaultOpener(dsn)
	}))

	require.Equal(t, StateDegraded, m.Open().State)
	require.NoError(t, m.Reset(ctx))

	assert.Equal(t, StateOpen, m.Status().State)
	assert.False(t, m.InMemoryFallback())
}

func TestManager_ReopenOnDiskClearsFallback(t *testing.T) {
	diskDown := true
	m := createTestManager(t, WithOpener(func(dsn string) (*sqlx.DB, error) {
		if diskDown {
			return memoryOnlyOpener(dsn)
		}
		return defaultOpener(dsn)
	}))

	require.Equal(t, StateDegraded, m.Open().State)
	require.True(t, m.InMemoryFallback())

	diskDown = false
	require.NoError(t, m.Close())
	status := m.Open()

	assert.Equal(t, StateOpen, status.State)
	assert.False(t, status.InMemoryFallback)
	assert.False(t, m.InMemoryFallback())
	assert.FileExists(t, m.Path())
}

func TestManager_CloseReopensLazily(t *testing.T) {
	ctx := context.Background()
	m := createTestManager(t)
	s := NewNotificationStore(m, zaptest.NewLogger(t))
	seedNotifications(t, s, 3)

	require.NoError(t, m.Close())
	assert.Equal(t, StateUnopened, m.Status().State)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "records should survive a close on disk")
}

func TestWriteContext_RollbackDiscards(t *testing.T) {
	ctx := context.Background()
	m := createMemoryManager(t)
	s := NewNotificationStore(m, zaptest.NewLogger(t))

	row, err := prepareNotification(createTestNotification("discarded", baseTime))
	require.NoError(t, err)

	w, err := m.NewWriteContext(ctx)
	require.NoError(t, err)
	_, err = w.NamedExecContext(ctx, KindNotification.insertSQL(), row)
	require.NoError(t, err)
	require.NoError(t, w.Rollback())

	assert.NoError(t, w.Commit(), "finishing twice is a no-op")

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunInWriteContext_ErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	m := createMemoryManager(t)
	s := NewNotificationStore(m, zaptest.NewLogger(t))
	boom := errors.New("boom")

	err := m.RunInWriteContext(ctx, "failing op", func(c Context) error {
		row, err := prepareNotification(createTestNotification("staged", baseTime))
		require.NoError(t, err)
		if _, err := c.NamedExecContext(ctx, KindNotification.insertSQL(), row); err != nil {
			return err
		}
		return boom
	})

	require.ErrorIs(t, err, boom)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "failing op", opErr.Op)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunInWriteContext_PanicReleasesLifecycle(t *testing.T) {
	ctx := context.Background()
	m := createTestManager(t)
	s := NewNotificationStore(m, zaptest.NewLogger(t))

	assert.PanicsWithValue(t, "caller bug", func() {
		_ = m.RunInWriteContext(ctx, "panicking op", func(c Context) error {
			row, err := prepareNotification(createTestNotification("staged", baseTime))
			require.NoError(t, err)
			_, err = c.NamedExecContext(ctx, KindNotification.insertSQL(), row)
			require.NoError(t, err)
			panic("caller bug")
		})
	})

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "staged insert should be rolled back")

	done := make(chan error, 1)
	go func() { done <- m.Reset(ctx) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reset blocked after a panicking write")
	}
	assert.Equal(t, StateOpen, m.Status().State)
}

func TestManager_ViewHonorsCancelledContext(t *testing.T) {
	m := createMemoryManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := m.View(ctx, func(Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestManager_ConcurrentReadsAndWrites(t *testing.T) {
	ctx := context.Background()
	m := createTestManager(t)
	s := NewNotificationStore(m, zaptest.NewLogger(t))

	const writers, perWriter = 4, 10
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter*2)
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				rec := createTestNotification(fmt.Sprintf("w%d-%d", w, i), baseTime)
				errs <- s.Save(ctx, rec)
				_, err := s.Count(ctx)
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, n)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "degraded", StateDegraded.String())
	assert.Equal(t, "state(42)", State(42).String())
}
