package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notchnoti/notchstore/internal/model"
	"github.com/notchnoti/notchstore/internal/store"
	"github.com/notchnoti/notchstore/tests/testutil"
)

// setupStore writes a config pointing at a temp store, seeds it and
// returns the config path.
func setupStore(t *testing.T, notifications int) string {
	t.Helper()
	dir := t.TempDir()

	cfg := model.DefaultAppConfig()
	cfg.Storage.Dir = filepath.Join(dir, "data")
	cfg.Log.Level = "error"
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, model.SaveConfig(cfgPath, cfg))

	m := store.NewManager(cfg.Storage.Path())
	defer m.Close()

	ns := store.NewNotificationStore(m, nil)
	if notifications > 0 {
		testutil.SeedNotifications(t, ns, notifications, time.Now())
	}

	sessions := store.NewSessionAggregator(m)
	s, err := sessions.CreateSession(context.Background(), "notch")
	require.NoError(t, err)
	require.NoError(t, sessions.AddActivity(context.Background(), s.ID, model.Activity{Tool: "Edit"}))

	return cfgPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decode(t *testing.T, out string, data interface{}) {
	t.Helper()
	resp := Response{Data: data}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "ok", resp.Status)
}

func TestStatusCommand(t *testing.T) {
	cfg := setupStore(t, 4)

	out, err := run(t, "--config", cfg, "--format", "json", "status")
	require.NoError(t, err)

	var report statusReport
	decode(t, out, &report)
	assert.Equal(t, "open", report.State)
	assert.False(t, report.InMemoryFallback)
	assert.Equal(t, 4, report.Notifications)
	require.NotNil(t, report.ActiveSession)
	assert.Equal(t, "notch", report.ActiveSession.ProjectName)

	out, err = run(t, "--config", cfg, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Notifications")
	assert.Contains(t, out, "notch")
}

func TestStatusCommand_RebuildsCorruptStore(t *testing.T) {
	cfgPath := setupStore(t, 0)
	cfg, err := model.LoadConfig(cfgPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfg.Storage.Path(), bytes.Repeat([]byte("junk"), 1024), 0o644))

	out, err := run(t, "--config", cfgPath, "--format", "json", "status")
	require.NoError(t, err)

	var report statusReport
	decode(t, out, &report)
	assert.Equal(t, "open", report.State)
	assert.True(t, report.Rebuilt)
	assert.Zero(t, report.Notifications)
}

func TestNotificationsListCommand(t *testing.T) {
	cfg := setupStore(t, 5)

	out, err := run(t, "--config", cfg, "--format", "json", "notifications", "list", "--size", "2")
	require.NoError(t, err)

	var recs []model.NotificationRecord
	decode(t, out, &recs)
	require.Len(t, recs, 2)
	assert.Equal(t, "n5", recs[0].Title)
	assert.Equal(t, "n4", recs[1].Title)

	out, err = run(t, "--config", cfg, "notifications", "list", "--page", "2", "--size", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "n1")
	assert.NotContains(t, out, "n2")

	_, err = run(t, "--config", cfg, "notifications", "list", "--type", "bogus")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = run(t, "--config", cfg, "notifications", "list", "--page", "-1")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestNotificationsSearchCommand(t *testing.T) {
	cfg := setupStore(t, 12)

	out, err := run(t, "--config", cfg, "--format", "json", "notifications", "search", "n1")
	require.NoError(t, err)

	var recs []model.NotificationRecord
	decode(t, out, &recs)
	// n1, n10, n11, n12
	assert.Len(t, recs, 4)
}

func TestStatsCommands(t *testing.T) {
	cfg := setupStore(t, 0)

	out, err := run(t, "--config", cfg, "--format", "json", "stats", "today")
	require.NoError(t, err)
	var day model.DailySummary
	decode(t, out, &day)
	assert.Equal(t, 1, day.SessionCount)
	assert.Equal(t, 1, day.TotalActivities)
	assert.Equal(t, 1, day.ActivityCounts[model.ActivityEdit])

	out, err = run(t, "--config", cfg, "--format", "json", "stats", "week")
	require.NoError(t, err)
	var trend []model.DailySummary
	decode(t, out, &trend)
	require.Len(t, trend, 7)
	assert.Equal(t, 1, trend[6].SessionCount)

	out, err = run(t, "--config", cfg, "stats", "projects")
	require.NoError(t, err)
	assert.Contains(t, out, "notch")

	out, err = run(t, "--config", cfg, "stats", "week")
	require.NoError(t, err)
	assert.Contains(t, out, "Last 7 days")
}

func TestCleanupCommand(t *testing.T) {
	cfg := setupStore(t, 10)

	out, err := run(t, "--config", cfg, "--format", "json", "cleanup", "--keep", "3")
	require.NoError(t, err)

	var res struct {
		NotificationsDeleted int64 `json:"notifications_deleted"`
		SessionsDeleted      int64 `json:"sessions_deleted"`
	}
	decode(t, out, &res)
	assert.Equal(t, int64(7), res.NotificationsDeleted)
	assert.Zero(t, res.SessionsDeleted)

	out, err = run(t, "--config", cfg, "--format", "json", "status")
	require.NoError(t, err)
	var report statusReport
	decode(t, out, &report)
	assert.Equal(t, 3, report.Notifications)
}

func TestResetCommand(t *testing.T) {
	cfg := setupStore(t, 3)

	_, err := run(t, "--config", cfg, "reset")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = run(t, "--config", cfg, "reset", "--yes")
	require.NoError(t, err)

	out, err := run(t, "--config", cfg, "--format", "json", "status")
	require.NoError(t, err)
	var report statusReport
	decode(t, out, &report)
	assert.Zero(t, report.Notifications)
	assert.Nil(t, report.ActiveSession)
}
