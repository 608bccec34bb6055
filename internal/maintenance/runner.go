// Package maintenance runs the retention policy on a cron schedule.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/notchnoti/notchstore/internal/model"
)

// State represents the current state of the runner.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Result describes one retention pass.
type Result struct {
	StartedAt            time.Time     `json:"started_at"`
	Duration             time.Duration `json:"duration"`
	NotificationsDeleted int64         `json:"notifications_deleted"`
	SessionsDeleted      int64         `json:"sessions_deleted"`
	Err                  error         `json:"-"`
}

// Status holds the runner's bookkeeping.
type Status struct {
	State      State
	Scheduled  bool
	LastRun    time.Time
	LastResult Result
	Error      error
}

// NotificationCleaner enforces the notification retention limit.
type NotificationCleaner interface {
	Cleanup(ctx context.Context, keepRecent int) (int64, error)
}

// SessionPruner drops sessions past their maximum age.
type SessionPruner interface {
	DeleteOldSessions(ctx context.Context, olderThanDays int) (int64, error)
}

// runTimeout is the maximum time allowed for a single retention pass.
const runTimeout = 30 * time.Second

// Runner schedules retention passes. Failures are recorded in Status and
// logged; they never stop the schedule.
type Runner struct {
	notifications NotificationCleaner
	sessions      SessionPruner
	policy        model.RetentionConfig
	logger        *zap.Logger

	cron     *cron.Cron
	resultCh chan Result

	// runMu keeps scheduled and manual passes from overlapping.
	runMu   sync.Mutex
	mu      sync.Mutex
	status  Status
	running bool
}

// New creates a Runner for the given repositories and policy.
func New(n NotificationCleaner, s SessionPruner, policy model.RetentionConfig, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("maintenance")
	cl := cronLogger{logger.Sugar()}
	return &Runner{
		notifications: n,
		sessions:      s,
		policy:        policy,
		logger:        logger,
		cron:          cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		resultCh:      make(chan Result, 16),
	}
}

// Start schedules the retention pass. Calling it twice is a no-op.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	_, err := r.cron.AddFunc(r.policy.Schedule, func() {
		r.RunNow(context.Background())
	})
	if err != nil {
		return fmt.Errorf("scheduling retention %q: %w", r.policy.Schedule, err)
	}

	r.cron.Start()
	r.running = true
	r.status.Scheduled = true
	r.logger.Info("retention scheduled",
		zap.String("schedule", r.policy.Schedule),
		zap.Int("keep_notifications", r.policy.KeepNotifications),
		zap.Int("session_max_age_days", r.policy.SessionMaxAgeDays))
	return nil
}

// Stop halts the schedule and waits for a pass in flight to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.status.Scheduled = false
	r.mu.Unlock()

	<-r.cron.Stop().Done()
}

// Results delivers the outcome of every pass. Results are dropped when
// nobody keeps up with the channel.
func (r *Runner) Results() <-chan Result {
	return r.resultCh
}

// Status returns a snapshot of the runner's state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// RunNow performs one retention pass: notification cleanup, then the
// session age limit. Both steps run even if the first fails.
func (r *Runner) RunNow(ctx context.Context) Result {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	r.setState(StateRunning, nil)

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	res := Result{StartedAt: time.Now()}
	var errs []error

	n, err := r.notifications.Cleanup(ctx, r.policy.KeepNotifications)
	if err != nil {
		errs = append(errs, fmt.Errorf("notification cleanup: %w", err))
	}
	res.NotificationsDeleted = n

	s, err := r.sessions.DeleteOldSessions(ctx, r.policy.SessionMaxAgeDays)
	if err != nil {
		errs = append(errs, fmt.Errorf("session pruning: %w", err))
	}
	res.SessionsDeleted = s

	res.Duration = time.Since(res.StartedAt)
	res.Err = errors.Join(errs...)

	if res.Err != nil {
		r.logger.Warn("retention pass failed", zap.Error(res.Err))
	} else {
		r.logger.Info("retention pass complete",
			zap.Int64("notifications_deleted", res.NotificationsDeleted),
			zap.Int64("sessions_deleted", res.SessionsDeleted),
			zap.Duration("took", res.Duration))
	}

	r.finish(res)
	r.sendResult(res)
	return res
}

func (r *Runner) setState(state State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.State = state
	r.status.Error = err
}

func (r *Runner) finish(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.LastRun = res.StartedAt
	r.status.LastResult = res
	r.status.Error = res.Err
	if res.Err != nil {
		r.status.State = StateError
	} else {
		r.status.State = StateIdle
	}
}

// sendResult sends on the result channel without blocking.
func (r *Runner) sendResult(res Result) {
	select {
	case r.resultCh <- res:
	default:
	}
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
