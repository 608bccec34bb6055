package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// State is the lifecycle state of the engine owned by a Manager.
type State int

const (
	// StateUnopened means no open has been attempted since construction,
	// Close or Reset.
	StateUnopened State = iota
	// StateOpen means the on-disk store is open (possibly after a rebuild).
	StateOpen
	// StateRecovering is held while the store files are being rebuilt.
	StateRecovering
	// StateDegraded means the manager fell back to an in-memory engine.
	StateDegraded
	// StateFatal means no engine could be opened at all. Reads are empty
	// and writes fail with ErrUnavailable.
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateRecovering:
		return "recovering"
	case StateDegraded:
		return "degraded"
	case StateFatal:
		return "fatal"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a snapshot of the manager's lifecycle bookkeeping.
type Status struct {
	State            State
	Path             string
	InMemoryFallback bool
	Rebuilt          bool
	RebuiltAt        time.Time
	LastError        error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithOpener replaces the function used to open engine handles.
func WithOpener(open Opener) Option {
	return func(m *Manager) {
		if open != nil {
			m.open = open
		}
	}
}

// WithInMemory makes the manager use an in-memory engine from the start.
// Nothing survives Close. Intended for tests and dry runs.
func WithInMemory() Option {
	return func(m *Manager) {
		m.inMemory = true
	}
}

// Manager owns the lifetime of the storage engine. It is the only
// component that opens, rebuilds or tears down the store; repositories
// reach the engine exclusively through its contexts.
//
// Storage failures never escape as panics or exits: a failed open is
// rebuilt, then degraded to memory, then to a null engine.
type Manager struct {
	path     string
	open     Opener
	logger   *zap.Logger
	inMemory bool

	// mu is the exclusion domain around the engine handle. Lifecycle
	// operations hold it exclusively; reads and write contexts share it.
	mu        sync.RWMutex
	db        *sqlx.DB
	state     State
	rebuilt   bool
	rebuiltAt time.Time
	lastErr   error

	fallback atomic.Bool
}

// NewManager returns a manager for the store file at path. The engine is
// opened lazily on first use.
func NewManager(path string, opts ...Option) *Manager {
	m := &Manager{
		path:   path,
		open:   defaultOpener,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path returns the primary store file path.
func (m *Manager) Path() string {
	return m.path
}

// InMemoryFallback reports whether the manager is running on a
// non-durable engine because the on-disk store could not be opened.
func (m *Manager) InMemoryFallback() bool {
	return m.fallback.Load()
}

// Status returns a snapshot of the lifecycle state without opening the store.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		State:            m.state,
		Path:             m.path,
		InMemoryFallback: m.fallback.Load(),
		Rebuilt:          m.rebuilt,
		RebuiltAt:        m.rebuiltAt,
		LastError:        m.lastErr,
	}
}

// Open forces the lazy open and returns the resulting status.
func (m *Manager) Open() Status {
	_, release := m.acquire()
	release()
	return m.Status()
}

// acquire opens the engine if needed and returns the current handle with
// the shared lock held. The caller must invoke release.
func (m *Manager) acquire() (Context, func()) {
	for {
		m.mu.RLock()
		if m.state != StateUnopened {
			return m.contextLocked(), m.mu.RUnlock
		}
		m.mu.RUnlock()

		m.mu.Lock()
		if m.state == StateUnopened {
			m.openLocked()
		}
		m.mu.Unlock()
	}
}

func (m *Manager) contextLocked() Context {
	if m.db == nil {
		return nullContext{}
	}
	return m.db
}

// ReadContext returns the shared read handle, opening the store on first
// use. It never fails. The handle is invalidated by Reset and Close; use
// View to keep lifecycle operations out for the duration of a read.
func (m *Manager) ReadContext() Context {
	c, release := m.acquire()
	release()
	return c
}

// View runs fn against the shared read handle while holding the
// lifecycle lock in shared mode.
func (m *Manager) View(ctx context.Context, fn func(Context) error) error {
	c, release := m.acquire()
	defer release()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(c)
}

// NewWriteContext begins an isolated transaction. The caller must Commit
// or Rollback it; until then lifecycle operations are held off.
func (m *Manager) NewWriteContext(ctx context.Context) (*WriteContext, error) {
	c, release := m.acquire()

	db, ok := c.(*sqlx.DB)
	if !ok {
		return &WriteContext{Context: c, release: release}, nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		release()
		return nil, opError("beginning write", err)
	}
	return &WriteContext{Context: tx, tx: tx, release: release}, nil
}

// RunInWriteContext runs fn inside a fresh write context. It commits when
// fn succeeds and rolls back otherwise. Errors are returned as *OpError.
func (m *Manager) RunInWriteContext(ctx context.Context, op string, fn func(Context) error) error {
	w, err := m.NewWriteContext(ctx)
	if err != nil {
		return err
	}
	// Releases the lifecycle lock if fn panics; a no-op after Commit.
	defer w.Rollback()

	if err := fn(w); err != nil {
		if rbErr := w.Rollback(); rbErr != nil {
			m.logger.Warn("rollback failed", zap.String("op", op), zap.Error(rbErr))
		}
		return opError(op, err)
	}
	if err := w.Commit(); err != nil {
		return opError(op, err)
	}
	return nil
}

// InWriteContext is RunInWriteContext for work that produces a value.
func InWriteContext[T any](
	ctx context.Context,
	m *Manager,
	op string,
	fn func(Context) (T, error),
) (T, error) {
	var out T
	err := m.RunInWriteContext(ctx, op, func(c Context) error {
		v, err := fn(c)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Reset closes the engine, deletes every on-disk file and reopens an
// empty store. For tests and debugging only.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeLocked()

	var err error
	if !m.inMemory {
		err = removeStoreFiles(m.path)
	}

	m.rebuilt = false
	m.rebuiltAt = time.Time{}
	m.lastErr = nil
	m.fallback.Store(false)

	m.openLocked()
	m.logger.Info("store reset", zap.String("path", m.path), zap.Stringer("state", m.state))

	if err != nil {
		return fmt.Errorf("resetting store: %w", err)
	}
	return nil
}

// Close releases the engine. A later use reopens it lazily.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *Manager) closeLocked() error {
	db := m.db
	m.db = nil
	m.state = StateUnopened
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}

// openLocked runs the recovery protocol. It always leaves the manager in
// StateOpen, StateDegraded or StateFatal.
func (m *Manager) openLocked() {
	if m.inMemory {
		db, err := m.tryOpen(inMemoryDSN(), true)
		if err != nil {
			m.enterFatalLocked(err)
			return
		}
		m.db = db
		m.state = StateOpen
		return
	}

	db, err := m.openFile()
	if err == nil {
		m.db = db
		m.state = StateOpen
		m.fallback.Store(false)
		m.logger.Debug("store opened", zap.String("path", m.path))
		return
	}

	m.logger.Warn("store open failed, rebuilding",
		zap.String("path", m.path),
		zap.Error(err))
	m.state = StateRecovering
	m.lastErr = err

	if rmErr := removeStoreFiles(m.path); rmErr != nil {
		m.logger.Warn("removing store files", zap.Error(rmErr))
	}

	db, err = m.openFile()
	if err == nil {
		m.db = db
		m.state = StateOpen
		m.fallback.Store(false)
		m.rebuilt = true
		m.rebuiltAt = time.Now()
		m.logger.Warn("store rebuilt, previous data discarded", zap.String("path", m.path))
		return
	}

	m.logger.Error("store rebuild failed, falling back to in-memory store",
		zap.String("path", m.path),
		zap.Error(err))
	m.lastErr = err
	m.fallback.Store(true)

	db, memErr := m.tryOpen(inMemoryDSN(), true)
	if memErr != nil {
		m.enterFatalLocked(memErr)
		return
	}
	m.db = db
	m.state = StateDegraded
}

func (m *Manager) enterFatalLocked(err error) {
	m.logger.Error("no storage engine available, continuing without storage", zap.Error(err))
	m.db = nil
	m.state = StateFatal
	m.lastErr = err
	m.fallback.Store(true)
}

func (m *Manager) openFile() (*sqlx.DB, error) {
	if dir := filepath.Dir(m.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}
	return m.tryOpen(fileDSN(m.path), false)
}

// tryOpen converts a panicking driver into an ordinary open failure.
func (m *Manager) tryOpen(dsn string, inMemory bool) (db *sqlx.DB, err error) {
	defer func() {
		if r := recover(); r != nil {
			db = nil
			err = fmt.Errorf("opening store panicked: %v", r)
		}
	}()
	return openEngine(m.open, dsn, inMemory)
}
