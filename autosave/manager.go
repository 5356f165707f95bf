package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds autosave delays and limits.
type Config struct {
	// Idle is debounce delay restarted by every change.
	Idle time.Duration
	// Ceiling bounds staleness during continuous editing.
	Ceiling time.Duration
	// MaxRetries is number of automatic retries after transient failures.
	MaxRetries int
	// Backoff is multiplied by 2^n for n-th retry.
	Backoff time.Duration
	// RequestTimeout limits a single save round trip, 0 means no limit.
	RequestTimeout time.Duration
}

// DefaultConfig returns stock delays.
func DefaultConfig() Config {
	return Config{
		Idle:           2 * time.Second,
		Ceiling:        30 * time.Second,
		MaxRetries:     3,
		Backoff:        time.Second,
		RequestTimeout: 15 * time.Second,
	}
}

// ErrClosed is returned by operations on closed manager.
var ErrClosed = errors.New("autosave manager is closed")

// Manager owns save state of a single editor instance.
//
// Manager calls Source while holding its own lock, so Source implementations
// must never call back into the Manager synchronously. Persister is called
// without any lock held.
type Manager struct {
	cfg       Config
	src       Source
	persister Persister
	clock     Clock
	log       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	status   Status
	notified Status
	listener func(Status)

	acked   Snapshot
	version int64
	saving  bool
	closed  bool

	idle    Timer
	ceiling Timer
	retry   Timer
	retries int

	conflict *Conflict
	err      error
}

// NewManager creates manager in saved state with version 0. Nil clock means
// system clock.
func NewManager(cfg Config, src Source, persister Persister, clock Clock, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	def := DefaultConfig()
	if cfg.Idle <= 0 {
		cfg.Idle = def.Idle
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = def.Ceiling
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:       cfg,
		src:       src,
		persister: persister,
		clock:     clock,
		log:       log.Named("autosave"),
		ctx:       ctx,
		cancel:    cancel,
		status:    StatusSaved,
		notified:  StatusSaved,
	}
}

// OnStatus installs status listener. Listener is called without locks held,
// once per status transition.
func (m *Manager) OnStatus(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = fn
}

// Status returns current indicator state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Version returns last version acknowledged by the server.
func (m *Manager) Version() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// Conflict returns pending conflict if any.
func (m *Manager) Conflict() (Conflict, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflict == nil {
		return Conflict{}, false
	}
	return *m.conflict, true
}

// Err returns error which put manager into error state.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Acknowledged returns last snapshot accepted by the server.
func (m *Manager) Acknowledged() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked
}

// Reset adopts freshly loaded content as saved state and drops everything
// pending.
func (m *Manager) Reset(snap Snapshot, version int64) {
	m.mu.Lock()
	defer m.unlock()

	m.stopTimers()
	m.acked = snap
	m.version = version
	m.retries = 0
	m.conflict = nil
	m.err = nil
	m.status = StatusSaved
	m.log.Debug("Reset", zap.Int64("version", version))
}

// ScheduleSave is called after every change. It recomputes dirtiness and
// (re)arms the idle and ceiling timers.
func (m *Manager) ScheduleSave() {
	m.mu.Lock()
	defer m.unlock()

	if m.closed {
		return
	}
	dirty := !m.src.Capture().Equal(m.acked)

	switch {
	case m.saving:
		// rechecked when round trip completes
		return
	case m.status == StatusError:
		return
	case m.conflict != nil:
		m.status = StatusUnsaved
		return
	case !dirty:
		if m.idle != nil {
			m.idle.Stop()
			m.idle = nil
		}
		if m.retry == nil {
			m.status = StatusSaved
		}
		return
	}
	m.status = StatusUnsaved
	if m.retry != nil {
		// pending retry will pick the change up
		return
	}
	m.arm()
}

// arm restarts idle timer and starts ceiling timer for a new burst.
func (m *Manager) arm() {
	if m.idle != nil {
		m.idle.Stop()
	}
	m.idle = m.clock.AfterFunc(m.cfg.Idle, func() { m.fire("idle") })
	if m.ceiling == nil {
		m.ceiling = m.clock.AfterFunc(m.cfg.Ceiling, func() { m.fire("ceiling") })
	}
}

func (m *Manager) fire(reason string) {
	m.mu.Lock()
	switch reason {
	case "idle":
		m.idle = nil
	case "ceiling":
		m.ceiling = nil
	case "retry":
		m.retry = nil
	}
	// backoff schedule belongs to the pending retry
	waiting := reason != "retry" && m.retry != nil
	m.mu.Unlock()
	if waiting {
		m.log.Debug("Save deferred to pending retry", zap.String("trigger", reason))
		return
	}

	if err := m.executeSave(m.ctx); err != nil {
		m.log.Debug("Scheduled save failed", zap.String("trigger", reason), zap.Error(err))
	}
}

// SaveNow cancels pending timers and saves immediately.
func (m *Manager) SaveNow(ctx context.Context) error {
	m.mu.Lock()
	if m.idle != nil {
		m.idle.Stop()
		m.idle = nil
	}
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	m.unlock()
	return m.executeSave(ctx)
}

// Retry leaves error state and saves again with fresh retry budget.
func (m *Manager) Retry(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusError {
		m.status = StatusUnsaved
		m.err = nil
	}
	m.retries = 0
	m.unlock()
	return m.SaveNow(ctx)
}

// ResolveConflict accepts server version as the base for the local content
// and saves it, overwriting conflicting revision.
func (m *Manager) ResolveConflict(ctx context.Context, version int64) error {
	m.mu.Lock()
	if m.conflict == nil {
		m.unlock()
		return errors.New("no conflict to resolve")
	}
	m.log.Info("Resolving conflict", zap.Int64("local", m.version), zap.Int64("server", version))
	m.conflict = nil
	m.version = version
	m.retries = 0
	m.unlock()
	return m.SaveNow(ctx)
}

// Close stops timers and cancels in-flight timer driven saves.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.stopTimers()
	m.cancel()
}

func (m *Manager) executeSave(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.unlock()
		return ErrClosed
	}
	if m.saving {
		m.unlock()
		return nil
	}
	if m.conflict != nil {
		c := *m.conflict
		m.unlock()
		return &ConflictError{Markup: c.Markup, Version: c.Version}
	}

	snap := m.src.Prepare()
	if snap.Equal(m.acked) {
		if m.idle != nil {
			m.idle.Stop()
			m.idle = nil
		}
		if m.status != StatusError {
			m.status = StatusSaved
		}
		m.unlock()
		return nil
	}
	if m.idle != nil {
		m.idle.Stop()
		m.idle = nil
	}
	m.saving = true
	m.status = StatusSaving
	req := Request{Snapshot: snap, Version: m.version}
	m.unlock()

	m.log.Debug("Saving", zap.Int64("version", req.Version), zap.Int("markup", len(req.Markup)))
	resp, err := m.send(ctx, req)

	m.mu.Lock()
	defer m.unlock()
	m.saving = false
	return m.complete(snap, resp, err)
}

func (m *Manager) send(ctx context.Context, req Request) (*Response, error) {
	if m.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.RequestTimeout)
		defer cancel()
	}
	resp, err := m.persister.Save(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("empty response from persister")
	}
	return resp, err
}

// complete consumes save outcome, must be called with lock held.
func (m *Manager) complete(snap Snapshot, resp *Response, err error) error {
	var (
		conflict  *ConflictError
		transient *TransientError
	)
	switch {
	case err == nil:
		m.acked = snap
		m.version = resp.Version
		m.retries = 0
		m.err = nil
		m.stopTimers()
		m.log.Debug("Saved", zap.Int64("version", resp.Version), zap.Time("modified", resp.Modified))
		if m.closed {
			m.status = StatusSaved
			return nil
		}
		// changes made during round trip stay unsaved
		if !m.src.Capture().Equal(m.acked) {
			m.status = StatusUnsaved
			m.arm()
			return nil
		}
		m.status = StatusSaved
		return nil

	case errors.As(err, &conflict):
		m.conflict = &Conflict{Markup: conflict.Markup, Version: conflict.Version}
		m.status = StatusUnsaved
		m.stopTimers()
		m.log.Warn("Save conflict", zap.Int64("local", m.version), zap.Int64("server", conflict.Version))
		return err

	case errors.As(err, &transient), errors.Is(err, context.DeadlineExceeded):
		if m.retries < m.cfg.MaxRetries && !m.closed {
			m.retries++
			delay := m.cfg.Backoff * time.Duration(1<<m.retries)
			m.status = StatusUnsaved
			// retry takes over the ceiling
			for _, t := range []*Timer{&m.idle, &m.ceiling} {
				if *t != nil {
					(*t).Stop()
					*t = nil
				}
			}
			if m.retry != nil {
				m.retry.Stop()
			}
			m.retry = m.clock.AfterFunc(delay, func() { m.fire("retry") })
			m.log.Warn("Save failed, will retry", zap.Int("attempt", m.retries), zap.Duration("delay", delay), zap.Error(err))
			return err
		}
		m.fail(err)
		return err

	default:
		m.fail(fmt.Errorf("unable to save document: %w", err))
		return err
	}
}

func (m *Manager) fail(err error) {
	m.err = err
	m.status = StatusError
	m.stopTimers()
	m.log.Error("Save failed", zap.Error(err))
}

func (m *Manager) stopTimers() {
	for _, t := range []*Timer{&m.idle, &m.ceiling, &m.retry} {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
}

// unlock releases the lock and reports status transition to the listener.
func (m *Manager) unlock() {
	st, fn := m.status, m.listener
	changed := st != m.notified
	m.notified = st
	m.mu.Unlock()
	if changed && fn != nil {
		fn(st)
	}
}
