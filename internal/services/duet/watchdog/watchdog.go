// Package watchdog reconciles active sessions on a fixed interval.
//
// Every active session owns one timer. A session change restarts it, so a
// busy session is reconciled one interval after its last change and an idle
// one every interval. A slower sweep over the store arms sessions that were
// never seen in this process and drops timers of sessions that ended.
package watchdog

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/louisbranch/duet/internal/platform/timeouts"
	"github.com/louisbranch/duet/internal/services/duet/eventbus"
	"github.com/louisbranch/duet/internal/services/duet/procedures"
	"github.com/louisbranch/duet/internal/services/duet/storage"
)

const (
	defaultSweepInterval = 30 * time.Second
	dueQueueSize         = 256
)

// Reconciler runs one recovery pass for a session.
type Reconciler interface {
	Reconcile(ctx context.Context, sessionID string) (procedures.Reconciliation, error)
}

// Lister lists sessions that still need reconciling.
type Lister interface {
	ListActiveSessionIDs(ctx context.Context) ([]string, error)
}

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithInterval sets the per-session reconcile interval.
func WithInterval(d time.Duration) Option {
	return func(w *Watchdog) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithSweepInterval sets how often the store is listed for active sessions.
func WithSweepInterval(d time.Duration) Option {
	return func(w *Watchdog) {
		if d > 0 {
			w.sweepInterval = d
		}
	}
}

// WithLogger sets the watchdog logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watchdog) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Watchdog schedules reconcile passes.
type Watchdog struct {
	reconciler    Reconciler
	lister        Lister
	logger        *zap.Logger
	interval      time.Duration
	sweepInterval time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	queued map[string]bool
	closed bool
	due    chan string
}

// New builds a watchdog.
func New(reconciler Reconciler, lister Lister, opts ...Option) *Watchdog {
	w := &Watchdog{
		reconciler:    reconciler,
		lister:        lister,
		logger:        zap.NewNop(),
		interval:      timeouts.ReconcileInterval,
		sweepInterval: defaultSweepInterval,
		timers:        make(map[string]*time.Timer),
		queued:        make(map[string]bool),
		due:           make(chan string, dueQueueSize),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Attach arms timers from session changes on bus and forgets finished
// sessions. The returned func detaches.
func (w *Watchdog) Attach(bus *eventbus.Bus) func() {
	changed := bus.Subscribe(eventbus.TypeSessionChanged, func(evt eventbus.Event) {
		w.Arm(evt.SessionID())
	})
	finished := bus.Subscribe(eventbus.TypeSessionFinished, func(evt eventbus.Event) {
		w.Forget(evt.SessionID())
	})
	return func() {
		bus.Unsubscribe(changed)
		bus.Unsubscribe(finished)
	}
}

// Arm starts or restarts the session's timer.
func (w *Watchdog) Arm(sessionID string) {
	if sessionID == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.timers[sessionID]; ok {
		t.Reset(w.interval)
		return
	}
	w.timers[sessionID] = time.AfterFunc(w.interval, func() { w.enqueue(sessionID) })
}

// Forget stops the session's timer.
func (w *Watchdog) Forget(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[sessionID]; ok {
		t.Stop()
		delete(w.timers, sessionID)
	}
}

// Tracked returns how many sessions have a timer.
func (w *Watchdog) Tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timers)
}

func (w *Watchdog) enqueue(sessionID string) {
	w.mu.Lock()
	if w.closed || w.queued[sessionID] {
		w.mu.Unlock()
		return
	}
	w.queued[sessionID] = true
	w.mu.Unlock()

	select {
	case w.due <- sessionID:
	default:
		// Full queue; the next sweep picks the session up again.
		w.mu.Lock()
		delete(w.queued, sessionID)
		w.mu.Unlock()
		w.logger.Warn("watchdog queue full", zap.String("session_id", sessionID))
	}
}

// Run processes due sessions until ctx ends. It sweeps the store once on
// start and then every sweep interval.
func (w *Watchdog) Run(ctx context.Context) error {
	defer w.stop()

	w.sweep(ctx)
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sessionID := <-w.due:
			w.mu.Lock()
			delete(w.queued, sessionID)
			w.mu.Unlock()
			if w.reconcile(ctx, sessionID) {
				w.rearm(sessionID)
			}
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// reconcile runs one pass and reports whether the session should stay armed.
func (w *Watchdog) reconcile(ctx context.Context, sessionID string) bool {
	out, err := w.reconciler.Reconcile(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		w.Forget(sessionID)
		return false
	}
	if err != nil && ctx.Err() == nil {
		w.logger.Warn("reconcile failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	if out.Forced || out.Drained || len(out.Disconnected) > 0 {
		w.logger.Info("session reconciled",
			zap.String("session_id", sessionID),
			zap.Bool("drained", out.Drained),
			zap.Bool("forced", out.Forced),
			zap.Strings("disconnected", out.Disconnected),
		)
	}
	return true
}

// rearm restarts a timer that is still tracked.
func (w *Watchdog) rearm(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.timers[sessionID]; ok {
		t.Reset(w.interval)
	}
}

func (w *Watchdog) sweep(ctx context.Context) {
	if w.lister == nil {
		return
	}
	ids, err := w.lister.ListActiveSessionIDs(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("list active sessions failed", zap.Error(err))
		}
		return
	}
	active := make(map[string]bool, len(ids))
	for _, id := range ids {
		active[id] = true
	}

	w.mu.Lock()
	for id, t := range w.timers {
		if !active[id] {
			t.Stop()
			delete(w.timers, id)
		}
	}
	w.mu.Unlock()

	for id := range active {
		w.mu.Lock()
		_, armed := w.timers[id]
		w.mu.Unlock()
		if !armed {
			w.Arm(id)
		}
	}
}

func (w *Watchdog) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
}
