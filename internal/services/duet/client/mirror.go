package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/louisbranch/duet/internal/platform/timeouts"
	"github.com/louisbranch/duet/internal/services/duet/broadcast"
	"github.com/louisbranch/duet/internal/services/duet/domain/action"
	"github.com/louisbranch/duet/internal/services/duet/domain/session"
)

// Fetcher reads authoritative state over the request/response API.
type Fetcher interface {
	FetchState(ctx context.Context) (session.State, error)
	FetchActions(ctx context.Context, afterSeq uint64) ([]action.Action, error)
}

// Dialer opens the session's push channel.
type Dialer interface {
	Dial(ctx context.Context) (*websocket.Conn, error)
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithPollInterval sets the polling backstop period.
func WithPollInterval(d time.Duration) Option {
	return func(m *Mirror) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithReconnect sets the reconnect policy.
func WithReconnect(policy func() backoff.BackOff) Option {
	return func(m *Mirror) {
		if policy != nil {
			m.reconnect = policy
		}
	}
}

// WithLogger sets the mirror logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Mirror) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithOnChange registers a callback run after every state change.
func WithOnChange(fn func(session.State)) Option {
	return func(m *Mirror) {
		m.onChange = fn
	}
}

// Mirror is a local, read-only copy of a session. It folds pushed actions in
// seq order, ignores duplicates and unknown action types, and fetches any gap
// from the log. The server state always wins.
type Mirror struct {
	fetcher      Fetcher
	logger       *zap.Logger
	pollInterval time.Duration
	reconnect    func() backoff.BackOff
	onChange     func(session.State)

	mu     sync.Mutex
	state  session.State
	loaded bool
}

// NewMirror builds a mirror over fetcher.
func NewMirror(fetcher Fetcher, opts ...Option) *Mirror {
	m := &Mirror{
		fetcher:      fetcher,
		logger:       zap.NewNop(),
		pollInterval: timeouts.ReconcileInterval,
		reconnect: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// State returns a copy of the mirrored session.
func (m *Mirror) State() session.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// AppliedSeq is the seq of the last folded action.
func (m *Mirror) AppliedSeq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LastSeq
}

// Resync replaces local state with the authoritative copy.
func (m *Mirror) Resync(ctx context.Context) error {
	state, err := m.fetcher.FetchState(ctx)
	if err != nil {
		return fmt.Errorf("fetch state: %w", err)
	}
	m.mu.Lock()
	m.state = state
	m.loaded = true
	m.mu.Unlock()
	m.changed(state)
	return nil
}

// Apply folds one pushed action. An action already applied is a no-op; an
// action past a gap triggers a catch-up fetch first.
func (m *Mirror) Apply(ctx context.Context, a action.Action) error {
	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		return m.Resync(ctx)
	}
	applied := m.state.LastSeq
	m.mu.Unlock()

	switch {
	case a.Seq <= applied:
		return nil
	case a.Seq > applied+1:
		return m.CatchUp(ctx)
	}
	return m.fold([]action.Action{a})
}

// CatchUp fetches and folds every action after the applied seq.
func (m *Mirror) CatchUp(ctx context.Context) error {
	m.mu.Lock()
	loaded := m.loaded
	applied := m.state.LastSeq
	m.mu.Unlock()
	if !loaded {
		return m.Resync(ctx)
	}
	actions, err := m.fetcher.FetchActions(ctx, applied)
	if err != nil {
		return fmt.Errorf("fetch actions after %d: %w", applied, err)
	}
	return m.fold(actions)
}

// Reconcile catches up on the log and then compares the result with the
// authoritative state. When both sit at the same seq but disagree on phase,
// turn or round, the local copy is replaced rather than patched.
func (m *Mirror) Reconcile(ctx context.Context) error {
	if err := m.CatchUp(ctx); err != nil {
		return err
	}
	remote, err := m.fetcher.FetchState(ctx)
	if err != nil {
		return fmt.Errorf("fetch state: %w", err)
	}
	m.mu.Lock()
	local := m.state
	diverged := remote.LastSeq == local.LastSeq &&
		(remote.Phase != local.Phase || remote.TurnHolderID != local.TurnHolderID || remote.Round != local.Round)
	if diverged {
		m.state = remote
	}
	m.mu.Unlock()
	if diverged {
		m.logger.Warn("local session diverged, resynced",
			zap.String("session_id", remote.ID),
			zap.Uint64("seq", remote.LastSeq),
			zap.String("local_phase", string(local.Phase)),
			zap.String("remote_phase", string(remote.Phase)),
		)
		m.changed(remote)
	}
	return nil
}

func (m *Mirror) fold(actions []action.Action) error {
	if len(actions) == 0 {
		return nil
	}
	m.mu.Lock()
	next, err := session.FoldAll(m.state, actions)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	moved := next.LastSeq != m.state.LastSeq
	m.state = next
	m.mu.Unlock()
	if moved {
		m.changed(next)
	}
	return nil
}

func (m *Mirror) changed(state session.State) {
	if m.onChange != nil {
		m.onChange(state.Clone())
	}
}

// Run keeps the mirror current until ctx ends: it loads state, follows the
// websocket and reconnects it with backoff, and polls the log every poll
// interval as a backstop for missed pushes.
func (m *Mirror) Run(ctx context.Context, dialer Dialer) error {
	if err := m.Resync(ctx); err != nil {
		m.logger.Warn("initial resync failed", zap.Error(err))
	}

	frames := make(chan broadcast.Frame)
	followDone := make(chan struct{})
	go func() {
		defer close(followDone)
		m.follow(ctx, dialer, frames)
	}()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-followDone
			return nil
		case frame := <-frames:
			if err := m.handleFrame(ctx, frame); err != nil && ctx.Err() == nil {
				m.logger.Warn("apply frame failed", zap.String("type", frame.Type), zap.Error(err))
			}
		case <-ticker.C:
			if err := m.Reconcile(ctx); err != nil && ctx.Err() == nil {
				m.logger.Debug("poll failed", zap.Error(err))
			}
		}
	}
}

func (m *Mirror) handleFrame(ctx context.Context, frame broadcast.Frame) error {
	switch frame.Type {
	case broadcast.FrameJoined:
		var joined broadcast.JoinedPayload
		if err := json.Unmarshal(frame.Payload, &joined); err != nil {
			return err
		}
		if joined.LatestSeq > m.AppliedSeq() {
			return m.CatchUp(ctx)
		}
	case broadcast.FrameAction:
		var payload broadcast.ActionPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return err
		}
		return m.Apply(ctx, payload.Action)
	case broadcast.FrameResync:
		return m.Resync(ctx)
	}
	return nil
}

// follow dials, forwards frames, and redials with backoff until ctx ends.
func (m *Mirror) follow(ctx context.Context, dialer Dialer, frames chan<- broadcast.Frame) {
	policy := m.reconnect()
	for ctx.Err() == nil {
		conn, err := dialer.Dial(ctx)
		if err != nil {
			m.logger.Debug("websocket dial failed", zap.Error(err))
		} else {
			policy.Reset()
			m.read(ctx, conn, frames)
		}
		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			return
		}
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Mirror) read(ctx context.Context, conn *websocket.Conn, frames chan<- broadcast.Frame) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	decoder := json.NewDecoder(conn)
	for {
		var frame broadcast.Frame
		if err := decoder.Decode(&frame); err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				m.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		select {
		case frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}
