package broadcast

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/louisbranch/duet/internal/services/duet/domain/action"
	"github.com/louisbranch/duet/internal/services/duet/domain/session"
	"github.com/louisbranch/duet/internal/services/duet/eventbus"
	"github.com/louisbranch/duet/internal/services/duet/storage"
)

var errFeedClosed = errors.New("session feed closed")

// Feed is the store surface the hub reads from.
type Feed interface {
	LoadSession(ctx context.Context, sessionID string) (session.State, error)
	Subscribe(ctx context.Context, sessionID string, afterSeq uint64) (<-chan storage.Change, error)
}

// Pinger records participant liveness for ping frames.
type Pinger interface {
	Ping(ctx context.Context, sessionID, participantID string) error
}

// Subscriber is the subscribing side of the event bus.
type Subscriber interface {
	Subscribe(eventType string, handler eventbus.Handler) string
	Unsubscribe(id string) bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithPinger routes ping frames to p.
func WithPinger(p Pinger) Option {
	return func(h *Hub) {
		h.pinger = p
	}
}

// WithRetry sets the resubscribe policy of room feed workers.
func WithRetry(policy func() backoff.BackOff) Option {
	return func(h *Hub) {
		if policy != nil {
			h.retry = policy
		}
	}
}

// WithClock overrides the hub clock.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// Hub owns the session rooms.
type Hub struct {
	feed   Feed
	pinger Pinger
	logger *zap.Logger
	now    func() time.Time
	retry  func() backoff.BackOff

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	rooms map[string]*room
}

// NewHub builds a hub reading from feed.
func NewHub(feed Feed, logger *zap.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		feed:   feed,
		logger: logger,
		now:    time.Now,
		retry:  defaultRetry,
		ctx:    ctx,
		cancel: cancel,
		rooms:  make(map[string]*room),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func defaultRetry() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	return b
}

// Close disconnects every peer, stops every room worker and waits for them
// to exit.
func (h *Hub) Close() {
	h.cancel()
	h.mu.Lock()
	var peers []*peer
	for _, r := range h.rooms {
		peers = append(peers, r.snapshot()...)
	}
	h.mu.Unlock()
	for _, p := range peers {
		p.abort()
		<-p.done
	}
	h.wg.Wait()
}

// Attach forwards resync and presence events to the rooms and returns a
// function that detaches them.
func (h *Hub) Attach(bus Subscriber) func() {
	ids := []string{
		bus.Subscribe(eventbus.TypeResyncRequired, h.onEvent),
		bus.Subscribe(eventbus.TypeParticipantDisconnected, h.onEvent),
		bus.Subscribe(eventbus.TypeParticipantReconnected, h.onEvent),
	}
	return func() {
		for _, id := range ids {
			bus.Unsubscribe(id)
		}
	}
}

func (h *Hub) onEvent(evt eventbus.Event) {
	r := h.lookup(evt.SessionID())
	if r == nil {
		return
	}
	var frame Frame
	switch e := evt.(type) {
	case eventbus.ResyncRequired:
		frame = Frame{Type: FrameResync, Payload: mustJSON(ResyncPayload{
			SessionID:   e.SessionID(),
			RequestedBy: e.RequestedBy,
			Reason:      e.Reason,
		})}
	case eventbus.ParticipantPresence:
		frame = Frame{Type: FramePresence, Payload: mustJSON(PresencePayload{
			SessionID:     e.SessionID(),
			ParticipantID: e.ParticipantID,
			Connected:     e.EventType() == eventbus.TypeParticipantReconnected,
		})}
	default:
		return
	}
	for _, p := range r.send(frame) {
		h.logger.Warn("slow peer disconnected",
			zap.String("session_id", r.sessionID),
			zap.String("participant_id", p.participantID),
			zap.String("frame_type", frame.Type),
		)
	}
}

// Peers returns the number of peers connected to a session's room.
func (h *Hub) Peers(sessionID string) int {
	r := h.lookup(sessionID)
	if r == nil {
		return 0
	}
	return r.size()
}

func (h *Hub) lookup(sessionID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[sessionID]
}

// enter seats p in the session room, starting the room when it is the first
// peer, and returns the last seq the room delivered.
func (h *Hub) enter(ctx context.Context, sessionID string, p *peer) (*room, uint64, error) {
	sessionID = strings.TrimSpace(sessionID)
	h.mu.Lock()
	if err := h.ctx.Err(); err != nil {
		h.mu.Unlock()
		return nil, 0, err
	}
	if r, ok := h.rooms[sessionID]; ok {
		latest := r.join(p)
		h.mu.Unlock()
		return r, latest, nil
	}
	h.mu.Unlock()

	state, err := h.feed.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[sessionID]; ok {
		return r, r.join(p), nil
	}
	if h.ctx.Err() != nil {
		return nil, 0, h.ctx.Err()
	}
	r := newRoom(sessionID, state.LastSeq)
	roomCtx, stop := context.WithCancel(h.ctx)
	r.stop = stop
	h.rooms[sessionID] = r
	h.wg.Add(1)
	go h.runFeed(roomCtx, r)
	return r, r.join(p), nil
}

// exit removes p, stopping the room when it was the last peer, and closes p.
func (h *Hub) exit(r *room, p *peer) {
	h.mu.Lock()
	if r.leave(p) && h.rooms[r.sessionID] == r {
		delete(h.rooms, r.sessionID)
		r.stop()
	}
	h.mu.Unlock()
	p.close()
}

func (h *Hub) runFeed(ctx context.Context, r *room) {
	defer h.wg.Done()
	defer close(r.done)

	b := h.retry()
	for ctx.Err() == nil {
		changes, err := h.feed.Subscribe(ctx, r.sessionID, r.lastSeq())
		if err == nil {
			err = h.drain(ctx, r, changes, b)
		}
		if ctx.Err() != nil {
			return
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			h.logger.Error("session feed abandoned", zap.String("session_id", r.sessionID), zap.Error(err))
			return
		}
		h.logger.Warn("session feed interrupted",
			zap.String("session_id", r.sessionID),
			zap.Uint64("cursor", r.lastSeq()),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		if !waitRetry(ctx, delay) {
			return
		}
	}
}

func (h *Hub) drain(ctx context.Context, r *room, changes <-chan storage.Change, b backoff.BackOff) error {
	for change := range changes {
		if change.Err != nil {
			return change.Err
		}
		b.Reset()
		h.deliver(r, change.Action)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errFeedClosed
}

func (h *Hub) deliver(r *room, a action.Action) {
	peers, ok := r.advance(a.Seq)
	if !ok {
		return
	}
	frame := Frame{Type: FrameAction, Payload: mustJSON(ActionPayload{Action: a})}
	for _, p := range peers {
		if err := p.writeFrame(frame); err != nil {
			level := zap.DebugLevel
			if errors.Is(err, errSlowPeer) {
				level = zap.WarnLevel
			}
			h.logger.Log(level, "drop action frame",
				zap.String("session_id", r.sessionID),
				zap.String("participant_id", p.participantID),
				zap.Uint64("seq", a.Seq),
				zap.Error(err),
			)
		}
	}
}

func waitRetry(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
