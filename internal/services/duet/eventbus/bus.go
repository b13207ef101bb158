package eventbus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Handler handles one event.
type Handler func(Event)

// Publisher is the publishing side of the bus.
type Publisher interface {
	Publish(Event)
	PublishAll([]Event)
}

type subscription struct {
	id        string
	eventType string
	handler   Handler
}

// Bus is a synchronous pub-sub bus.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string][]subscription
	nextID        atomic.Uint64
	logger        *zap.Logger
}

// New creates a bus. A nil logger discards handler panics.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{subscriptions: make(map[string][]subscription), logger: logger}
}

// Subscribe registers handler for eventType and returns its subscription id.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := fmt.Sprintf("sub-%d", b.nextID.Add(1))
	b.subscriptions[eventType] = append(b.subscriptions[eventType], subscription{
		id:        id,
		eventType: eventType,
		handler:   handler,
	})
	return id
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe("*", handler)
}

// Unsubscribe removes a subscription and reports whether it existed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscriptions {
		for i, sub := range subs {
			if sub.id == id {
				b.subscriptions[eventType] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Publish calls specific handlers, then wildcard handlers, each group in
// registration order.
func (b *Bus) Publish(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.RLock()
	specific := append([]subscription(nil), b.subscriptions[evt.EventType()]...)
	wildcard := append([]subscription(nil), b.subscriptions["*"]...)
	b.mu.RUnlock()

	for _, sub := range specific {
		b.safeCall(sub.handler, evt)
	}
	for _, sub := range wildcard {
		b.safeCall(sub.handler, evt)
	}
}

// PublishAll publishes events in order.
func (b *Bus) PublishAll(events []Event) {
	for _, evt := range events {
		b.Publish(evt)
	}
}

func (b *Bus) safeCall(handler Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event_type", evt.EventType()),
				zap.String("session_id", evt.SessionID()),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	handler(evt)
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subs := range b.subscriptions {
		count += len(subs)
	}
	return count
}
