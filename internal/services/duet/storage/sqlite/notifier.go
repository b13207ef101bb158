package sqlite

import "sync"

// notifier wakes subscribers of a session after a commit. Each wait channel
// is closed once and replaced on the next wait.
type notifier struct {
	mu      sync.Mutex
	waiters map[string]chan struct{}
}

func newNotifier() *notifier {
	return &notifier{waiters: make(map[string]chan struct{})}
}

func (n *notifier) wait(sessionID string) <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.waiters[sessionID]
	if !ok {
		ch = make(chan struct{})
		n.waiters[sessionID] = ch
	}
	return ch
}

func (n *notifier) notify(sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ch, ok := n.waiters[sessionID]; ok {
		close(ch)
		delete(n.waiters, sessionID)
	}
}
