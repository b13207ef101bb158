package broadcast

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"
)

const (
	peerQueueSize    = 32
	peerWriteTimeout = 10 * time.Second
)

var (
	errPeerClosed = errors.New("peer closed")
	errSlowPeer   = errors.New("peer send queue full")
)

type deadlineWriter interface {
	SetWriteDeadline(t time.Time) error
}

// peer is one websocket connection. Frames are queued and written by the
// peer's own goroutine so a stalled connection never blocks the sender.
type peer struct {
	w             io.Writer
	encoder       *json.Encoder
	participantID string

	queue    chan Frame
	stopOnce sync.Once
	stopping chan struct{}
	connOnce sync.Once
	done     chan struct{}
}

func newPeer(w io.Writer, participantID string) *peer {
	p := &peer{
		w:             w,
		encoder:       json.NewEncoder(w),
		participantID: participantID,
		queue:         make(chan Frame, peerQueueSize),
		stopping:      make(chan struct{}),
		done:          make(chan struct{}),
	}
	go p.run()
	return p
}

// writeFrame queues frame without blocking. A peer whose queue is full is
// disconnected.
func (p *peer) writeFrame(frame Frame) error {
	select {
	case <-p.stopping:
		return errPeerClosed
	default:
	}
	select {
	case p.queue <- frame:
		return nil
	default:
		p.abort()
		return errSlowPeer
	}
}

func (p *peer) run() {
	defer close(p.done)
	for {
		select {
		case frame := <-p.queue:
			if err := p.write(frame); err != nil {
				p.abort()
				return
			}
		case <-p.stopping:
			for {
				select {
				case frame := <-p.queue:
					if err := p.write(frame); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (p *peer) write(frame Frame) error {
	if dw, ok := p.w.(deadlineWriter); ok {
		_ = dw.SetWriteDeadline(time.Now().Add(peerWriteTimeout))
	}
	return p.encoder.Encode(frame)
}

// close writes the frames already queued, then closes the connection.
func (p *peer) close() {
	p.stop()
	<-p.done
	p.closeConn()
}

// abort closes the connection without flushing the queue.
func (p *peer) abort() {
	p.stop()
	p.closeConn()
}

func (p *peer) stop() {
	p.stopOnce.Do(func() {
		close(p.stopping)
	})
}

func (p *peer) closeConn() {
	p.connOnce.Do(func() {
		if c, ok := p.w.(io.Closer); ok {
			_ = c.Close()
		}
	})
}

// room is the set of peers of one session and the seq delivered to them.
type room struct {
	mu        sync.Mutex
	sessionID string
	cursor    uint64
	peers     map[*peer]struct{}
	stop      func()
	done      chan struct{}
}

func newRoom(sessionID string, cursor uint64) *room {
	return &room{
		sessionID: sessionID,
		cursor:    cursor,
		peers:     make(map[*peer]struct{}),
		done:      make(chan struct{}),
	}
}

// join adds p and returns the last seq the room has delivered.
func (r *room) join(p *peer) uint64 {
	r.mu.Lock()
	r.peers[p] = struct{}{}
	cursor := r.cursor
	r.mu.Unlock()
	return cursor
}

// leave removes p and reports whether the room is now empty.
func (r *room) leave(p *peer) bool {
	r.mu.Lock()
	delete(r.peers, p)
	empty := len(r.peers) == 0
	r.mu.Unlock()
	return empty
}

func (r *room) size() int {
	r.mu.Lock()
	n := len(r.peers)
	r.mu.Unlock()
	return n
}

func (r *room) lastSeq() uint64 {
	r.mu.Lock()
	cursor := r.cursor
	r.mu.Unlock()
	return cursor
}

// advance moves the cursor to seq and returns the peers to deliver to. It
// returns false for a seq the room already delivered.
func (r *room) advance(seq uint64) ([]*peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq <= r.cursor {
		return nil, false
	}
	r.cursor = seq
	return r.snapshotLocked(), true
}

func (r *room) snapshot() []*peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *room) snapshotLocked() []*peer {
	peers := make([]*peer, 0, len(r.peers))
	for p := range r.peers {
		peers = append(peers, p)
	}
	return peers
}

// send queues frame on every peer and returns the peers that were dropped.
func (r *room) send(frame Frame) []*peer {
	var dropped []*peer
	for _, p := range r.snapshot() {
		if err := p.writeFrame(frame); errors.Is(err, errSlowPeer) {
			dropped = append(dropped, p)
		}
	}
	return dropped
}
