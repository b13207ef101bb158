package consensus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/duet/internal/platform/errors"
	"github.com/louisbranch/duet/internal/services/duet/storage"
)

type memoryStore struct {
	mu     sync.Mutex
	rounds map[string]int
	votes  map[string]map[int]map[string]int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rounds: map[string]int{}, votes: map[string]map[int]map[string]int{}}
}

func (m *memoryStore) current(sessionID string) int {
	if r, ok := m.rounds[sessionID]; ok {
		return r
	}
	return 1
}

func (m *memoryStore) CastVote(_ context.Context, sessionID string, round int, participantID string, level int) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if round != m.current(sessionID) {
		return nil, storage.ErrVoteRoundStale
	}
	if m.votes[sessionID] == nil {
		m.votes[sessionID] = map[int]map[string]int{}
	}
	if m.votes[sessionID][round] == nil {
		m.votes[sessionID][round] = map[string]int{}
	}
	if _, ok := m.votes[sessionID][round][participantID]; ok {
		return nil, storage.ErrVoteAlreadyCast
	}
	m.votes[sessionID][round][participantID] = level
	out := map[string]int{}
	for k, v := range m.votes[sessionID][round] {
		out[k] = v
	}
	return out, nil
}

func (m *memoryStore) AdvanceVoteRound(_ context.Context, sessionID string, round int, clear bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if round != m.current(sessionID) {
		return storage.ErrVoteRoundStale
	}
	if clear && m.votes[sessionID] != nil {
		delete(m.votes[sessionID], round)
	}
	m.rounds[sessionID] = round + 1
	return nil
}

func (m *memoryStore) CurrentVoteRound(_ context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current(sessionID), nil
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestVoter() (*Voter, *memoryStore) {
	store := newMemoryStore()
	v := NewVoter(store)
	v.Now = func() time.Time { return now }
	return v, store
}

func TestResolveAllLevelPairs(t *testing.T) {
	for a := 1; a <= 3; a++ {
		for b := 1; b <= 3; b++ {
			t.Run(fmt.Sprintf("%d-%d", a, b), func(t *testing.T) {
				out := Resolve(4, map[string]int{"a": a, "b": b}, now, time.Second)
				if a == b {
					if out.Status != StatusAgreed || out.Level != a || out.NextRound != 5 || !out.UnlockAt.Equal(now.Add(time.Second)) {
						t.Fatalf("outcome = %+v, want agreed on %d", out, a)
					}
					return
				}
				if out.Status != StatusMismatch || out.Level != 0 || out.NextRound != 5 {
					t.Fatalf("outcome = %+v, want mismatch", out)
				}
			})
		}
	}
}

func TestResolvePendingWithOneVote(t *testing.T) {
	out := Resolve(1, map[string]int{"a": 2}, now, time.Second)
	if out.Status != StatusPending || out.NextRound != 1 {
		t.Fatalf("outcome = %+v, want pending", out)
	}
}

func TestVoterMismatchThenAgreement(t *testing.T) {
	ctx := context.Background()
	v, store := newTestVoter()

	if out, err := v.Cast(ctx, "s1", "a", 1, 2); err != nil || out.Status != StatusPending {
		t.Fatalf("first vote = %+v, %v", out, err)
	}
	out, err := v.Cast(ctx, "s1", "b", 1, 3)
	if err != nil {
		t.Fatalf("second vote: %v", err)
	}
	if out.Status != StatusMismatch || out.NextRound != 2 {
		t.Fatalf("round 1 = %+v, want mismatch opening round 2", out)
	}
	if len(store.votes["s1"][1]) != 0 {
		t.Fatalf("round 1 votes = %v, want cleared", store.votes["s1"][1])
	}

	if _, err := v.Cast(ctx, "s1", "a", 1, 2); !errors.Is(err, storage.ErrVoteRoundStale) {
		t.Fatalf("stale vote err = %v, want ErrVoteRoundStale", err)
	}

	if _, err := v.Cast(ctx, "s1", "a", 2, 2); err != nil {
		t.Fatalf("round 2 first vote: %v", err)
	}
	out, err = v.Cast(ctx, "s1", "b", 2, 2)
	if err != nil {
		t.Fatalf("round 2 second vote: %v", err)
	}
	if out.Status != StatusAgreed || out.Level != 2 || out.Round != 2 {
		t.Fatalf("round 2 = %+v, want agreed on level 2", out)
	}
	if !out.UnlockAt.Equal(now.Add(DefaultCountdown)) {
		t.Fatalf("unlock at = %v", out.UnlockAt)
	}
}

func TestVoterRejectsDuplicateAndInvalidLevel(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVoter()
	if _, err := v.Cast(ctx, "s1", "a", 1, 2); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := v.Cast(ctx, "s1", "a", 1, 3); !errors.Is(err, storage.ErrVoteAlreadyCast) {
		t.Fatalf("duplicate err = %v", err)
	}
	for _, level := range []int{0, 4} {
		_, err := v.Cast(ctx, "s1", "b", 1, level)
		if !apperrors.HasCode(err, apperrors.CodeLevelOutOfRange) {
			t.Fatalf("level %d err = %v, want LEVEL_OUT_OF_RANGE", level, err)
		}
	}
}

func TestVoterRestart(t *testing.T) {
	ctx := context.Background()
	v, store := newTestVoter()
	if _, err := v.Cast(ctx, "s1", "a", 1, 1); err != nil {
		t.Fatalf("vote: %v", err)
	}
	next, err := v.Restart(ctx, "s1")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if next != 2 || store.current("s1") != 2 {
		t.Fatalf("next round = %d, store round = %d", next, store.current("s1"))
	}
	if _, err := v.Cast(ctx, "s1", "a", 2, 1); err != nil {
		t.Fatalf("vote after restart: %v", err)
	}
}
