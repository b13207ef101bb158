// Package consensus implements the two-party agreement on a session level.
//
// Each participant casts one vote per round. Equal votes agree on that level;
// different votes clear the round and open the next one.
package consensus

import (
	"context"
	"fmt"
	"maps"
	"time"

	apperrors "github.com/louisbranch/duet/internal/platform/errors"
	"github.com/louisbranch/duet/internal/services/duet/domain/session"
)

// DefaultCountdown is how long clients show the unlock countdown.
const DefaultCountdown = 3 * time.Second

// Status is the state of a vote round after a vote.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAgreed   Status = "agreed"
	StatusMismatch Status = "mismatch"
)

// Outcome describes a vote round after a vote was counted.
type Outcome struct {
	Status Status
	// Level is the agreed level; zero unless agreed.
	Level int
	Round int
	// NextRound is the round that opens after this one closes.
	NextRound int
	// UnlockAt is when clients finish the countdown. Presentation only.
	UnlockAt time.Time
	Votes    map[string]int
}

// Resolve decides a round from its votes. Fewer than two votes is pending.
func Resolve(round int, votes map[string]int, now time.Time, countdown time.Duration) Outcome {
	out := Outcome{Status: StatusPending, Round: round, NextRound: round, Votes: maps.Clone(votes)}
	if len(votes) < 2 {
		return out
	}
	level, first := 0, true
	for _, v := range votes {
		if first {
			level, first = v, false
			continue
		}
		if v != level {
			out.Status = StatusMismatch
			out.NextRound = round + 1
			return out
		}
	}
	out.Status = StatusAgreed
	out.Level = level
	out.NextRound = round + 1
	out.UnlockAt = now.Add(countdown).UTC()
	return out
}

// Store persists votes.
type Store interface {
	CastVote(ctx context.Context, sessionID string, round int, participantID string, level int) (map[string]int, error)
	AdvanceVoteRound(ctx context.Context, sessionID string, round int, clear bool) error
	CurrentVoteRound(ctx context.Context, sessionID string) (int, error)
}

// Voter counts votes against a Store.
type Voter struct {
	Store     Store
	Countdown time.Duration
	Now       func() time.Time
}

// NewVoter builds a voter with the default countdown.
func NewVoter(store Store) *Voter {
	return &Voter{Store: store, Countdown: DefaultCountdown, Now: time.Now}
}

// Cast records a vote and resolves the round when both votes are in. A
// mismatch clears both votes and opens the next round; agreement closes the
// round keeping its votes.
func (v *Voter) Cast(ctx context.Context, sessionID, participantID string, round, level int) (Outcome, error) {
	if level < session.MinLevel || level > session.MaxLevel {
		return Outcome{}, apperrors.WithMetadata(apperrors.CodeLevelOutOfRange,
			fmt.Sprintf("level %d outside [%d, %d]", level, session.MinLevel, session.MaxLevel),
			map[string]string{"Level": fmt.Sprint(level)})
	}
	votes, err := v.Store.CastVote(ctx, sessionID, round, participantID, level)
	if err != nil {
		return Outcome{}, err
	}
	outcome := Resolve(round, votes, v.now(), v.Countdown)
	switch outcome.Status {
	case StatusAgreed:
		err = v.Store.AdvanceVoteRound(ctx, sessionID, round, false)
	case StatusMismatch:
		err = v.Store.AdvanceVoteRound(ctx, sessionID, round, true)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("close vote round %d: %w", round, err)
	}
	return outcome, nil
}

// Restart clears the open round and opens the next one. It is used to
// unstick a round when a participant requests a resync.
func (v *Voter) Restart(ctx context.Context, sessionID string) (int, error) {
	round, err := v.Store.CurrentVoteRound(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if err := v.Store.AdvanceVoteRound(ctx, sessionID, round, true); err != nil {
		return 0, fmt.Errorf("restart vote round %d: %w", round, err)
	}
	return round + 1, nil
}

func (v *Voter) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}
	return v.Now()
}
