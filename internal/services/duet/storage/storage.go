package storage

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/duet/internal/platform/errors"
	"github.com/louisbranch/duet/internal/services/duet/domain/action"
	"github.com/louisbranch/duet/internal/services/duet/domain/prompt"
	"github.com/louisbranch/duet/internal/services/duet/domain/response"
	"github.com/louisbranch/duet/internal/services/duet/domain/session"
)

// ErrNotFound indicates a requested persistence record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrConflict indicates a compare-and-set write found the row changed since it
// was read. Callers reload and retry.
var ErrConflict = apperrors.New(apperrors.CodeConflict, "concurrent update")

// ErrSessionFull indicates a join against a session whose two seats are taken.
var ErrSessionFull = apperrors.New(apperrors.CodeSessionFull, "session already has two participants")

// ErrJoinCodeInvalid indicates no open session uses the join code.
var ErrJoinCodeInvalid = apperrors.New(apperrors.CodeJoinCodeInvalid, "join code does not match an open session")

// ErrVoteRoundStale indicates a vote for a round that already closed.
var ErrVoteRoundStale = apperrors.New(apperrors.CodeVoteRoundStale, "vote round is no longer open")

// ErrVoteAlreadyCast indicates a second vote by the same participant in a round.
var ErrVoteAlreadyCast = apperrors.New(apperrors.CodeVoteAlreadyCast, "participant already voted this round")

// Change is one entry of a session change feed. Err is set when the feed
// failed; the channel closes after it.
type Change struct {
	Action action.Action
	Err    error
}

// SessionStore persists session rows and their participants.
type SessionStore interface {
	// CreateSession inserts a waiting session with its first participant.
	CreateSession(ctx context.Context, state session.State, first session.Participant) error
	// JoinSession seats the second participant of the waiting session using
	// joinCode. Returns ErrJoinCodeInvalid or ErrSessionFull.
	JoinSession(ctx context.Context, joinCode string, p session.Participant) (session.State, error)
	// LoadSession returns the authoritative state with participants.
	LoadSession(ctx context.Context, sessionID string) (session.State, error)
	// TouchParticipant records a liveness ping and marks the participant
	// connected. It reports whether the participant was disconnected before.
	TouchParticipant(ctx context.Context, sessionID, participantID string, at time.Time) (bool, error)
	// MarkStaleDisconnected flags connected participants whose last ping is
	// before cutoff and returns them.
	MarkStaleDisconnected(ctx context.Context, sessionID string, cutoff time.Time) ([]session.Participant, error)
	// ListActiveSessionIDs returns sessions that are waiting or active.
	ListActiveSessionIDs(ctx context.Context) ([]string, error)
}

// ActionStore is the append-only action journal with its change feed.
type ActionStore interface {
	// CommitActions seals and appends actions, writes the changed fields of
	// next under a compare-and-set on prev.LastSeq, and updates the response
	// projection, all in one transaction. Returns ErrConflict when prev is
	// stale.
	CommitActions(ctx context.Context, prev, next session.State, actions []action.Action) ([]action.Action, error)
	// ActionsByRequest returns actions already appended for a request id.
	ActionsByRequest(ctx context.Context, sessionID, requestID string) ([]action.Action, error)
	// ListActions returns up to limit actions with seq greater than afterSeq.
	ListActions(ctx context.Context, sessionID string, afterSeq uint64, limit int) ([]action.Action, error)
	// Subscribe streams actions with seq greater than afterSeq until ctx ends.
	// Delivery is at-least-once and in seq order.
	Subscribe(ctx context.Context, sessionID string, afterSeq uint64) (<-chan Change, error)
}

// ResponseStore reads the response projection.
type ResponseStore interface {
	ListResponses(ctx context.Context, sessionID string) ([]response.Response, error)
}

// VoteStore persists level votes.
type VoteStore interface {
	// CastVote records a vote in the session's open round and returns every
	// vote cast in that round so far.
	CastVote(ctx context.Context, sessionID string, round int, participantID string, level int) (map[string]int, error)
	// AdvanceVoteRound closes round, optionally deleting its votes. Returns
	// ErrVoteRoundStale when round is not the open round.
	AdvanceVoteRound(ctx context.Context, sessionID string, round int, clear bool) error
	// CurrentVoteRound returns the open vote round.
	CurrentVoteRound(ctx context.Context, sessionID string) (int, error)
}

// PromptStore is the prompt inventory.
type PromptStore interface {
	SeedPrompts(ctx context.Context, prompts []prompt.Prompt) error
	ListPrompts(ctx context.Context, level int, language string) ([]prompt.Prompt, error)
}

// Store is the full persistence surface of the service.
type Store interface {
	SessionStore
	ActionStore
	ResponseStore
	VoteStore
	PromptStore
	Close() error
}
