package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/duet/internal/services/duet/domain/session"
	"github.com/louisbranch/duet/internal/services/duet/storage"
)

const sessionColumnsSQL = `id, join_code, language, level, status, phase, turn_holder_id, prompt_id,
	used_prompt_ids, round, evaluated_rounds, finalized_round, target_rounds, response_id,
	responder_id, selection_source, selection_rationale, selection_metadata, pending_level,
	pending_level_by, vote_round, finish_reason, last_seq, phase_changed_at, created_at, updated_at`

// sessionField is one mutable session column and its value for a state.
type sessionField struct {
	column string
	value  func(session.State) (any, error)
}

// monotonicColumns are also advanced outside the journal and never move
// backwards.
var monotonicColumns = map[string]bool{"vote_round": true}

// sessionFields lists the columns CommitActions may rewrite. last_seq and
// updated_at are always written and are not listed.
var sessionFields = []sessionField{
	{"level", func(s session.State) (any, error) { return int64(s.Level), nil }},
	{"status", func(s session.State) (any, error) { return string(s.Status), nil }},
	{"phase", func(s session.State) (any, error) { return string(s.Phase), nil }},
	{"turn_holder_id", func(s session.State) (any, error) { return s.TurnHolderID, nil }},
	{"prompt_id", func(s session.State) (any, error) { return s.PromptID, nil }},
	{"used_prompt_ids", func(s session.State) (any, error) { return encodeStrings(s.UsedPromptIDs) }},
	{"round", func(s session.State) (any, error) { return int64(s.Round), nil }},
	{"evaluated_rounds", func(s session.State) (any, error) { return int64(s.EvaluatedRounds), nil }},
	{"finalized_round", func(s session.State) (any, error) { return int64(s.FinalizedRound), nil }},
	{"response_id", func(s session.State) (any, error) { return s.ResponseID, nil }},
	{"responder_id", func(s session.State) (any, error) { return s.ResponderID, nil }},
	{"selection_source", func(s session.State) (any, error) { return s.SelectionSource, nil }},
	{"selection_rationale", func(s session.State) (any, error) { return s.SelectionRationale, nil }},
	{"selection_metadata", func(s session.State) (any, error) { return encodeMetadata(s.SelectionMetadata) }},
	{"pending_level", func(s session.State) (any, error) { return int64(s.PendingLevel), nil }},
	{"pending_level_by", func(s session.State) (any, error) { return s.PendingLevelBy, nil }},
	{"vote_round", func(s session.State) (any, error) { return int64(s.VoteRound), nil }},
	{"finish_reason", func(s session.State) (any, error) { return s.FinishReason, nil }},
	{"phase_changed_at", func(s session.State) (any, error) { return toMillis(s.PhaseChangedAt), nil }},
}

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode string list: %w", err)
	}
	return string(data), nil
}

func encodeMetadata(values map[string]string) (string, error) {
	if values == nil {
		return "{}", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

// changedSessionFields returns the SET assignments for columns whose value
// differs between prev and next.
func changedSessionFields(prev, next session.State) ([]string, []any, error) {
	var (
		sets []string
		args []any
	)
	for _, f := range sessionFields {
		before, err := f.value(prev)
		if err != nil {
			return nil, nil, err
		}
		after, err := f.value(next)
		if err != nil {
			return nil, nil, err
		}
		if before == after {
			continue
		}
		if monotonicColumns[f.column] {
			sets = append(sets, f.column+" = MAX("+f.column+", ?)")
		} else {
			sets = append(sets, f.column+" = ?")
		}
		args = append(args, after)
	}
	return sets, args, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (session.State, error) {
	var (
		s                                    session.State
		level, round, evaluated, finalized   int64
		target, pendingLevel, voteRound      int64
		lastSeq                              int64
		status, phase, used, metadata        string
		phaseChangedAt, createdAt, updatedAt int64
	)
	if err := row.Scan(
		&s.ID, &s.JoinCode, &s.Language, &level, &status, &phase, &s.TurnHolderID, &s.PromptID,
		&used, &round, &evaluated, &finalized, &target, &s.ResponseID,
		&s.ResponderID, &s.SelectionSource, &s.SelectionRationale, &metadata, &pendingLevel,
		&s.PendingLevelBy, &voteRound, &s.FinishReason, &lastSeq, &phaseChangedAt, &createdAt, &updatedAt,
	); err != nil {
		return session.State{}, err
	}
	s.Level = int(level)
	s.Status = session.Status(status)
	s.Phase = session.Phase(phase)
	s.Round = int(round)
	s.EvaluatedRounds = int(evaluated)
	s.FinalizedRound = int(finalized)
	s.TargetRounds = int(target)
	s.PendingLevel = int(pendingLevel)
	s.VoteRound = int(voteRound)
	s.LastSeq = uint64(lastSeq)
	s.PhaseChangedAt = fromMillis(phaseChangedAt)
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)
	if err := json.Unmarshal([]byte(used), &s.UsedPromptIDs); err != nil {
		return session.State{}, fmt.Errorf("decode used prompt ids: %w", err)
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &s.SelectionMetadata); err != nil {
			return session.State{}, fmt.Errorf("decode selection metadata: %w", err)
		}
	}
	return s, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func loadSession(ctx context.Context, q querier, sessionID string) (session.State, error) {
	row := q.QueryRowContext(ctx, "SELECT "+sessionColumnsSQL+" FROM sessions WHERE id = ?", sessionID)
	state, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return session.State{}, storage.ErrNotFound
	}
	if err != nil {
		return session.State{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	participants, err := listParticipants(ctx, q, sessionID)
	if err != nil {
		return session.State{}, err
	}
	state.Participants = participants
	return state, nil
}

func listParticipants(ctx context.Context, q querier, sessionID string) ([]session.Participant, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id, ordinal, display_name, connected, last_seen_at, joined_at
FROM participants WHERE session_id = ? ORDER BY ordinal`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []session.Participant
	for rows.Next() {
		var (
			p                  session.Participant
			ordinal            string
			connected          int64
			lastSeen, joinedAt int64
		)
		if err := rows.Scan(&p.ID, &ordinal, &p.DisplayName, &connected, &lastSeen, &joinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.SessionID = sessionID
		p.Ordinal = session.Ordinal(ordinal)
		p.Connected = connected != 0
		p.LastSeenAt = fromMillis(lastSeen)
		p.JoinedAt = fromMillis(joinedAt)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read participants: %w", err)
	}
	return out, nil
}

func insertParticipant(ctx context.Context, q querier, p session.Participant) error {
	connected := int64(0)
	if p.Connected {
		connected = 1
	}
	_, err := q.ExecContext(ctx, `
INSERT INTO participants (session_id, id, ordinal, display_name, connected, last_seen_at, joined_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.SessionID, p.ID, string(p.Ordinal), p.DisplayName, connected, toMillis(p.LastSeenAt), toMillis(p.JoinedAt),
	)
	return err
}

// CreateSession inserts a waiting session with its first participant.
func (s *Store) CreateSession(ctx context.Context, state session.State, first session.Participant) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(state.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	used, err := encodeStrings(state.UsedPromptIDs)
	if err != nil {
		return err
	}
	metadata, err := encodeMetadata(state.SelectionMetadata)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return conflictOr(err, "begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO sessions (`+sessionColumnsSQL+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		state.ID, state.JoinCode, state.Language, int64(state.Level), string(state.Status), string(state.Phase),
		state.TurnHolderID, state.PromptID, used, int64(state.Round), int64(state.EvaluatedRounds),
		int64(state.FinalizedRound), int64(state.TargetRounds), state.ResponseID, state.ResponderID,
		state.SelectionSource, state.SelectionRationale, metadata, int64(state.PendingLevel),
		state.PendingLevelBy, int64(state.VoteRound), state.FinishReason, int64(state.LastSeq),
		toMillis(state.PhaseChangedAt), toMillis(state.CreatedAt), toMillis(state.UpdatedAt),
	); err != nil {
		if isConstraintError(err) {
			return storage.ErrConflict
		}
		return conflictOr(err, "insert session")
	}
	first.SessionID = state.ID
	if err := insertParticipant(ctx, tx, first); err != nil {
		return conflictOr(err, "insert participant")
	}
	if err := tx.Commit(); err != nil {
		return conflictOr(err, "commit")
	}
	return nil
}

// JoinSession seats p in the second seat of the waiting session using
// joinCode.
func (s *Store) JoinSession(ctx context.Context, joinCode string, p session.Participant) (session.State, error) {
	if err := s.ready(ctx); err != nil {
		return session.State{}, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return session.State{}, conflictOr(err, "begin tx")
	}
	defer tx.Rollback()

	var sessionID string
	err = tx.QueryRowContext(ctx, "SELECT id FROM sessions WHERE join_code = ? AND status = ?",
		joinCode, string(session.StatusWaiting)).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return session.State{}, storage.ErrJoinCodeInvalid
	}
	if err != nil {
		return session.State{}, conflictOr(err, "find session by join code")
	}

	var seated int64
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM participants WHERE session_id = ?", sessionID).Scan(&seated); err != nil {
		return session.State{}, conflictOr(err, "count participants")
	}
	if seated >= 2 {
		return session.State{}, storage.ErrSessionFull
	}

	p.SessionID = sessionID
	p.Ordinal = session.OrdinalSecond
	if err := insertParticipant(ctx, tx, p); err != nil {
		if isConstraintError(err) {
			return session.State{}, storage.ErrSessionFull
		}
		return session.State{}, conflictOr(err, "insert participant")
	}
	if _, err := tx.ExecContext(ctx, "UPDATE sessions SET updated_at = ? WHERE id = ?", toMillis(p.JoinedAt), sessionID); err != nil {
		return session.State{}, conflictOr(err, "touch session")
	}
	state, err := loadSession(ctx, tx, sessionID)
	if err != nil {
		return session.State{}, err
	}
	if err := tx.Commit(); err != nil {
		return session.State{}, conflictOr(err, "commit")
	}
	return state, nil
}

// LoadSession returns the authoritative state with participants.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (session.State, error) {
	if err := s.ready(ctx); err != nil {
		return session.State{}, err
	}
	return loadSession(ctx, s.sqlDB, sessionID)
}

// TouchParticipant records a liveness ping and reports whether the
// participant was disconnected before it.
func (s *Store) TouchParticipant(ctx context.Context, sessionID, participantID string, at time.Time) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, conflictOr(err, "begin tx")
	}
	defer tx.Rollback()

	var connected int64
	err = tx.QueryRowContext(ctx, "SELECT connected FROM participants WHERE session_id = ? AND id = ?",
		sessionID, participantID).Scan(&connected)
	if errors.Is(err, sql.ErrNoRows) {
		return false, storage.ErrNotFound
	}
	if err != nil {
		return false, conflictOr(err, "load participant")
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE participants SET last_seen_at = MAX(last_seen_at, ?), connected = 1 WHERE session_id = ? AND id = ?",
		toMillis(at), sessionID, participantID,
	); err != nil {
		return false, conflictOr(err, "touch participant")
	}
	if err := tx.Commit(); err != nil {
		return false, conflictOr(err, "commit")
	}
	return connected == 0, nil
}

// MarkStaleDisconnected flags connected participants last seen before cutoff.
func (s *Store) MarkStaleDisconnected(ctx context.Context, sessionID string, cutoff time.Time) ([]session.Participant, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, conflictOr(err, "begin tx")
	}
	defer tx.Rollback()

	participants, err := listParticipants(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	var stale []session.Participant
	for _, p := range participants {
		if !p.Connected || !p.LastSeenAt.Before(cutoff) {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE participants SET connected = 0 WHERE session_id = ? AND id = ? AND last_seen_at < ?",
			sessionID, p.ID, toMillis(cutoff),
		); err != nil {
			return nil, conflictOr(err, "mark participant disconnected")
		}
		p.Connected = false
		stale = append(stale, p)
	}
	if err := tx.Commit(); err != nil {
		return nil, conflictOr(err, "commit")
	}
	return stale, nil
}

// ListActiveSessionIDs returns waiting and active sessions, oldest first.
func (s *Store) ListActiveSessionIDs(ctx context.Context) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT id FROM sessions WHERE status IN (?, ?) ORDER BY created_at, id",
		string(session.StatusWaiting), string(session.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
