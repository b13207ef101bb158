package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/duet/internal/services/duet/storage"
)

// CastVote records a vote in the open round and returns the round's votes.
func (s *Store) CastVote(ctx context.Context, sessionID string, round int, participantID string, level int) (map[string]int, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, conflictOr(err, "begin tx")
	}
	defer tx.Rollback()

	open, err := currentVoteRound(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	if round != open {
		return nil, storage.ErrVoteRoundStale
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO votes (session_id, vote_round, participant_id, level, cast_at) VALUES (?, ?, ?, ?, ?)",
		sessionID, int64(round), participantID, int64(level), toMillis(time.Now()),
	); err != nil {
		if isConstraintError(err) {
			return nil, storage.ErrVoteAlreadyCast
		}
		return nil, conflictOr(err, "insert vote")
	}

	rows, err := tx.QueryContext(ctx, "SELECT participant_id, level FROM votes WHERE session_id = ? AND vote_round = ?",
		sessionID, int64(round))
	if err != nil {
		return nil, conflictOr(err, "list votes")
	}
	votes := make(map[string]int)
	for rows.Next() {
		var (
			id string
			lv int64
		)
		if err := rows.Scan(&id, &lv); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes[id] = int(lv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("read votes: %w", err)
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, conflictOr(err, "commit")
	}
	return votes, nil
}

// AdvanceVoteRound closes round and opens the next one.
func (s *Store) AdvanceVoteRound(ctx context.Context, sessionID string, round int, clear bool) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return conflictOr(err, "begin tx")
	}
	defer tx.Rollback()

	if clear {
		if _, err := tx.ExecContext(ctx, "DELETE FROM votes WHERE session_id = ? AND vote_round = ?", sessionID, int64(round)); err != nil {
			return conflictOr(err, "clear votes")
		}
	}
	res, err := tx.ExecContext(ctx, "UPDATE sessions SET vote_round = ? WHERE id = ? AND vote_round = ?",
		int64(round+1), sessionID, int64(round))
	if err != nil {
		return conflictOr(err, "advance vote round")
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("advance vote round rows: %w", err)
	} else if n == 0 {
		if _, err := currentVoteRound(ctx, tx, sessionID); err != nil {
			return err
		}
		return storage.ErrVoteRoundStale
	}
	if err := tx.Commit(); err != nil {
		return conflictOr(err, "commit")
	}
	return nil
}

// CurrentVoteRound returns the open vote round of a session.
func (s *Store) CurrentVoteRound(ctx context.Context, sessionID string) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	return currentVoteRound(ctx, s.sqlDB, sessionID)
}

func currentVoteRound(ctx context.Context, q querier, sessionID string) (int, error) {
	var round int64
	err := q.QueryRowContext(ctx, "SELECT vote_round FROM sessions WHERE id = ?", sessionID).Scan(&round)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, conflictOr(err, "load vote round")
	}
	return int(round), nil
}
