package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/louisbranch/duet/internal/services/duet/domain/action"
	"github.com/louisbranch/duet/internal/services/duet/domain/session"
	"github.com/louisbranch/duet/internal/services/duet/storage"
)

const (
	actionColumnsSQL = "session_id, seq, type, actor_id, request_id, command_type, timestamp, payload_json, hash, prev_hash, chain_hash"
	subscribeBatch   = 100
)

// CommitActions appends actions and writes the fields that changed between
// prev and next, guarded by prev.LastSeq.
func (s *Store) CommitActions(ctx context.Context, prev, next session.State, actions []action.Action) ([]action.Action, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, nil
	}
	sessionID := prev.ID

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, conflictOr(err, "begin tx")
	}
	defer tx.Rollback()

	prevChain := ""
	if prev.LastSeq > 0 {
		err := tx.QueryRowContext(ctx, "SELECT chain_hash FROM actions WHERE session_id = ? AND seq = ?",
			sessionID, int64(prev.LastSeq)).Scan(&prevChain)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrConflict
		}
		if err != nil {
			return nil, conflictOr(err, "load previous action")
		}
	}

	sealed := make([]action.Action, 0, len(actions))
	for _, a := range actions {
		if a.SessionID != sessionID {
			return nil, fmt.Errorf("action for session %s in batch for %s", a.SessionID, sessionID)
		}
		sa, err := action.Seal(a, prevChain)
		if err != nil {
			return nil, fmt.Errorf("seal action %d: %w", a.Seq, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO actions ("+actionColumnsSQL+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			sa.SessionID, int64(sa.Seq), string(sa.Type), sa.ActorID, sa.RequestID, sa.Command, toMillis(sa.Timestamp),
			[]byte(sa.PayloadJSON), sa.Hash, sa.PrevHash, sa.ChainHash,
		); err != nil {
			if isConstraintError(err) {
				return nil, storage.ErrConflict
			}
			return nil, conflictOr(err, "append action %d", sa.Seq)
		}
		if err := projectResponse(ctx, tx, sa); err != nil {
			return nil, err
		}
		prevChain = sa.ChainHash
		sealed = append(sealed, sa)
	}

	sets, args, err := changedSessionFields(prev, next)
	if err != nil {
		return nil, err
	}
	last := sealed[len(sealed)-1]
	updatedAt := next.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = last.Timestamp
	}
	sets = append(sets, "last_seq = ?", "updated_at = ?")
	args = append(args, int64(last.Seq), toMillis(updatedAt), sessionID, int64(prev.LastSeq))
	res, err := tx.ExecContext(ctx,
		"UPDATE sessions SET "+strings.Join(sets, ", ")+" WHERE id = ? AND last_seq = ?", args...)
	if err != nil {
		return nil, conflictOr(err, "update session")
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("update session rows: %w", err)
	} else if n == 0 {
		return nil, storage.ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, conflictOr(err, "commit")
	}
	s.notifier.notify(sessionID)
	return sealed, nil
}

// projectResponse keeps the responses table in step with response actions.
func projectResponse(ctx context.Context, tx *sql.Tx, a action.Action) error {
	payload, err := action.Decode(a)
	if err != nil {
		if errors.Is(err, action.ErrUnknownType) {
			return nil
		}
		return fmt.Errorf("decode action %d: %w", a.Seq, err)
	}
	switch p := payload.(type) {
	case *action.ResponseSubmitted:
		if _, err := tx.ExecContext(ctx, `
INSERT INTO responses (id, session_id, round, prompt_id, answer, elapsed_ms, level, responder_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ResponseID, a.SessionID, int64(p.Round), p.PromptID, p.Answer, p.ElapsedMS, int64(p.Level),
			p.ResponderID, toMillis(a.Timestamp),
		); err != nil {
			if isConstraintError(err) {
				return storage.ErrConflict
			}
			return conflictOr(err, "insert response")
		}
	case *action.ResponseEvaluated:
		res, err := tx.ExecContext(ctx, `
UPDATE responses
SET evaluator_id = ?, honesty = ?, attraction = ?, intimacy = ?, surprise = ?, evaluated_at = ?
WHERE id = ? AND session_id = ? AND evaluator_id IS NULL`,
			p.EvaluatorID, p.Honesty, p.Attraction, p.Intimacy, p.Surprise, toMillis(a.Timestamp),
			p.ResponseID, a.SessionID,
		)
		if err != nil {
			if isConstraintError(err) {
				return storage.ErrConflict
			}
			return conflictOr(err, "evaluate response")
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("evaluate response rows: %w", err)
		} else if n == 0 {
			return storage.ErrConflict
		}
	}
	return nil
}

func scanAction(row rowScanner) (action.Action, error) {
	var (
		a       action.Action
		seq, ts int64
		typ     string
		payload []byte
	)
	if err := row.Scan(&a.SessionID, &seq, &typ, &a.ActorID, &a.RequestID, &a.Command, &ts, &payload, &a.Hash, &a.PrevHash, &a.ChainHash); err != nil {
		return action.Action{}, err
	}
	a.Seq = uint64(seq)
	a.Type = action.Type(typ)
	a.Timestamp = fromMillis(ts)
	a.PayloadJSON = payload
	return a, nil
}

func (s *Store) queryActions(ctx context.Context, query string, args ...any) ([]action.Action, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var out []action.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read actions: %w", err)
	}
	return out, nil
}

// ActionsByRequest returns the actions appended for requestID.
func (s *Store) ActionsByRequest(ctx context.Context, sessionID, requestID string) ([]action.Action, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(requestID) == "" {
		return nil, nil
	}
	return s.queryActions(ctx,
		"SELECT "+actionColumnsSQL+" FROM actions WHERE session_id = ? AND request_id = ? ORDER BY seq",
		sessionID, requestID)
}

// ListActions returns up to limit actions after afterSeq in seq order.
func (s *Store) ListActions(ctx context.Context, sessionID string, afterSeq uint64, limit int) ([]action.Action, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = subscribeBatch
	}
	return s.queryActions(ctx,
		"SELECT "+actionColumnsSQL+" FROM actions WHERE session_id = ? AND seq > ? ORDER BY seq LIMIT ?",
		sessionID, int64(afterSeq), limit)
}

// Subscribe streams actions after afterSeq. It wakes on commits made through
// this store and polls at the store's interval otherwise.
func (s *Store) Subscribe(ctx context.Context, sessionID string, afterSeq uint64) (<-chan storage.Change, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	out := make(chan storage.Change)
	go func() {
		defer close(out)
		cursor := afterSeq
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			wake := s.notifier.wait(sessionID)
			batch, err := s.ListActions(ctx, sessionID, cursor, subscribeBatch)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("session feed read failed", zap.String("session_id", sessionID), zap.Error(err))
				select {
				case out <- storage.Change{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			for _, a := range batch {
				select {
				case out <- storage.Change{Action: a}:
					cursor = a.Seq
				case <-ctx.Done():
					return
				}
			}
			if len(batch) == subscribeBatch {
				continue
			}
			select {
			case <-wake:
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
