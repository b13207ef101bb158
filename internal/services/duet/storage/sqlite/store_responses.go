package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/louisbranch/duet/internal/services/duet/domain/response"
)

// ListResponses returns a session's responses ordered by round.
func (s *Store) ListResponses(ctx context.Context, sessionID string) ([]response.Response, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, round, prompt_id, answer, elapsed_ms, level, responder_id,
       evaluator_id, honesty, attraction, intimacy, surprise, evaluated_at, created_at
FROM responses WHERE session_id = ? ORDER BY round`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []response.Response
	for rows.Next() {
		var (
			r                                       response.Response
			round, elapsedMS, level, createdAt      int64
			evaluatorID                             sql.NullString
			honesty, attraction, intimacy, surprise sql.NullFloat64
			evaluatedAt                             sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &round, &r.PromptID, &r.Answer, &elapsedMS, &level, &r.ResponderID,
			&evaluatorID, &honesty, &attraction, &intimacy, &surprise, &evaluatedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		r.SessionID = sessionID
		r.Round = int(round)
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		r.Level = int(level)
		r.CreatedAt = fromMillis(createdAt)
		if evaluatorID.Valid {
			r.Evaluation = &response.Evaluation{
				Honesty:     honesty.Float64,
				Attraction:  attraction.Float64,
				Intimacy:    intimacy.Float64,
				Surprise:    surprise.Float64,
				EvaluatorID: evaluatorID.String,
			}
			if evaluatedAt.Valid {
				r.Evaluation.EvaluatedAt = fromMillis(evaluatedAt.Int64)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
