package procedures

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/louisbranch/duet/internal/services/duet/domain/session"
	"github.com/louisbranch/duet/internal/services/duet/eventbus"
	"github.com/louisbranch/duet/internal/services/duet/storage"
)

// Reconciliation reports what one reconcile pass changed.
type Reconciliation struct {
	// Drained is set when a finalized evaluation was advanced.
	Drained bool
	// Disconnected lists participants whose liveness lapsed in this pass.
	Disconnected []string
	// Forced is set when a stalled evaluation was advanced without a score.
	Forced bool
}

// DetectDisconnected flags participants whose last ping is older than the
// liveness window and announces each of them.
func (s *Service) DetectDisconnected(ctx context.Context, sessionID string) ([]string, error) {
	now := s.clock()
	stale, err := s.store.MarkStaleDisconnected(ctx, sessionID, now.Add(-s.liveness))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(stale))
	for _, p := range stale {
		ids = append(ids, p.ID)
		s.publish(eventbus.NewParticipantDisconnected(sessionID, p.ID, now))
		s.logger.Info("participant disconnected",
			zap.String("session_id", sessionID),
			zap.String("participant_id", p.ID),
		)
	}
	return ids, nil
}

// RepairStuck force-advances an evaluation that stalled past the soft
// deadline. It reports whether the session moved.
func (s *Service) RepairStuck(ctx context.Context, sessionID string) (bool, error) {
	state, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if state.Status != session.StatusActive || state.Phase != session.PhaseEvaluation {
		return false, nil
	}
	if s.clock().Sub(state.PhaseChangedAt) < s.evaluationStall {
		return false, nil
	}
	next, err := s.AdvanceRound(ctx, sessionID, state.Round, true)
	if err != nil {
		return false, err
	}
	return next.LastSeq != state.LastSeq, nil
}

// Reconcile runs every recovery step for a session: it drains a finalized
// evaluation, marks lapsed participants, and repairs a stalled evaluation.
// Steps run independently; their errors are joined.
func (s *Service) Reconcile(ctx context.Context, sessionID string) (Reconciliation, error) {
	var (
		out  Reconciliation
		errs []error
	)
	state, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return out, err
	}
	if state.Status == session.StatusFinished {
		return out, nil
	}
	if state.AdvancePending() {
		next, err := s.AdvanceRound(ctx, sessionID, state.Round, false)
		if err != nil {
			errs = append(errs, err)
		} else {
			out.Drained = next.LastSeq != state.LastSeq
		}
	}
	disconnected, err := s.DetectDisconnected(ctx, sessionID)
	if err != nil {
		errs = append(errs, err)
	}
	out.Disconnected = disconnected
	forced, err := s.RepairStuck(ctx, sessionID)
	if err != nil {
		errs = append(errs, err)
	}
	out.Forced = forced
	return out, errors.Join(errs...)
}

// ForceResync restarts a stuck level vote and asks both clients to reload.
// Concurrent requests for one session share a single pass.
func (s *Service) ForceResync(ctx context.Context, sessionID, participantID string) (session.State, error) {
	if _, err := s.loadMember(ctx, sessionID, participantID); err != nil {
		return session.State{}, err
	}
	_, err, _ := s.resync.Do(sessionID, func() (any, error) {
		state, err := s.store.LoadSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if state.Status == session.StatusWaiting || state.PendingLevel != 0 {
			round, err := s.voter.Restart(ctx, sessionID)
			switch {
			case errors.Is(err, storage.ErrVoteRoundStale):
				s.logger.Debug("vote round moved during resync", zap.String("session_id", sessionID))
			case err != nil:
				return nil, err
			default:
				s.logger.Info("vote round restarted", zap.String("session_id", sessionID), zap.Int("vote_round", round))
			}
		}
		s.publish(eventbus.NewResyncRequired(sessionID, participantID, ReasonForced, s.clock()))
		return nil, nil
	})
	if err != nil {
		return session.State{}, err
	}
	state, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return session.State{}, err
	}
	return state, nil
}

