package procedures

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/louisbranch/duet/internal/platform/errors"
	"github.com/louisbranch/duet/internal/services/duet/domain/command"
	"github.com/louisbranch/duet/internal/services/duet/domain/consensus"
	"github.com/louisbranch/duet/internal/services/duet/domain/session"
)

// VoteRequest is one participant's level vote.
type VoteRequest struct {
	SessionID     string
	ParticipantID string
	Round         int
	Level         int
}

// CastVote counts a level vote. Agreement applies the level, starting a
// waiting session with its first turn; a mismatch is recorded so both clients
// vote again in the next round.
func (s *Service) CastVote(ctx context.Context, req VoteRequest) (consensus.Outcome, error) {
	state, err := s.loadMember(ctx, req.SessionID, req.ParticipantID)
	if err != nil {
		return consensus.Outcome{}, err
	}
	if state.Status == session.StatusFinished {
		return consensus.Outcome{}, apperrors.New(apperrors.CodeSessionAlreadyFinished,
			fmt.Sprintf("session %s already finished", state.ID))
	}
	outcome, err := s.voter.Cast(ctx, req.SessionID, req.ParticipantID, req.Round, req.Level)
	if err != nil {
		return consensus.Outcome{}, err
	}

	requestID := command.VoteRequestID(outcome.Round)
	switch outcome.Status {
	case consensus.StatusAgreed:
		if err := s.applyLevel(ctx, req.SessionID, requestID, outcome); err != nil {
			return outcome, err
		}
	case consensus.StatusMismatch:
		_, err := s.execute(ctx, session.CommandRecordMismatch, req.SessionID, command.ActorSystem, requestID,
			session.RecordMismatchPayload{
				VoteRound:     outcome.Round,
				NextVoteRound: outcome.NextRound,
				Votes:         outcome.Votes,
			})
		if err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

// applyLevel commits an agreed level.
func (s *Service) applyLevel(ctx context.Context, sessionID, requestID string, outcome consensus.Outcome) error {
	state, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	payload := session.ChangeLevelPayload{
		Level:     outcome.Level,
		VoteRound: outcome.Round,
		UnlockAt:  outcome.UnlockAt,
	}
	if state.Status == session.StatusWaiting {
		first, ok := state.ByOrdinal(session.OrdinalFirst)
		if !ok {
			return apperrors.New(apperrors.CodeSessionNotActive, "session has no first participant")
		}
		starting := state
		starting.Level = outcome.Level
		choice, err := s.nextTurn(ctx, starting, 1, first.ID)
		if err != nil {
			return err
		}
		payload.FirstTurn = &choice
	}
	if _, err := s.execute(ctx, session.CommandChangeLevel, sessionID, command.ActorSystem, requestID, payload); err != nil {
		return err
	}
	s.logger.Info("level agreed",
		zap.String("session_id", sessionID),
		zap.Int("level", outcome.Level),
		zap.Int("vote_round", outcome.Round),
	)
	return nil
}

// RequestLevelChange asks the other participant to vote on level.
func (s *Service) RequestLevelChange(ctx context.Context, sessionID, participantID, requestID string, level int) (session.State, error) {
	result, err := s.execute(ctx, session.CommandRequestLevelChange, sessionID, participantID, requestID,
		session.RequestLevelChangePayload{Level: level})
	if err != nil {
		return session.State{}, err
	}
	return result.State, nil
}
