package procedures

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/louisbranch/duet/internal/platform/id"
	"github.com/louisbranch/duet/internal/services/duet/domain/command"
	"github.com/louisbranch/duet/internal/services/duet/domain/engine"
	"github.com/louisbranch/duet/internal/services/duet/domain/prompt"
	"github.com/louisbranch/duet/internal/services/duet/domain/session"
)

// SubmitRequest is a turn holder's answer.
type SubmitRequest struct {
	SessionID     string
	ParticipantID string
	RequestID     string
	// ResponseID is generated when empty.
	ResponseID string
	Round      int
	Answer     string
	Elapsed    time.Duration
}

// EvaluateRequest scores the current round's response.
type EvaluateRequest struct {
	SessionID     string
	ParticipantID string
	RequestID     string
	ResponseID    string
	Round         int
	Honesty       float64
	Attraction    float64
	Intimacy      float64
	Surprise      float64
}

// BeginAnswer moves the turn holder from the card to the answer input.
func (s *Service) BeginAnswer(ctx context.Context, sessionID, participantID, requestID string, round int) (session.State, error) {
	result, err := s.execute(ctx, session.CommandBeginAnswer, sessionID, participantID, requestID,
		session.BeginAnswerPayload{Round: round})
	if err != nil {
		return session.State{}, err
	}
	return result.State, nil
}

// SubmitResponse stores the turn holder's answer and hands the turn to the
// evaluator.
func (s *Service) SubmitResponse(ctx context.Context, req SubmitRequest) (session.State, error) {
	responseID := strings.TrimSpace(req.ResponseID)
	if responseID == "" {
		generated, err := id.NewID()
		if err != nil {
			return session.State{}, fmt.Errorf("generate response id: %w", err)
		}
		responseID = generated
	}
	result, err := s.execute(ctx, session.CommandSubmitResponse, req.SessionID, req.ParticipantID, req.RequestID,
		session.SubmitResponsePayload{
			ResponseID: responseID,
			Round:      req.Round,
			Answer:     req.Answer,
			ElapsedMS:  req.Elapsed.Milliseconds(),
		})
	if err != nil {
		return session.State{}, err
	}
	return result.State, nil
}

// Evaluate scores the current response and advances the round.
func (s *Service) Evaluate(ctx context.Context, req EvaluateRequest) (session.State, error) {
	result, err := s.execute(ctx, session.CommandEvaluate, req.SessionID, req.ParticipantID, req.RequestID,
		session.EvaluatePayload{
			ResponseID: req.ResponseID,
			Round:      req.Round,
			Honesty:    req.Honesty,
			Attraction: req.Attraction,
			Intimacy:   req.Intimacy,
			Surprise:   req.Surprise,
		})
	if err != nil {
		return session.State{}, err
	}
	state := result.State
	if !state.AdvancePending() {
		return state, nil
	}
	advanced, err := s.AdvanceRound(ctx, req.SessionID, state.Round, false)
	if err != nil {
		// The evaluation is committed; the watchdog drains the advance.
		s.logger.Warn("advance after evaluation failed",
			zap.String("session_id", req.SessionID),
			zap.Int("round", state.Round),
			zap.Error(err),
		)
		return state, nil
	}
	return advanced, nil
}

// AdvanceRound moves a session out of the evaluation of expectedRound into the
// next round or the final report. Without forced it only advances a finalized
// evaluation. A session that already left expectedRound is returned as is.
func (s *Service) AdvanceRound(ctx context.Context, sessionID string, expectedRound int, forced bool) (session.State, error) {
	state, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return session.State{}, err
	}
	if state.Status != session.StatusActive || state.Phase != session.PhaseEvaluation || state.Round != expectedRound {
		return state, nil
	}
	if !forced && !state.AdvancePending() {
		return state, nil
	}

	payload := session.AdvanceTurnPayload{ExpectedRound: expectedRound, Forced: forced}
	if state.EvaluatedRounds < state.TargetRounds {
		choice, err := s.nextTurn(ctx, state, expectedRound+1, nextHolder(state, forced))
		if err != nil {
			return state, err
		}
		payload.Choice = choice
	}
	result, err := s.execute(ctx, session.CommandAdvanceTurn, sessionID, command.ActorSystem,
		command.AdvanceRequestID(expectedRound), payload)
	if err != nil {
		if engine.IsNoop(err) {
			return s.store.LoadSession(ctx, sessionID)
		}
		return state, err
	}
	if forced && !result.Duplicate {
		s.logger.Info("forced turn advance",
			zap.String("session_id", sessionID),
			zap.Int("round", expectedRound),
			zap.String("holder_id", result.State.TurnHolderID),
		)
	}
	return result.State, nil
}

// EndSession finishes a session early.
func (s *Service) EndSession(ctx context.Context, sessionID, participantID, requestID string) (session.State, error) {
	result, err := s.execute(ctx, session.CommandEnd, sessionID, participantID, requestID, session.EndPayload{})
	if err != nil {
		return session.State{}, err
	}
	return result.State, nil
}

// nextHolder returns who answers the next round: the participant who just
// evaluated. A forced advance skips a disconnected holder when the other
// participant is connected.
func nextHolder(state session.State, forced bool) string {
	holder := state.TurnHolderID
	if holder == "" {
		if first, ok := state.ByOrdinal(session.OrdinalFirst); ok {
			holder = first.ID
		}
	}
	if !forced {
		return holder
	}
	p, ok := state.Participant(holder)
	if !ok || p.Connected {
		return holder
	}
	if other, ok := state.Participant(state.Other(holder)); ok && other.Connected {
		return other.ID
	}
	return holder
}

// nextTurn selects the prompt for round.
func (s *Service) nextTurn(ctx context.Context, state session.State, round int, holder string) (session.TurnChoice, error) {
	choice, err := s.selector.Next(ctx, prompt.Request{
		SessionID: state.ID,
		Round:     round,
		Level:     state.Level,
		Language:  state.Language,
		Used:      state.UsedPromptIDs,
	})
	if errors.Is(err, prompt.ErrExhausted) {
		return session.TurnChoice{HolderID: holder, Exhausted: true}, nil
	}
	if err != nil {
		return session.TurnChoice{}, fmt.Errorf("select prompt for round %d: %w", round, err)
	}
	return session.TurnChoice{
		PromptID:  choice.Prompt.ID,
		HolderID:  holder,
		Source:    string(choice.Source),
		Rationale: choice.Rationale,
		Metadata:  choice.Metadata,
	}, nil
}
