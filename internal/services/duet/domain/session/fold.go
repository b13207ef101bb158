package session

import (
	"errors"
	"fmt"

	"github.com/louisbranch/duet/internal/services/duet/domain/action"
)

// Fold applies an action to session state.
//
// Fold is idempotent: an action whose seq is at or below LastSeq is ignored,
// and every case also checks the round it belongs to so replays of unsequenced
// actions leave state unchanged. Unknown action types only advance LastSeq.
func Fold(state State, a action.Action) (State, error) {
	if a.Seq != 0 && a.Seq <= state.LastSeq {
		return state, nil
	}
	payload, err := action.Decode(a)
	if err != nil && !errors.Is(err, action.ErrUnknownType) {
		return state, fmt.Errorf("session fold %s: %w", a.Type, err)
	}
	state = state.Clone()

	switch p := payload.(type) {
	case *action.PromptAnswered:
		if p.Round == state.Round && state.Phase == PhaseCardDisplay {
			state.setPhase(PhaseResponseInput, a)
		}
	case *action.ResponseSubmitted:
		if p.Round == state.Round && (state.Phase == PhaseCardDisplay || state.Phase == PhaseResponseInput) {
			state.ResponseID = p.ResponseID
			state.ResponderID = p.ResponderID
			state.TurnHolderID = p.EvaluatorID
			state.setPhase(PhaseEvaluation, a)
		}
	case *action.ResponseEvaluated:
		// The evaluation itself lives on the response; the session only
		// changes when the evaluation is finalized.
	case *action.EvaluationFinalized:
		if p.Round == state.Round && state.FinalizedRound < p.Round {
			state.FinalizedRound = p.Round
			state.EvaluatedRounds = max(state.EvaluatedRounds, p.EvaluatedRounds)
		}
	case *action.TurnAdvanced:
		if p.Round > state.Round && state.Status != StatusFinished {
			state.Status = StatusActive
			state.Round = p.Round
			state.PromptID = p.PromptID
			if !state.PromptUsed(p.PromptID) {
				state.UsedPromptIDs = append(state.UsedPromptIDs, p.PromptID)
			}
			state.TurnHolderID = p.HolderID
			state.ResponseID = ""
			state.ResponderID = ""
			state.SelectionSource = p.Source
			state.SelectionRationale = p.Rationale
			state.SelectionMetadata = p.Metadata
			state.setPhase(PhaseCardDisplay, a)
		}
	case *action.LevelChanged:
		if state.Status != StatusFinished {
			state.Level = p.Level
			state.PendingLevel = 0
			state.PendingLevelBy = ""
			state.VoteRound = max(state.VoteRound, p.VoteRound+1)
			if state.Status == StatusWaiting {
				state.Status = StatusActive
			}
		}
	case *action.SessionFinished:
		if state.Status != StatusFinished {
			state.Status = StatusFinished
			state.FinishReason = p.Reason
			state.TurnHolderID = ""
			state.setPhase(PhaseFinalReport, a)
		}
	case *action.LevelChangeRequested:
		if state.Status == StatusActive {
			state.PendingLevel = p.Level
			state.PendingLevelBy = p.RequesterID
		}
	case *action.LevelMismatch:
		state.VoteRound = max(state.VoteRound, p.NextVoteRound)
	}

	if a.Seq > state.LastSeq {
		state.LastSeq = a.Seq
	}
	if a.Timestamp.After(state.UpdatedAt) {
		state.UpdatedAt = a.Timestamp
	}
	return state, nil
}

// FoldAll applies actions in order.
func FoldAll(state State, actions []action.Action) (State, error) {
	var err error
	for _, a := range actions {
		state, err = Fold(state, a)
		if err != nil {
			return state, err
		}
	}
	return state, nil
}

func (s *State) setPhase(phase Phase, a action.Action) {
	if s.Phase == phase {
		return
	}
	s.Phase = phase
	s.PhaseChangedAt = a.Timestamp
}
