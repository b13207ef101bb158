package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/duet/internal/services/duet/domain/action"
	"github.com/louisbranch/duet/internal/services/duet/domain/command"
	"github.com/louisbranch/duet/internal/services/duet/domain/response"
)

const (
	CommandBeginAnswer        command.Type = "session.begin_answer"
	CommandSubmitResponse     command.Type = "session.submit_response"
	CommandEvaluate           command.Type = "session.evaluate"
	CommandAdvanceTurn        command.Type = "session.advance_turn"
	CommandEnd                command.Type = "session.end"
	CommandChangeLevel        command.Type = "session.change_level"
	CommandRequestLevelChange command.Type = "session.request_level_change"
	CommandRecordMismatch     command.Type = "session.record_level_mismatch"
)

// Rejection codes share their values with the platform error codes.
const (
	RejectInvalidArgument        = "INVALID_ARGUMENT"
	RejectAnswerEmpty            = "ANSWER_EMPTY"
	RejectScoreOutOfRange        = "SCORE_OUT_OF_RANGE"
	RejectLevelOutOfRange        = "LEVEL_OUT_OF_RANGE"
	RejectParticipantUnknown     = "PARTICIPANT_UNKNOWN"
	RejectSelfEvaluation         = "SELF_EVALUATION"
	RejectEvaluationAlreadySet   = "EVALUATION_ALREADY_SET"
	RejectSessionAlreadyFinished = "SESSION_ALREADY_FINISHED"
	RejectSessionNotActive       = "SESSION_NOT_ACTIVE"
	RejectNotTurnHolder          = "NOT_TURN_HOLDER"
	RejectPhaseMismatch          = "PHASE_MISMATCH"
	RejectRoundMismatch          = "ROUND_MISMATCH"
)

func reject(code, format string, args ...any) command.Decision {
	return command.Reject(command.Rejection{Code: code, Message: fmt.Sprintf(format, args...)})
}

// Decide returns the decision for a session command against current state.
func Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}
	switch cmd.Type {
	case CommandBeginAnswer:
		return decideBeginAnswer(state, cmd, now())
	case CommandSubmitResponse:
		return decideSubmitResponse(state, cmd, now())
	case CommandEvaluate:
		return decideEvaluate(state, cmd, now())
	case CommandAdvanceTurn:
		return decideAdvanceTurn(state, cmd, now())
	case CommandEnd:
		return decideEnd(state, cmd, now())
	case CommandChangeLevel:
		return decideChangeLevel(state, cmd, now())
	case CommandRequestLevelChange:
		return decideRequestLevelChange(state, cmd, now())
	case CommandRecordMismatch:
		return decideRecordMismatch(state, cmd, now())
	default:
		return reject(RejectInvalidArgument, "unsupported command %q", cmd.Type)
	}
}

// requireActive rejects commands against sessions that are not in play.
func requireActive(state State) (command.Decision, bool) {
	switch state.Status {
	case StatusActive:
		return command.Decision{}, true
	case StatusFinished:
		return reject(RejectSessionAlreadyFinished, "session %s already finished", state.ID), false
	default:
		return reject(RejectSessionNotActive, "session %s is %s", state.ID, state.Status), false
	}
}

func requireRound(state State, round int) (command.Decision, bool) {
	if round != 0 && round != state.Round {
		return reject(RejectRoundMismatch, "round %d is not current round %d", round, state.Round), false
	}
	return command.Decision{}, true
}

func accept(cmd command.Command, now time.Time, payloads ...action.Payload) command.Decision {
	actions := make([]action.Action, 0, len(payloads))
	for _, p := range payloads {
		a, err := command.NewAction(cmd, p, now)
		if err != nil {
			return reject(RejectInvalidArgument, "%v", err)
		}
		actions = append(actions, a)
	}
	return command.Accept(actions...)
}

func decideBeginAnswer(state State, cmd command.Command, now time.Time) command.Decision {
	if d, ok := requireActive(state); !ok {
		return d
	}
	var payload BeginAnswerPayload
	if err := cmd.Decode(&payload); err != nil {
		return reject(RejectInvalidArgument, "%v", err)
	}
	if cmd.ActorID != state.TurnHolderID {
		return reject(RejectNotTurnHolder, "participant %s is not the turn holder", cmd.ActorID)
	}
	if d, ok := requireRound(state, payload.Round); !ok {
		return d
	}
	if state.Phase != PhaseCardDisplay {
		return reject(RejectPhaseMismatch, "cannot begin answering during %s", state.Phase)
	}
	return accept(cmd, now, action.PromptAnswered{Round: state.Round, PromptID: state.PromptID})
}

func decideSubmitResponse(state State, cmd command.Command, now time.Time) command.Decision {
	if d, ok := requireActive(state); !ok {
		return d
	}
	var payload SubmitResponsePayload
	if err := cmd.Decode(&payload); err != nil {
		return reject(RejectInvalidArgument, "%v", err)
	}
	if cmd.ActorID != state.TurnHolderID {
		return reject(RejectNotTurnHolder, "participant %s is not the turn holder", cmd.ActorID)
	}
	if d, ok := requireRound(state, payload.Round); !ok {
		return d
	}
	if state.Phase != PhaseCardDisplay && state.Phase != PhaseResponseInput {
		return reject(RejectPhaseMismatch, "cannot submit a response during %s", state.Phase)
	}
	responseID := strings.TrimSpace(payload.ResponseID)
	if responseID == "" {
		return reject(RejectInvalidArgument, "response id is required")
	}
	answer := strings.TrimSpace(payload.Answer)
	if answer == "" {
		return reject(RejectAnswerEmpty, "answer is required")
	}
	evaluatorID := state.Other(cmd.ActorID)
	if evaluatorID == "" {
		return reject(RejectParticipantUnknown, "no evaluator seated in session %s", state.ID)
	}

	var payloads []action.Payload
	if state.Phase == PhaseCardDisplay {
		payloads = append(payloads, action.PromptAnswered{Round: state.Round, PromptID: state.PromptID})
	}
	payloads = append(payloads, action.ResponseSubmitted{
		ResponseID:  responseID,
		Round:       state.Round,
		PromptID:    state.PromptID,
		Answer:      answer,
		ElapsedMS:   max(payload.ElapsedMS, 0),
		Level:       state.Level,
		ResponderID: cmd.ActorID,
		EvaluatorID: evaluatorID,
	})
	return accept(cmd, now, payloads...)
}

func decideEvaluate(state State, cmd command.Command, now time.Time) command.Decision {
	// Self-evaluation is an integrity violation and is checked before any
	// other rule so it is reported the same way in every phase.
	if state.ResponderID != "" {
		if err := response.ValidateEvaluator(state.ResponderID, cmd.ActorID); err != nil {
			return reject(RejectSelfEvaluation, "participant %s cannot evaluate their own response", cmd.ActorID)
		}
	}
	if d, ok := requireActive(state); !ok {
		return d
	}
	var payload EvaluatePayload
	if err := cmd.Decode(&payload); err != nil {
		return reject(RejectInvalidArgument, "%v", err)
	}
	if state.Phase != PhaseEvaluation {
		return reject(RejectPhaseMismatch, "cannot evaluate during %s", state.Phase)
	}
	if d, ok := requireRound(state, payload.Round); !ok {
		return d
	}
	if state.FinalizedRound >= state.Round {
		return reject(RejectEvaluationAlreadySet, "round %d already evaluated", state.Round)
	}
	if cmd.ActorID != state.TurnHolderID {
		return reject(RejectNotTurnHolder, "participant %s is not the evaluator", cmd.ActorID)
	}
	if id := strings.TrimSpace(payload.ResponseID); id != "" && id != state.ResponseID {
		return reject(RejectRoundMismatch, "response %s is not the current response", id)
	}
	eval := response.Evaluation{
		Honesty:    payload.Honesty,
		Attraction: payload.Attraction,
		Intimacy:   payload.Intimacy,
		Surprise:   payload.Surprise,
	}
	if err := response.ValidateScores(eval); err != nil {
		return reject(RejectScoreOutOfRange, "%v", err)
	}
	return accept(cmd, now,
		action.ResponseEvaluated{
			ResponseID:  state.ResponseID,
			Round:       state.Round,
			ResponderID: state.ResponderID,
			EvaluatorID: cmd.ActorID,
			Honesty:     eval.Honesty,
			Attraction:  eval.Attraction,
			Intimacy:    eval.Intimacy,
			Surprise:    eval.Surprise,
		},
		action.EvaluationFinalized{
			ResponseID:      state.ResponseID,
			Round:           state.Round,
			EvaluatedRounds: state.EvaluatedRounds + 1,
		},
	)
}

func decideAdvanceTurn(state State, cmd command.Command, now time.Time) command.Decision {
	if d, ok := requireActive(state); !ok {
		return d
	}
	var payload AdvanceTurnPayload
	if err := cmd.Decode(&payload); err != nil {
		return reject(RejectInvalidArgument, "%v", err)
	}
	if payload.ExpectedRound != state.Round {
		return reject(RejectRoundMismatch, "expected round %d but session is at round %d", payload.ExpectedRound, state.Round)
	}
	if state.Phase != PhaseEvaluation {
		return reject(RejectPhaseMismatch, "cannot advance the turn during %s", state.Phase)
	}
	if !payload.Forced && state.FinalizedRound < state.Round {
		return reject(RejectPhaseMismatch, "round %d evaluation is not final", state.Round)
	}

	if state.EvaluatedRounds >= state.TargetRounds {
		return accept(cmd, now, action.SessionFinished{
			Reason:          action.FinishTargetReached,
			Round:           state.Round,
			EvaluatedRounds: state.EvaluatedRounds,
		})
	}
	return decideNextTurn(state, cmd, now, payload.Choice, state.Round+1, payload.Forced)
}

func decideNextTurn(state State, cmd command.Command, now time.Time, choice TurnChoice, round int, forced bool, leading ...action.Payload) command.Decision {
	if choice.Exhausted {
		return accept(cmd, now, append(leading, action.SessionFinished{
			Reason:          action.FinishPromptsExhausted,
			Round:           state.Round,
			EvaluatedRounds: state.EvaluatedRounds,
		})...)
	}
	promptID := strings.TrimSpace(choice.PromptID)
	if promptID == "" {
		return reject(RejectInvalidArgument, "prompt id is required")
	}
	if state.PromptUsed(promptID) {
		return reject(RejectInvalidArgument, "prompt %s was already used", promptID)
	}
	if !state.IsParticipant(choice.HolderID) {
		return reject(RejectParticipantUnknown, "turn holder %s is not in session %s", choice.HolderID, state.ID)
	}
	source := choice.Source
	if source != action.SourceRanked {
		source = action.SourceFallback
	}
	return accept(cmd, now, append(leading, action.TurnAdvanced{
		Round:     round,
		PromptID:  promptID,
		HolderID:  choice.HolderID,
		Source:    source,
		Rationale: choice.Rationale,
		Metadata:  choice.Metadata,
		Forced:    forced,
	})...)
}

func decideEnd(state State, cmd command.Command, now time.Time) command.Decision {
	if state.Status == StatusFinished {
		return reject(RejectSessionAlreadyFinished, "session %s already finished", state.ID)
	}
	if !state.IsParticipant(cmd.ActorID) {
		return reject(RejectParticipantUnknown, "participant %s is not in session %s", cmd.ActorID, state.ID)
	}
	return accept(cmd, now, action.SessionFinished{
		Reason:          action.FinishEnded,
		Round:           state.Round,
		EvaluatedRounds: state.EvaluatedRounds,
	})
}

func validLevel(level int) bool {
	return level >= MinLevel && level <= MaxLevel
}

func decideChangeLevel(state State, cmd command.Command, now time.Time) command.Decision {
	if state.Status == StatusFinished {
		return reject(RejectSessionAlreadyFinished, "session %s already finished", state.ID)
	}
	var payload ChangeLevelPayload
	if err := cmd.Decode(&payload); err != nil {
		return reject(RejectInvalidArgument, "%v", err)
	}
	if !validLevel(payload.Level) {
		return reject(RejectLevelOutOfRange, "level %d outside [%d, %d]", payload.Level, MinLevel, MaxLevel)
	}
	changed := action.LevelChanged{
		Level:         payload.Level,
		PreviousLevel: state.Level,
		VoteRound:     payload.VoteRound,
		UnlockAt:      payload.UnlockAt.UTC(),
	}
	if state.Status == StatusActive {
		return accept(cmd, now, changed)
	}

	if !state.Full() {
		return reject(RejectSessionNotActive, "session %s is waiting for a second participant", state.ID)
	}
	if payload.FirstTurn == nil {
		return reject(RejectInvalidArgument, "first turn is required to start session %s", state.ID)
	}
	return decideNextTurn(state, cmd, now, *payload.FirstTurn, 1, false, changed)
}

func decideRequestLevelChange(state State, cmd command.Command, now time.Time) command.Decision {
	if d, ok := requireActive(state); !ok {
		return d
	}
	var payload RequestLevelChangePayload
	if err := cmd.Decode(&payload); err != nil {
		return reject(RejectInvalidArgument, "%v", err)
	}
	if !state.IsParticipant(cmd.ActorID) {
		return reject(RejectParticipantUnknown, "participant %s is not in session %s", cmd.ActorID, state.ID)
	}
	if !validLevel(payload.Level) {
		return reject(RejectLevelOutOfRange, "level %d outside [%d, %d]", payload.Level, MinLevel, MaxLevel)
	}
	return accept(cmd, now, action.LevelChangeRequested{Level: payload.Level, RequesterID: cmd.ActorID})
}

func decideRecordMismatch(state State, cmd command.Command, now time.Time) command.Decision {
	if state.Status == StatusFinished {
		return reject(RejectSessionAlreadyFinished, "session %s already finished", state.ID)
	}
	var payload RecordMismatchPayload
	if err := cmd.Decode(&payload); err != nil {
		return reject(RejectInvalidArgument, "%v", err)
	}
	if payload.NextVoteRound <= payload.VoteRound {
		return reject(RejectInvalidArgument, "next vote round %d must follow %d", payload.NextVoteRound, payload.VoteRound)
	}
	return accept(cmd, now, action.LevelMismatch{
		VoteRound:     payload.VoteRound,
		NextVoteRound: payload.NextVoteRound,
		Votes:         payload.Votes,
	})
}
