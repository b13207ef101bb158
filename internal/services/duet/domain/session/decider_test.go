package session

import (
	"testing"
	"time"

	"github.com/louisbranch/duet/internal/services/duet/domain/action"
	"github.com/louisbranch/duet/internal/services/duet/domain/command"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func nowFunc() time.Time { return fixedNow }

func waitingState() State {
	return State{
		ID:           "s1",
		Language:     "en",
		Status:       StatusWaiting,
		Phase:        PhaseCardDisplay,
		TargetRounds: DefaultTargetRounds,
		VoteRound:    1,
		Participants: []Participant{
			{ID: "a", SessionID: "s1", Ordinal: OrdinalFirst, Connected: true},
			{ID: "b", SessionID: "s1", Ordinal: OrdinalSecond, Connected: true},
		},
	}
}

func activeState() State {
	s := waitingState()
	s.Status = StatusActive
	s.Level = 1
	s.Round = 1
	s.PromptID = "p1"
	s.UsedPromptIDs = []string{"p1"}
	s.TurnHolderID = "a"
	s.LastSeq = 2
	return s
}

func evaluationState() State {
	s := activeState()
	s.Phase = PhaseEvaluation
	s.ResponseID = "r1"
	s.ResponderID = "a"
	s.TurnHolderID = "b"
	return s
}

func mustCommand(t *testing.T, typ command.Type, actor string, payload any) command.Command {
	t.Helper()
	cmd, err := command.New(typ, "s1", actor, "", payload)
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	return cmd
}

func requireRejected(t *testing.T, d command.Decision, code string) {
	t.Helper()
	if !d.Rejected() {
		t.Fatalf("decision accepted with %d actions, want rejection %s", len(d.Actions), code)
	}
	if d.Rejections[0].Code != code {
		t.Fatalf("rejection = %s (%s), want %s", d.Rejections[0].Code, d.Rejections[0].Message, code)
	}
}

func actionTypes(d command.Decision) []action.Type {
	out := make([]action.Type, 0, len(d.Actions))
	for _, a := range d.Actions {
		out = append(out, a.Type)
	}
	return out
}

func TestDecideBeginAnswer(t *testing.T) {
	d := Decide(activeState(), mustCommand(t, CommandBeginAnswer, "a", BeginAnswerPayload{Round: 1}), nowFunc)
	if d.Rejected() || len(d.Actions) != 1 || d.Actions[0].Type != action.TypePromptAnswered {
		t.Fatalf("decision = %+v", d)
	}

	requireRejected(t, Decide(activeState(), mustCommand(t, CommandBeginAnswer, "b", BeginAnswerPayload{}), nowFunc), RejectNotTurnHolder)
	requireRejected(t, Decide(activeState(), mustCommand(t, CommandBeginAnswer, "a", BeginAnswerPayload{Round: 2}), nowFunc), RejectRoundMismatch)
	requireRejected(t, Decide(waitingState(), mustCommand(t, CommandBeginAnswer, "a", BeginAnswerPayload{}), nowFunc), RejectSessionNotActive)
}

func TestDecideSubmitResponseFromCardDisplayEmitsBothActions(t *testing.T) {
	d := Decide(activeState(), mustCommand(t, CommandSubmitResponse, "a", SubmitResponsePayload{
		ResponseID: "r1", Round: 1, Answer: "  honest answer ", ElapsedMS: -5,
	}), nowFunc)
	if d.Rejected() {
		t.Fatalf("rejected: %+v", d.Rejections)
	}
	types := actionTypes(d)
	if len(types) != 2 || types[0] != action.TypePromptAnswered || types[1] != action.TypeResponseSubmitted {
		t.Fatalf("types = %v", types)
	}
	payload, err := action.Decode(d.Actions[1])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	submitted := payload.(*action.ResponseSubmitted)
	if submitted.Answer != "honest answer" || submitted.ElapsedMS != 0 || submitted.EvaluatorID != "b" || submitted.Level != 1 {
		t.Fatalf("submitted = %+v", submitted)
	}
}

func TestDecideSubmitResponseValidation(t *testing.T) {
	requireRejected(t, Decide(activeState(), mustCommand(t, CommandSubmitResponse, "a", SubmitResponsePayload{ResponseID: "r1", Answer: " "}), nowFunc), RejectAnswerEmpty)
	requireRejected(t, Decide(activeState(), mustCommand(t, CommandSubmitResponse, "a", SubmitResponsePayload{Answer: "x"}), nowFunc), RejectInvalidArgument)
	requireRejected(t, Decide(evaluationState(), mustCommand(t, CommandSubmitResponse, "b", SubmitResponsePayload{ResponseID: "r2", Answer: "x"}), nowFunc), RejectPhaseMismatch)
}

func TestDecideEvaluateRejectsSelfEvaluationInEveryPhase(t *testing.T) {
	states := []State{evaluationState()}
	finished := evaluationState()
	finished.Status = StatusFinished
	finalized := evaluationState()
	finalized.FinalizedRound = 1
	states = append(states, finished, finalized)

	for _, s := range states {
		d := Decide(s, mustCommand(t, CommandEvaluate, s.ResponderID, EvaluatePayload{Round: 1, Honesty: 5}), nowFunc)
		requireRejected(t, d, RejectSelfEvaluation)
	}
}

func TestDecideEvaluate(t *testing.T) {
	d := Decide(evaluationState(), mustCommand(t, CommandEvaluate, "b", EvaluatePayload{
		ResponseID: "r1", Round: 1, Honesty: 5, Attraction: 4, Intimacy: 4, Surprise: 3,
	}), nowFunc)
	types := actionTypes(d)
	if len(types) != 2 || types[0] != action.TypeResponseEvaluated || types[1] != action.TypeEvaluationFinalized {
		t.Fatalf("types = %v, rejections = %+v", types, d.Rejections)
	}

	requireRejected(t, Decide(evaluationState(), mustCommand(t, CommandEvaluate, "b", EvaluatePayload{Round: 1, Honesty: 6}), nowFunc), RejectScoreOutOfRange)

	finalized := evaluationState()
	finalized.FinalizedRound = 1
	requireRejected(t, Decide(finalized, mustCommand(t, CommandEvaluate, "b", EvaluatePayload{Round: 1}), nowFunc), RejectEvaluationAlreadySet)

	requireRejected(t, Decide(activeState(), mustCommand(t, CommandEvaluate, "b", EvaluatePayload{Round: 1}), nowFunc), RejectPhaseMismatch)
}

func TestDecideAdvanceTurn(t *testing.T) {
	finalized := evaluationState()
	finalized.FinalizedRound = 1
	finalized.EvaluatedRounds = 1

	choice := TurnChoice{PromptID: "p2", HolderID: "b", Source: action.SourceRanked, Rationale: "warmer"}
	d := Decide(finalized, mustCommand(t, CommandAdvanceTurn, command.ActorSystem, AdvanceTurnPayload{ExpectedRound: 1, Choice: choice}), nowFunc)
	if d.Rejected() || len(d.Actions) != 1 || d.Actions[0].Type != action.TypeTurnAdvanced {
		t.Fatalf("decision = %+v", d)
	}

	// Not yet finalized and not forced.
	requireRejected(t, Decide(evaluationState(), mustCommand(t, CommandAdvanceTurn, command.ActorSystem, AdvanceTurnPayload{ExpectedRound: 1, Choice: choice}), nowFunc), RejectPhaseMismatch)

	// Forced advance is allowed before finalization.
	forced := Decide(evaluationState(), mustCommand(t, CommandAdvanceTurn, command.ActorSystem, AdvanceTurnPayload{ExpectedRound: 1, Forced: true, Choice: choice}), nowFunc)
	if forced.Rejected() {
		t.Fatalf("forced rejected: %+v", forced.Rejections)
	}

	// A stale forced advance is a no-op rejection.
	requireRejected(t, Decide(activeState(), mustCommand(t, CommandAdvanceTurn, command.ActorSystem, AdvanceTurnPayload{ExpectedRound: 0, Forced: true, Choice: choice}), nowFunc), RejectRoundMismatch)

	used := choice
	used.PromptID = "p1"
	requireRejected(t, Decide(finalized, mustCommand(t, CommandAdvanceTurn, command.ActorSystem, AdvanceTurnPayload{ExpectedRound: 1, Choice: used}), nowFunc), RejectInvalidArgument)
}

func TestDecideAdvanceTurnFinishes(t *testing.T) {
	target := evaluationState()
	target.FinalizedRound = 1
	target.EvaluatedRounds = 1
	target.TargetRounds = 1
	d := Decide(target, mustCommand(t, CommandAdvanceTurn, command.ActorSystem, AdvanceTurnPayload{ExpectedRound: 1}), nowFunc)
	requireFinished(t, d, action.FinishTargetReached)

	exhausted := evaluationState()
	exhausted.FinalizedRound = 1
	exhausted.EvaluatedRounds = 1
	d = Decide(exhausted, mustCommand(t, CommandAdvanceTurn, command.ActorSystem, AdvanceTurnPayload{ExpectedRound: 1, Choice: TurnChoice{Exhausted: true}}), nowFunc)
	requireFinished(t, d, action.FinishPromptsExhausted)
}

func requireFinished(t *testing.T, d command.Decision, reason string) {
	t.Helper()
	if d.Rejected() || len(d.Actions) != 1 {
		t.Fatalf("decision = %+v", d)
	}
	payload, err := action.Decode(d.Actions[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	finished, ok := payload.(*action.SessionFinished)
	if !ok || finished.Reason != reason {
		t.Fatalf("payload = %#v, want session finished %s", payload, reason)
	}
}

func TestDecideEndRejectsDuplicateTerminalTransition(t *testing.T) {
	d := Decide(activeState(), mustCommand(t, CommandEnd, "b", EndPayload{}), nowFunc)
	requireFinished(t, d, action.FinishEnded)

	finished := activeState()
	finished.Status = StatusFinished
	requireRejected(t, Decide(finished, mustCommand(t, CommandEnd, "a", EndPayload{}), nowFunc), RejectSessionAlreadyFinished)
	requireRejected(t, Decide(activeState(), mustCommand(t, CommandEnd, "stranger", EndPayload{}), nowFunc), RejectParticipantUnknown)
}

func TestDecideChangeLevelStartsWaitingSession(t *testing.T) {
	d := Decide(waitingState(), mustCommand(t, CommandChangeLevel, "b", ChangeLevelPayload{
		Level: 2, VoteRound: 1, UnlockAt: fixedNow.Add(3 * time.Second),
		FirstTurn: &TurnChoice{PromptID: "p1", HolderID: "a", Source: action.SourceFallback},
	}), nowFunc)
	types := actionTypes(d)
	if len(types) != 2 || types[0] != action.TypeLevelChanged || types[1] != action.TypeTurnAdvanced {
		t.Fatalf("types = %v, rejections = %+v", types, d.Rejections)
	}

	half := waitingState()
	half.Participants = half.Participants[:1]
	requireRejected(t, Decide(half, mustCommand(t, CommandChangeLevel, "a", ChangeLevelPayload{Level: 2, FirstTurn: &TurnChoice{PromptID: "p1", HolderID: "a"}}), nowFunc), RejectSessionNotActive)
	requireRejected(t, Decide(waitingState(), mustCommand(t, CommandChangeLevel, "a", ChangeLevelPayload{Level: 4}), nowFunc), RejectLevelOutOfRange)
	requireRejected(t, Decide(waitingState(), mustCommand(t, CommandChangeLevel, "a", ChangeLevelPayload{Level: 2}), nowFunc), RejectInvalidArgument)
}

func TestDecideLevelRequestsAndMismatch(t *testing.T) {
	d := Decide(activeState(), mustCommand(t, CommandRequestLevelChange, "a", RequestLevelChangePayload{Level: 3}), nowFunc)
	if d.Rejected() || d.Actions[0].Type != action.TypeLevelChangeRequested {
		t.Fatalf("decision = %+v", d)
	}
	requireRejected(t, Decide(activeState(), mustCommand(t, CommandRequestLevelChange, "a", RequestLevelChangePayload{Level: 0}), nowFunc), RejectLevelOutOfRange)

	d = Decide(waitingState(), mustCommand(t, CommandRecordMismatch, "b", RecordMismatchPayload{VoteRound: 1, NextVoteRound: 2, Votes: map[string]int{"a": 2, "b": 3}}), nowFunc)
	if d.Rejected() || d.Actions[0].Type != action.TypeLevelMismatch {
		t.Fatalf("decision = %+v", d)
	}
	requireRejected(t, Decide(waitingState(), mustCommand(t, CommandRecordMismatch, "b", RecordMismatchPayload{VoteRound: 2, NextVoteRound: 2}), nowFunc), RejectInvalidArgument)
}

func TestDecideUnknownCommand(t *testing.T) {
	requireRejected(t, Decide(activeState(), command.Command{SessionID: "s1", Type: "session.dance"}, nowFunc), RejectInvalidArgument)
}
