package eventbus

import (
	"time"

	"github.com/louisbranch/duet/internal/services/duet/domain/action"
)

// Event types.
const (
	TypeSessionChanged          = "session.changed"
	TypeEvaluationReceived      = "evaluation.received"
	TypeSessionFinished         = "session.finished"
	TypeLevelChangeRequested    = "level_change.requested"
	TypeLevelMismatch           = "level.mismatch"
	TypeResyncRequired          = "resync.required"
	TypeParticipantDisconnected = "participant.disconnected"
	TypeParticipantReconnected  = "participant.reconnected"
)

// Event is anything published on the bus.
type Event interface {
	EventType() string
	SessionID() string
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	sessionID string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) SessionID() string    { return e.sessionID }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBase(eventType, sessionID string, at time.Time) baseEvent {
	if at.IsZero() {
		at = time.Now()
	}
	return baseEvent{eventType: eventType, sessionID: sessionID, timestamp: at.UTC()}
}

// SessionChanged is emitted after actions were committed for a session.
type SessionChanged struct {
	baseEvent
	LastSeq uint64
	Actions []action.Action
}

// NewSessionChanged builds a SessionChanged from committed actions.
func NewSessionChanged(sessionID string, actions []action.Action) SessionChanged {
	var at time.Time
	var last uint64
	if n := len(actions); n > 0 {
		at = actions[n-1].Timestamp
		last = actions[n-1].Seq
	}
	return SessionChanged{baseEvent: newBase(TypeSessionChanged, sessionID, at), LastSeq: last, Actions: actions}
}

// EvaluationReceived tells the responder their answer was scored.
type EvaluationReceived struct {
	baseEvent
	Round       int
	ResponderID string
	EvaluatorID string
}

// NewEvaluationReceived builds an EvaluationReceived.
func NewEvaluationReceived(sessionID string, round int, responderID, evaluatorID string, at time.Time) EvaluationReceived {
	return EvaluationReceived{
		baseEvent:   newBase(TypeEvaluationReceived, sessionID, at),
		Round:       round,
		ResponderID: responderID,
		EvaluatorID: evaluatorID,
	}
}

// SessionFinished is emitted once when a session reaches its final report.
type SessionFinished struct {
	baseEvent
	Reason string
}

// NewSessionFinished builds a SessionFinished.
func NewSessionFinished(sessionID, reason string, at time.Time) SessionFinished {
	return SessionFinished{baseEvent: newBase(TypeSessionFinished, sessionID, at), Reason: reason}
}

// LevelChangeRequested is emitted when a participant proposes a new level.
type LevelChangeRequested struct {
	baseEvent
	Level       int
	RequesterID string
}

// NewLevelChangeRequested builds a LevelChangeRequested.
func NewLevelChangeRequested(sessionID string, level int, requesterID string, at time.Time) LevelChangeRequested {
	return LevelChangeRequested{baseEvent: newBase(TypeLevelChangeRequested, sessionID, at), Level: level, RequesterID: requesterID}
}

// LevelMismatch is emitted when a vote round ended with different levels.
type LevelMismatch struct {
	baseEvent
	VoteRound     int
	NextVoteRound int
}

// NewLevelMismatch builds a LevelMismatch.
func NewLevelMismatch(sessionID string, voteRound, nextVoteRound int, at time.Time) LevelMismatch {
	return LevelMismatch{baseEvent: newBase(TypeLevelMismatch, sessionID, at), VoteRound: voteRound, NextVoteRound: nextVoteRound}
}

// ResyncRequired asks every client of a session to refetch authoritative
// state.
type ResyncRequired struct {
	baseEvent
	RequestedBy string
	Reason      string
}

// NewResyncRequired builds a ResyncRequired.
func NewResyncRequired(sessionID, requestedBy, reason string, at time.Time) ResyncRequired {
	return ResyncRequired{baseEvent: newBase(TypeResyncRequired, sessionID, at), RequestedBy: requestedBy, Reason: reason}
}

// ParticipantPresence is emitted when liveness of a participant flips.
type ParticipantPresence struct {
	baseEvent
	ParticipantID string
}

// NewParticipantDisconnected builds a disconnection event.
func NewParticipantDisconnected(sessionID, participantID string, at time.Time) ParticipantPresence {
	return ParticipantPresence{baseEvent: newBase(TypeParticipantDisconnected, sessionID, at), ParticipantID: participantID}
}

// NewParticipantReconnected builds a reconnection event.
func NewParticipantReconnected(sessionID, participantID string, at time.Time) ParticipantPresence {
	return ParticipantPresence{baseEvent: newBase(TypeParticipantReconnected, sessionID, at), ParticipantID: participantID}
}

// FromActions derives the domain events implied by committed actions, after
// the SessionChanged event.
func FromActions(sessionID string, actions []action.Action) []Event {
	if len(actions) == 0 {
		return nil
	}
	events := []Event{NewSessionChanged(sessionID, actions)}
	for _, a := range actions {
		payload, err := action.Decode(a)
		if err != nil {
			continue
		}
		switch p := payload.(type) {
		case *action.ResponseEvaluated:
			events = append(events, NewEvaluationReceived(sessionID, p.Round, p.ResponderID, p.EvaluatorID, a.Timestamp))
		case *action.SessionFinished:
			events = append(events, NewSessionFinished(sessionID, p.Reason, a.Timestamp))
		case *action.LevelChangeRequested:
			events = append(events, NewLevelChangeRequested(sessionID, p.Level, p.RequesterID, a.Timestamp))
		case *action.LevelMismatch:
			events = append(events, NewLevelMismatch(sessionID, p.VoteRound, p.NextVoteRound, a.Timestamp))
		}
	}
	return events
}
