package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type identifies an action kind.
type Type string

const (
	TypePromptAnswered       Type = "prompt.answered"
	TypeResponseSubmitted    Type = "response.submitted"
	TypeResponseEvaluated    Type = "response.evaluated"
	TypeEvaluationFinalized  Type = "evaluation.finalized"
	TypeTurnAdvanced         Type = "turn.advanced"
	TypeLevelChanged         Type = "level.changed"
	TypeSessionFinished      Type = "session.finished"
	TypeLevelChangeRequested Type = "level.change_requested"
	TypeLevelMismatch        Type = "level.mismatch"
)

// Types lists every known action type in protocol order.
func Types() []Type {
	return []Type{
		TypePromptAnswered,
		TypeResponseSubmitted,
		TypeResponseEvaluated,
		TypeEvaluationFinalized,
		TypeTurnAdvanced,
		TypeLevelChanged,
		TypeSessionFinished,
		TypeLevelChangeRequested,
		TypeLevelMismatch,
	}
}

// Known reports whether t is a recognized action type.
func (t Type) Known() bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}

// ErrUnknownType is returned by Decode for action types this build does not know.
var ErrUnknownType = errors.New("unknown action type")

// Action is one entry of a session's append-only log.
type Action struct {
	SessionID   string          `json:"session_id"`
	Seq         uint64          `json:"seq"`
	Type        Type            `json:"type"`
	ActorID     string          `json:"actor_id,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
	// Command is the command type that produced the action.
	Command     string          `json:"command,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	PayloadJSON json.RawMessage `json:"payload"`
	Hash        string          `json:"hash,omitempty"`
	PrevHash    string          `json:"prev_hash,omitempty"`
	ChainHash   string          `json:"chain_hash,omitempty"`
}

// Payload is implemented by every typed action payload.
type Payload interface {
	ActionType() Type
}

// New builds an unsequenced action carrying payload.
func New(sessionID, actorID, requestID string, payload Payload, now time.Time) (Action, error) {
	if payload == nil {
		return Action{}, fmt.Errorf("action payload is required")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Action{}, fmt.Errorf("session id is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Action{}, fmt.Errorf("marshal %s payload: %w", payload.ActionType(), err)
	}
	return Action{
		SessionID:   sessionID,
		Type:        payload.ActionType(),
		ActorID:     strings.TrimSpace(actorID),
		RequestID:   strings.TrimSpace(requestID),
		Timestamp:   now.UTC().Truncate(time.Millisecond),
		PayloadJSON: data,
	}, nil
}

// Decode returns the typed payload carried by a.
func Decode(a Action) (Payload, error) {
	var payload Payload
	switch a.Type {
	case TypePromptAnswered:
		payload = &PromptAnswered{}
	case TypeResponseSubmitted:
		payload = &ResponseSubmitted{}
	case TypeResponseEvaluated:
		payload = &ResponseEvaluated{}
	case TypeEvaluationFinalized:
		payload = &EvaluationFinalized{}
	case TypeTurnAdvanced:
		payload = &TurnAdvanced{}
	case TypeLevelChanged:
		payload = &LevelChanged{}
	case TypeSessionFinished:
		payload = &SessionFinished{}
	case TypeLevelChangeRequested:
		payload = &LevelChangeRequested{}
	case TypeLevelMismatch:
		payload = &LevelMismatch{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, a.Type)
	}
	if err := json.Unmarshal(a.PayloadJSON, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", a.Type, err)
	}
	return payload, nil
}
