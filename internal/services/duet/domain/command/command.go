package command

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/duet/internal/services/duet/domain/action"
)

// Type identifies a command kind.
type Type string

// ActorSystem is the actor id used for watchdog and procedure commands.
const ActorSystem = "system"

// Command is a request to change session state.
type Command struct {
	SessionID   string
	ActorID     string
	RequestID   string
	Type        Type
	PayloadJSON []byte
}

// New builds a command with a JSON-encoded payload.
func New(t Type, sessionID, actorID, requestID string, payload any) (Command, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Command{}, fmt.Errorf("session id is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Command{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Command{
		SessionID:   sessionID,
		ActorID:     strings.TrimSpace(actorID),
		RequestID:   strings.TrimSpace(requestID),
		Type:        t,
		PayloadJSON: data,
	}, nil
}

// Decode unmarshals the command payload into target.
func (c Command) Decode(target any) error {
	if len(c.PayloadJSON) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.PayloadJSON, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", c.Type, err)
	}
	return nil
}

// NewAction builds an action by copying the envelope fields from a command.
func NewAction(cmd Command, payload action.Payload, now time.Time) (action.Action, error) {
	a, err := action.New(cmd.SessionID, cmd.ActorID, cmd.RequestID, payload, now)
	if err != nil {
		return action.Action{}, err
	}
	a.Command = string(cmd.Type)
	return a, nil
}

// systemRequestPrefixes are request id namespaces owned by ActorSystem.
var systemRequestPrefixes = []string{"advance:", "vote:"}

// AdvanceRequestID is the request id of the system advance out of round.
func AdvanceRequestID(round int) string {
	return fmt.Sprintf("advance:%d", round)
}

// VoteRequestID is the request id of the system outcome of a vote round.
func VoteRequestID(round int) string {
	return fmt.Sprintf("vote:%d", round)
}

// ReservedRequestID reports whether requestID lies in a namespace only
// ActorSystem commands may use.
func ReservedRequestID(requestID string) bool {
	for _, prefix := range systemRequestPrefixes {
		if strings.HasPrefix(requestID, prefix) {
			return true
		}
	}
	return false
}
