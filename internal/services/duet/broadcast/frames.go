package broadcast

import (
	"encoding/json"
	"time"

	"github.com/louisbranch/duet/internal/services/duet/domain/action"
)

// Frame types.
const (
	FrameJoined   = "duet.joined"
	FrameAction   = "duet.action"
	FrameResync   = "duet.resync"
	FramePresence = "duet.presence"
	FramePing     = "duet.ping"
	FramePong     = "duet.pong"
	FrameError    = "duet.error"
)

// Frame is the websocket envelope in both directions.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// JoinedPayload is sent once after a peer enters its room. Clients whose
// applied seq is behind LatestSeq fetch the gap over HTTP.
type JoinedPayload struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	LatestSeq     uint64 `json:"latest_seq"`
	ServerTime    string `json:"server_time"`
}

// ActionPayload carries one committed action.
type ActionPayload struct {
	Action action.Action `json:"action"`
}

// ResyncPayload asks clients to refetch authoritative state.
type ResyncPayload struct {
	SessionID   string `json:"session_id"`
	RequestedBy string `json:"requested_by,omitempty"`
	Reason      string `json:"reason"`
}

// PresencePayload reports a liveness flip of a participant.
type PresencePayload struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	Connected     bool   `json:"connected"`
}

// PongPayload answers a ping.
type PongPayload struct {
	ServerTime string `json:"server_time"`
}

// ErrorEnvelope wraps an error frame payload.
type ErrorEnvelope struct {
	Error WireError `json:"error"`
}

// WireError is the error shape sent to websocket peers.
type WireError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func serverTime(now time.Time) string {
	return now.UTC().Format(time.RFC3339Nano)
}
