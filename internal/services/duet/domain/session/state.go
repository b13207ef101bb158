package session

import (
	"slices"
	"time"
)

// Status is the session lifecycle status.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Phase is the turn protocol phase.
type Phase string

const (
	PhaseCardDisplay   Phase = "card-display"
	PhaseResponseInput Phase = "response-input"
	PhaseEvaluation    Phase = "evaluation"
	PhaseFinalReport   Phase = "final-report"
	// PhaseWaitingForEvaluation is never stored; ViewPhase derives it for the
	// participant who is waiting on the other's evaluation.
	PhaseWaitingForEvaluation Phase = "waiting-for-evaluation"
)

// Ordinal is a participant's stable seat in the session.
type Ordinal string

const (
	OrdinalFirst  Ordinal = "first"
	OrdinalSecond Ordinal = "second"
)

// Level bounds.
const (
	MinLevel = 1
	MaxLevel = 3
)

// Target round bounds.
const (
	MinTargetRounds     = 1
	MaxTargetRounds     = 50
	DefaultTargetRounds = 6
)

// Participant is a session-scoped identity.
type Participant struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Ordinal     Ordinal   `json:"ordinal"`
	DisplayName string    `json:"display_name"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	Connected   bool      `json:"connected"`
	JoinedAt    time.Time `json:"joined_at"`
}

// State is the authoritative view of a session.
type State struct {
	ID                 string            `json:"id"`
	JoinCode           string            `json:"join_code"`
	Language           string            `json:"language"`
	Level              int               `json:"level"`
	Status             Status            `json:"status"`
	Phase              Phase             `json:"phase"`
	TurnHolderID       string            `json:"turn_holder_id"`
	PromptID           string            `json:"prompt_id"`
	UsedPromptIDs      []string          `json:"used_prompt_ids"`
	Round              int               `json:"round"`
	EvaluatedRounds    int               `json:"evaluated_rounds"`
	FinalizedRound     int               `json:"finalized_round"`
	TargetRounds       int               `json:"target_rounds"`
	ResponseID         string            `json:"response_id"`
	ResponderID        string            `json:"responder_id"`
	SelectionSource    string            `json:"selection_source"`
	SelectionRationale string            `json:"selection_rationale"`
	SelectionMetadata  map[string]string `json:"selection_metadata,omitempty"`
	PendingLevel       int               `json:"pending_level"`
	PendingLevelBy     string            `json:"pending_level_by"`
	VoteRound          int               `json:"vote_round"`
	FinishReason       string            `json:"finish_reason"`
	LastSeq            uint64            `json:"last_seq"`
	PhaseChangedAt     time.Time         `json:"phase_changed_at"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	Participants       []Participant     `json:"participants"`
}

// Participant returns the participant with id.
func (s State) Participant(id string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// ByOrdinal returns the participant seated at ordinal.
func (s State) ByOrdinal(ordinal Ordinal) (Participant, bool) {
	for _, p := range s.Participants {
		if p.Ordinal == ordinal {
			return p, true
		}
	}
	return Participant{}, false
}

// IsParticipant reports whether id belongs to the session.
func (s State) IsParticipant(id string) bool {
	_, ok := s.Participant(id)
	return ok
}

// Other returns the id of the participant who is not id, or "".
func (s State) Other(id string) string {
	for _, p := range s.Participants {
		if p.ID != id {
			return p.ID
		}
	}
	return ""
}

// Full reports whether both seats are taken.
func (s State) Full() bool {
	return len(s.Participants) >= 2
}

// EvaluationPending reports whether the current round awaits its evaluation.
func (s State) EvaluationPending() bool {
	return s.Status == StatusActive && s.Phase == PhaseEvaluation && s.FinalizedRound < s.Round
}

// AdvancePending reports whether the current round's evaluation is final but
// the turn has not advanced yet.
func (s State) AdvancePending() bool {
	return s.Status == StatusActive && s.Phase == PhaseEvaluation && s.Round > 0 && s.FinalizedRound == s.Round
}

// ViewPhase returns the phase as seen by viewerID, deriving
// waiting-for-evaluation for the responder while the other participant scores.
func (s State) ViewPhase(viewerID string) Phase {
	if s.Phase == PhaseEvaluation && viewerID != "" && viewerID != s.TurnHolderID {
		return PhaseWaitingForEvaluation
	}
	return s.Phase
}

// PromptUsed reports whether id was already consumed in this session.
func (s State) PromptUsed(id string) bool {
	return slices.Contains(s.UsedPromptIDs, id)
}

// Clone returns a deep copy safe to mutate.
func (s State) Clone() State {
	s.UsedPromptIDs = slices.Clone(s.UsedPromptIDs)
	s.Participants = slices.Clone(s.Participants)
	if s.SelectionMetadata != nil {
		md := make(map[string]string, len(s.SelectionMetadata))
		for k, v := range s.SelectionMetadata {
			md[k] = v
		}
		s.SelectionMetadata = md
	}
	return s
}
