package session

import "time"

// BeginAnswerPayload starts answering the current prompt.
type BeginAnswerPayload struct {
	Round int `json:"round"`
}

// SubmitResponsePayload persists the turn holder's answer.
type SubmitResponsePayload struct {
	ResponseID string `json:"response_id"`
	Round      int    `json:"round"`
	Answer     string `json:"answer"`
	ElapsedMS  int64  `json:"elapsed_ms"`
}

// EvaluatePayload scores the current round's response.
type EvaluatePayload struct {
	ResponseID string  `json:"response_id"`
	Round      int     `json:"round"`
	Honesty    float64 `json:"honesty"`
	Attraction float64 `json:"attraction"`
	Intimacy   float64 `json:"intimacy"`
	Surprise   float64 `json:"surprise"`
}

// TurnChoice is a prompt already selected for the next round.
type TurnChoice struct {
	PromptID  string            `json:"prompt_id"`
	HolderID  string            `json:"holder_id"`
	Source    string            `json:"source"`
	Rationale string            `json:"rationale,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	// Exhausted is set when no unused prompt remained.
	Exhausted bool `json:"exhausted,omitempty"`
}

// AdvanceTurnPayload moves from evaluation to the next round or the final report.
type AdvanceTurnPayload struct {
	ExpectedRound int        `json:"expected_round"`
	Forced        bool       `json:"forced,omitempty"`
	Choice        TurnChoice `json:"choice"`
}

// EndPayload ends the session early.
type EndPayload struct{}

// ChangeLevelPayload applies a level agreed by the consensus voter. FirstTurn is
// required when the change starts a waiting session.
type ChangeLevelPayload struct {
	Level     int         `json:"level"`
	VoteRound int         `json:"vote_round"`
	UnlockAt  time.Time   `json:"unlock_at"`
	FirstTurn *TurnChoice `json:"first_turn,omitempty"`
}

// RequestLevelChangePayload asks the other participant to vote on a new level.
type RequestLevelChangePayload struct {
	Level int `json:"level"`
}

// RecordMismatchPayload records a vote round that ended without agreement.
type RecordMismatchPayload struct {
	VoteRound     int            `json:"vote_round"`
	NextVoteRound int            `json:"next_vote_round"`
	Votes         map[string]int `json:"votes"`
}
