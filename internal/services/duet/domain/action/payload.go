package action

import "time"

// PromptAnswered marks the turn holder starting to answer the current prompt.
type PromptAnswered struct {
	Round    int    `json:"round"`
	PromptID string `json:"prompt_id"`
}

// ResponseSubmitted records a persisted answer; the evaluator becomes turn holder.
type ResponseSubmitted struct {
	ResponseID  string `json:"response_id"`
	Round       int    `json:"round"`
	PromptID    string `json:"prompt_id"`
	Answer      string `json:"answer"`
	ElapsedMS   int64  `json:"elapsed_ms"`
	Level       int    `json:"level"`
	ResponderID string `json:"responder_id"`
	EvaluatorID string `json:"evaluator_id"`
}

// ResponseEvaluated attaches the evaluator's scores to a response.
type ResponseEvaluated struct {
	ResponseID  string  `json:"response_id"`
	Round       int     `json:"round"`
	ResponderID string  `json:"responder_id"`
	EvaluatorID string  `json:"evaluator_id"`
	Honesty     float64 `json:"honesty"`
	Attraction  float64 `json:"attraction"`
	Intimacy    float64 `json:"intimacy"`
	Surprise    float64 `json:"surprise"`
}

// EvaluationFinalized closes the evaluation of a round.
type EvaluationFinalized struct {
	ResponseID      string `json:"response_id"`
	Round           int    `json:"round"`
	EvaluatedRounds int    `json:"evaluated_rounds"`
}

// Prompt selection sources.
const (
	SourceRanked   = "ranked"
	SourceFallback = "fallback"
)

// TurnAdvanced starts a new round with a freshly selected prompt.
type TurnAdvanced struct {
	Round     int               `json:"round"`
	PromptID  string            `json:"prompt_id"`
	HolderID  string            `json:"holder_id"`
	Source    string            `json:"source"`
	Rationale string            `json:"rationale,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Forced    bool              `json:"forced,omitempty"`
}

// LevelChanged applies an agreed intensity level.
type LevelChanged struct {
	Level         int       `json:"level"`
	PreviousLevel int       `json:"previous_level"`
	VoteRound     int       `json:"vote_round"`
	UnlockAt      time.Time `json:"unlock_at"`
}

// Finish reasons.
const (
	FinishTargetReached    = "target_reached"
	FinishEnded            = "ended_by_participant"
	FinishPromptsExhausted = "prompts_exhausted"
)

// SessionFinished moves the session to its final report.
type SessionFinished struct {
	Reason          string `json:"reason"`
	Round           int    `json:"round"`
	EvaluatedRounds int    `json:"evaluated_rounds"`
}

// LevelChangeRequested announces that a participant wants a different level.
type LevelChangeRequested struct {
	Level       int    `json:"level"`
	RequesterID string `json:"requester_id"`
}

// LevelMismatch reports a vote round whose two votes disagreed.
type LevelMismatch struct {
	VoteRound     int            `json:"vote_round"`
	NextVoteRound int            `json:"next_vote_round"`
	Votes         map[string]int `json:"votes"`
}

func (PromptAnswered) ActionType() Type       { return TypePromptAnswered }
func (ResponseSubmitted) ActionType() Type    { return TypeResponseSubmitted }
func (ResponseEvaluated) ActionType() Type    { return TypeResponseEvaluated }
func (EvaluationFinalized) ActionType() Type  { return TypeEvaluationFinalized }
func (TurnAdvanced) ActionType() Type         { return TypeTurnAdvanced }
func (LevelChanged) ActionType() Type         { return TypeLevelChanged }
func (SessionFinished) ActionType() Type      { return TypeSessionFinished }
func (LevelChangeRequested) ActionType() Type { return TypeLevelChangeRequested }
func (LevelMismatch) ActionType() Type        { return TypeLevelMismatch }
