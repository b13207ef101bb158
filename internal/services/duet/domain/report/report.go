// Package report assembles the end-of-session report from a finished
// session's responses.
package report

import (
	"github.com/louisbranch/duet/internal/services/duet/domain/psych"
	"github.com/louisbranch/duet/internal/services/duet/domain/response"
	"github.com/louisbranch/duet/internal/services/duet/domain/scoring"
	"github.com/louisbranch/duet/internal/services/duet/domain/session"
)

// Report is the derived, deterministic view of a finished session.
type Report struct {
	SessionID    string          `json:"session_id"`
	Language     string          `json:"language"`
	Level        int             `json:"level"`
	Rounds       int             `json:"rounds"`
	FinishReason string          `json:"finish_reason"`
	Participants []string        `json:"participants"`
	Scores       scoring.Summary `json:"scores"`
	Psych        psych.Report    `json:"psych"`
}

// Build computes the report. It does not check that the session finished.
func Build(state session.State, responses []response.Response) Report {
	names := make([]string, 0, len(state.Participants))
	for _, p := range state.Participants {
		names = append(names, p.DisplayName)
	}
	return Report{
		SessionID:    state.ID,
		Language:     state.Language,
		Level:        state.Level,
		Rounds:       state.EvaluatedRounds,
		FinishReason: state.FinishReason,
		Participants: names,
		Scores:       scoring.Compute(responses),
		Psych:        psych.Analyze(responses),
	}
}
