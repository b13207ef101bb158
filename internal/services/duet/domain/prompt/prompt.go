// Package prompt chooses the next conversation prompt for a session.
//
// Selection prefers an external ranking capability and falls back to a
// deterministic uniform choice among the prompts the session has not used.
package prompt

import (
	"errors"
	"slices"
	"strings"
)

// DefaultLanguage is used when a session language has no prompts.
const DefaultLanguage = "en"

// ErrExhausted is returned when every prompt for the level has been used.
var ErrExhausted = errors.New("prompts exhausted")

// Prompt is one conversational item.
type Prompt struct {
	ID       string `json:"id"`
	Level    int    `json:"level"`
	Language string `json:"language"`
	Text     string `json:"text"`
	Category string `json:"category"`
}

// Source records how a prompt was chosen.
type Source string

const (
	SourceRanked   Source = "ranked"
	SourceFallback Source = "fallback"
)

// Choice is the selected prompt with its provenance.
type Choice struct {
	Prompt    Prompt
	Source    Source
	Rationale string
	Metadata  map[string]string
}

// Ranking is the result of a ranking call. Err carries the failure when the
// capability could not produce a usable answer.
type Ranking struct {
	PromptID  string
	Rationale string
	Metadata  map[string]string
	Err       error
}

// Remaining returns the inventory entries not in used, sorted by id.
func Remaining(inventory []Prompt, used []string) []Prompt {
	out := make([]Prompt, 0, len(inventory))
	for _, p := range inventory {
		if slices.Contains(used, p.ID) {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Prompt) int { return strings.Compare(a.ID, b.ID) })
	return slices.CompactFunc(out, func(a, b Prompt) bool { return a.ID == b.ID })
}
