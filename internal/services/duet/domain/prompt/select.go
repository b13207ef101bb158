package prompt

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"slices"
	"strings"
)

// Fallback rationales describe why the ranked answer was not used.
const (
	FallbackNoRanking   = "ranking unavailable"
	FallbackRankError   = "ranking failed"
	FallbackUnknownID   = "ranked prompt unknown"
	FallbackAlreadyUsed = "ranked prompt already used"
)

// Select picks one unused prompt. A ranking naming a remaining prompt wins;
// otherwise the choice is uniform over the remaining prompts, seeded by seed.
func Select(inventory []Prompt, used []string, ranking *Ranking, seed uint64) (Choice, error) {
	remaining := Remaining(inventory, used)
	if len(remaining) == 0 {
		return Choice{}, ErrExhausted
	}

	reason := FallbackNoRanking
	if ranking != nil {
		id := strings.TrimSpace(ranking.PromptID)
		switch {
		case ranking.Err != nil:
			reason = FallbackRankError
		case slices.Contains(used, id):
			reason = FallbackAlreadyUsed
		default:
			for _, p := range remaining {
				if p.ID == id {
					return Choice{
						Prompt:    p,
						Source:    SourceRanked,
						Rationale: ranking.Rationale,
						Metadata:  ranking.Metadata,
					}, nil
				}
			}
			reason = FallbackUnknownID
		}
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return Choice{
		Prompt:    remaining[rng.IntN(len(remaining))],
		Source:    SourceFallback,
		Rationale: reason,
	}, nil
}

// Seed derives the fallback seed for a session round.
func Seed(sessionID string, round int) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%d", sessionID, round)
	return h.Sum64()
}
