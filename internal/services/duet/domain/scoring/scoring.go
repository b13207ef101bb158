// Package scoring turns the evaluated responses of a session into a single
// compatibility summary.
//
// Compute is referentially transparent: identical input yields identical
// output, with no randomness and no external calls.
package scoring

import (
	"math"
	"slices"
	"time"

	"github.com/louisbranch/duet/internal/services/duet/domain/response"
)

// Feeling is the categorical label chosen from the overall score.
type Feeling string

const (
	FeelingHighConnection    Feeling = "high connection"
	FeelingGrowingConnection Feeling = "growing connection"
	FeelingCurious           Feeling = "curious"
	FeelingDistant           Feeling = "distant"
)

const (
	// attractionWindow caps how much answer time can add to a response's weight.
	attractionWindow = 60 * time.Second
	// syncDiscrepancyScale converts the summed per-dimension gap between the
	// two responders into percentage points. It is a heuristic constant.
	syncDiscrepancyScale = 20.0
)

// Summary is the compatibility report of a session.
type Summary struct {
	EmotionalConnection  float64 `json:"emotional_connection"`
	Attraction           float64 `json:"attraction"`
	Intimacy             float64 `json:"intimacy"`
	MutualCuriosity      float64 `json:"mutual_curiosity"`
	EmotionalSync        float64 `json:"emotional_sync"`
	EmotionalSyncPercent float64 `json:"emotional_sync_percent"`
	Overall              float64 `json:"overall"`
	Feeling              Feeling `json:"feeling"`
	EvaluatedCount       int     `json:"evaluated_count"`
}

// Compute scores the evaluated subset of responses. Responses without an
// evaluation are ignored; an empty set yields a zero summary labeled distant.
func Compute(responses []response.Response) Summary {
	evaluated := response.EvaluatedOnly(responses)
	if len(evaluated) == 0 {
		return Summary{Feeling: FeelingDistant}
	}

	var (
		honesty, surprise      float64
		attraction, attrWeight float64
		intimacy, intimWeight  float64
	)
	for _, r := range evaluated {
		e := r.Evaluation
		honesty += e.Honesty
		surprise += e.Surprise

		w := 1 + float64(min(max(r.Elapsed, 0), attractionWindow))/float64(attractionWindow)
		attraction += w * e.Attraction
		attrWeight += w

		lw := float64(max(r.Level, 1))
		intimacy += lw * e.Intimacy
		intimWeight += lw
	}
	n := float64(len(evaluated))

	syncPct := syncPercent(evaluated)
	s := Summary{
		EmotionalConnection:  clampScore(honesty / n),
		Attraction:           clampScore(attraction / attrWeight),
		Intimacy:             clampScore(intimacy / intimWeight),
		MutualCuriosity:      clampScore(surprise / n),
		EmotionalSync:        clampScore(syncPct / syncDiscrepancyScale),
		EmotionalSyncPercent: syncPct,
		EvaluatedCount:       len(evaluated),
	}
	s.Overall = clampScore((s.EmotionalConnection + s.Attraction + s.Intimacy + s.MutualCuriosity + s.EmotionalSync) / 5)
	s.Feeling = FeelingFor(s.Overall)

	s.EmotionalConnection = round2(s.EmotionalConnection)
	s.Attraction = round2(s.Attraction)
	s.Intimacy = round2(s.Intimacy)
	s.MutualCuriosity = round2(s.MutualCuriosity)
	s.EmotionalSync = round2(s.EmotionalSync)
	s.EmotionalSyncPercent = round2(s.EmotionalSyncPercent)
	s.Overall = round2(s.Overall)
	return s
}

// FeelingFor labels an overall score.
func FeelingFor(overall float64) Feeling {
	switch {
	case overall >= 4.0:
		return FeelingHighConnection
	case overall >= 3.0:
		return FeelingGrowingConnection
	case overall >= 2.0:
		return FeelingCurious
	default:
		return FeelingDistant
	}
}

// syncPercent compares the mean scores each responder received. Fewer than
// two responders gives no basis for comparison and scores zero.
func syncPercent(evaluated []response.Response) float64 {
	byResponder := make(map[string][]response.Response)
	for _, r := range evaluated {
		byResponder[r.ResponderID] = append(byResponder[r.ResponderID], r)
	}
	if len(byResponder) < 2 {
		return 0
	}
	ids := make([]string, 0, len(byResponder))
	for id := range byResponder {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	a := meanScores(byResponder[ids[0]])
	b := meanScores(byResponder[ids[1]])
	var gap float64
	for i := range a {
		gap += math.Abs(a[i] - b[i])
	}
	return min(max(100-syncDiscrepancyScale*gap, 0), 100)
}

func meanScores(responses []response.Response) [4]float64 {
	var sum [4]float64
	for _, r := range responses {
		for i, v := range r.Evaluation.Scores() {
			sum[i] += v
		}
	}
	for i := range sum {
		sum[i] /= float64(len(responses))
	}
	return sum
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, response.MinScore), response.MaxScore)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
