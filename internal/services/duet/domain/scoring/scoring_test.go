package scoring

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/louisbranch/duet/internal/services/duet/domain/response"
)

func evaluated(responder string, round, level int, elapsed time.Duration, h, a, i, s float64) response.Response {
	return response.Response{
		ID:          fmt.Sprintf("%s-%d", responder, round),
		Round:       round,
		Level:       level,
		Elapsed:     elapsed,
		ResponderID: responder,
		Evaluation: &response.Evaluation{
			Honesty: h, Attraction: a, Intimacy: i, Surprise: s,
		},
	}
}

func sixRoundScenario() []response.Response {
	var out []response.Response
	for round := 1; round <= 6; round++ {
		responder := "a"
		if round%2 == 0 {
			responder = "b"
		}
		out = append(out, evaluated(responder, round, 2, 20*time.Second, 5, 4, 4, 3))
	}
	return out
}

func TestComputeSixRoundScenarioIsHighConnection(t *testing.T) {
	got := Compute(sixRoundScenario())
	want := Summary{
		EmotionalConnection:  5,
		Attraction:           4,
		Intimacy:             4,
		MutualCuriosity:      3,
		EmotionalSync:        5,
		EmotionalSyncPercent: 100,
		Overall:              4.2,
		Feeling:              FeelingHighConnection,
		EvaluatedCount:       6,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("summary (-want +got):\n%s", diff)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	responses := []response.Response{
		evaluated("a", 1, 1, 5*time.Second, 3, 2, 4, 1),
		evaluated("b", 2, 3, 90*time.Second, 1, 5, 2, 4),
		evaluated("a", 3, 2, 0, 4.5, 3.5, 1, 0),
	}
	first := Compute(responses)
	for i := 0; i < 10; i++ {
		if diff := cmp.Diff(first, Compute(responses)); diff != "" {
			t.Fatalf("run %d differs (-first +got):\n%s", i, diff)
		}
	}
}

func TestComputeSubScoresStayInRange(t *testing.T) {
	cases := [][]response.Response{
		nil,
		{evaluated("a", 1, 1, 0, 0, 0, 0, 0)},
		{evaluated("a", 1, 3, time.Hour, 5, 5, 5, 5), evaluated("b", 2, 1, 0, 0, 0, 0, 0)},
		{evaluated("a", 1, 0, -time.Second, 5, 0, 5, 0), evaluated("b", 2, 3, 30*time.Second, 5, 5, 5, 5)},
	}
	for i, responses := range cases {
		s := Compute(responses)
		for name, v := range map[string]float64{
			"emotional_connection": s.EmotionalConnection,
			"attraction":           s.Attraction,
			"intimacy":             s.Intimacy,
			"mutual_curiosity":     s.MutualCuriosity,
			"emotional_sync":       s.EmotionalSync,
			"overall":              s.Overall,
		} {
			if v < 0 || v > 5 {
				t.Fatalf("case %d: %s = %v, want within [0, 5]", i, name, v)
			}
		}
		if s.EmotionalSyncPercent < 0 || s.EmotionalSyncPercent > 100 {
			t.Fatalf("case %d: sync percent = %v", i, s.EmotionalSyncPercent)
		}
	}
}

func TestComputeIgnoresUnevaluated(t *testing.T) {
	responses := sixRoundScenario()
	responses = append(responses, response.Response{ID: "pending", Round: 7, ResponderID: "a"})
	if got := Compute(responses).EvaluatedCount; got != 6 {
		t.Fatalf("evaluated count = %d, want 6", got)
	}
}

func TestComputeEmpty(t *testing.T) {
	if diff := cmp.Diff(Summary{Feeling: FeelingDistant}, Compute(nil)); diff != "" {
		t.Fatalf("empty summary (-want +got):\n%s", diff)
	}
}

func TestComputeWeights(t *testing.T) {
	responses := []response.Response{
		// Weight 1 at level 1.
		evaluated("a", 1, 1, 0, 0, 0, 0, 0),
		// Weight 2 (capped answer time) at level 3.
		evaluated("b", 2, 3, 2*time.Minute, 0, 3, 4, 0),
	}
	got := Compute(responses)
	if got.Attraction != 2 {
		t.Fatalf("attraction = %v, want 2", got.Attraction)
	}
	if got.Intimacy != 3 {
		t.Fatalf("intimacy = %v, want 3", got.Intimacy)
	}
	// Gap 3 + 4 = 7 points, 100 - 140 clamps to zero.
	if got.EmotionalSyncPercent != 0 {
		t.Fatalf("sync percent = %v, want 0", got.EmotionalSyncPercent)
	}
}

func TestComputeSingleResponderHasNoSync(t *testing.T) {
	got := Compute([]response.Response{evaluated("a", 1, 1, 0, 5, 5, 5, 5)})
	if got.EmotionalSync != 0 || got.EmotionalSyncPercent != 0 {
		t.Fatalf("sync = %v/%v, want 0", got.EmotionalSync, got.EmotionalSyncPercent)
	}
}

func TestFeelingFor(t *testing.T) {
	tests := []struct {
		overall float64
		want    Feeling
	}{
		{5, FeelingHighConnection},
		{4, FeelingHighConnection},
		{3.99, FeelingGrowingConnection},
		{3, FeelingGrowingConnection},
		{2, FeelingCurious},
		{1.99, FeelingDistant},
		{0, FeelingDistant},
	}
	for _, tt := range tests {
		if got := FeelingFor(tt.overall); got != tt.want {
			t.Fatalf("FeelingFor(%v) = %q, want %q", tt.overall, got, tt.want)
		}
	}
}
