package response

import (
	"errors"
	"math"
	"testing"
)

func TestValidateScores(t *testing.T) {
	tests := []struct {
		name string
		eval Evaluation
		dim  Dimension
	}{
		{name: "in range", eval: Evaluation{Honesty: 0, Attraction: 5, Intimacy: 2.5, Surprise: 3}},
		{name: "negative", eval: Evaluation{Honesty: -0.1}, dim: DimensionHonesty},
		{name: "above max", eval: Evaluation{Intimacy: 5.01}, dim: DimensionIntimacy},
		{name: "nan", eval: Evaluation{Surprise: math.NaN()}, dim: DimensionSurprise},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScores(tt.eval)
			if tt.dim == "" {
				if err != nil {
					t.Fatalf("ValidateScores = %v, want nil", err)
				}
				return
			}
			var scoreErr *ScoreError
			if !errors.As(err, &scoreErr) || scoreErr.Dimension != tt.dim {
				t.Fatalf("ValidateScores = %v, want score error on %s", err, tt.dim)
			}
		})
	}
}

func TestValidateEvaluatorRejectsSelf(t *testing.T) {
	for _, id := range []string{"", "a", "participant-2"} {
		if err := ValidateEvaluator(id, id); !errors.Is(err, ErrSelfEvaluation) {
			t.Fatalf("ValidateEvaluator(%q, %q) = %v, want ErrSelfEvaluation", id, id, err)
		}
	}
	if err := ValidateEvaluator("a", "b"); err != nil {
		t.Fatalf("ValidateEvaluator(a, b) = %v", err)
	}
}

func TestEvaluatedOnly(t *testing.T) {
	in := []Response{{ID: "1"}, {ID: "2", Evaluation: &Evaluation{}}, {ID: "3"}}
	got := EvaluatedOnly(in)
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("EvaluatedOnly = %+v", got)
	}
}
