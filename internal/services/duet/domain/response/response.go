// Package response holds answers, their evaluations, and the integrity rules
// that guard them.
package response

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Score bounds for every evaluation dimension.
const (
	MinScore = 0.0
	MaxScore = 5.0
)

// Response is one participant's answer to a round's prompt.
type Response struct {
	ID          string
	SessionID   string
	Round       int
	PromptID    string
	Answer      string
	Elapsed     time.Duration
	Level       int
	ResponderID string
	Evaluation  *Evaluation
	CreatedAt   time.Time
}

// Evaluated reports whether an evaluation has been attached.
func (r Response) Evaluated() bool {
	return r.Evaluation != nil
}

// Evaluation is the other participant's scoring of a response.
type Evaluation struct {
	Honesty     float64
	Attraction  float64
	Intimacy    float64
	Surprise    float64
	EvaluatorID string
	EvaluatedAt time.Time
}

// Scores returns the four dimensions in canonical order.
func (e Evaluation) Scores() [4]float64 {
	return [4]float64{e.Honesty, e.Attraction, e.Intimacy, e.Surprise}
}

// Dimension names a scored axis.
type Dimension string

const (
	DimensionHonesty    Dimension = "honesty"
	DimensionAttraction Dimension = "attraction"
	DimensionIntimacy   Dimension = "intimacy"
	DimensionSurprise   Dimension = "surprise"
)

// Dimensions lists the scored axes in the order Scores returns them.
func Dimensions() []Dimension {
	return []Dimension{DimensionHonesty, DimensionAttraction, DimensionIntimacy, DimensionSurprise}
}

// ScoreError reports a score outside [MinScore, MaxScore].
type ScoreError struct {
	Dimension Dimension
	Value     float64
}

func (e *ScoreError) Error() string {
	return fmt.Sprintf("%s score %v outside [%v, %v]", e.Dimension, e.Value, MinScore, MaxScore)
}

// ValidateScores checks every dimension is a finite value in range.
func ValidateScores(e Evaluation) error {
	for i, v := range e.Scores() {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < MinScore || v > MaxScore {
			return &ScoreError{Dimension: Dimensions()[i], Value: v}
		}
	}
	return nil
}

// ErrSelfEvaluation is returned when a participant tries to score their own answer.
var ErrSelfEvaluation = errors.New("evaluator must differ from responder")

// ValidateEvaluator enforces evaluator != responder.
func ValidateEvaluator(responderID, evaluatorID string) error {
	if responderID == evaluatorID {
		return ErrSelfEvaluation
	}
	return nil
}

// EvaluatedOnly filters responses that carry an evaluation, preserving order.
func EvaluatedOnly(responses []Response) []Response {
	out := make([]Response, 0, len(responses))
	for _, r := range responses {
		if r.Evaluated() {
			out = append(out, r)
		}
	}
	return out
}
