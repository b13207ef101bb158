// Package psych derives volatility, correlation, trend and breakthrough
// metrics from the evaluated responses of a session.
package psych

import (
	"cmp"
	"math"
	"slices"

	"github.com/louisbranch/duet/internal/services/duet/domain/response"
)

// Direction classifies the trend of composite scores across a session.
type Direction string

const (
	DirectionRising    Direction = "rising"
	DirectionStable    Direction = "stable"
	DirectionDeclining Direction = "declining"
)

// Pattern names a qualitative reading of the metrics.
type Pattern string

const (
	PatternTrustBuildsCloseness   Pattern = "trust_builds_closeness"
	PatternNoveltyFuelsAttraction Pattern = "novelty_fuels_attraction"
	PatternSteadyBond             Pattern = "steady_bond"
	PatternEmotionalRollercoaster Pattern = "emotional_rollercoaster"
	PatternGuardedOpenness        Pattern = "guarded_openness"
)

const (
	// BreakthroughThreshold is the score at which a single dimension counts
	// as a breakthrough moment.
	BreakthroughThreshold = 4.5

	momentumThreshold       = 0.1
	strongCorrelation       = 0.7
	inverseCorrelation      = -0.5
	steadyStability         = 0.8
	rollercoasterVolatility = 1.5
)

// Report is the psychological reading of a session.
type Report struct {
	Bond          Bond           `json:"bond"`
	Volatility    Volatility     `json:"volatility"`
	Correlations  Correlations   `json:"correlations"`
	Stability     float64        `json:"stability"`
	Trend         Trend          `json:"trend"`
	Breakthroughs []Breakthrough `json:"breakthroughs"`
	Patterns      []Pattern      `json:"patterns"`
	Count         int            `json:"count"`
}

// Bond summarizes the relationship on three axes.
type Bond struct {
	Closeness float64 `json:"closeness"`
	Spark     float64 `json:"spark"`
	Anchor    float64 `json:"anchor"`
}

// Volatility holds the population standard deviation per dimension.
type Volatility struct {
	Honesty    float64 `json:"honesty"`
	Attraction float64 `json:"attraction"`
	Intimacy   float64 `json:"intimacy"`
	Surprise   float64 `json:"surprise"`
	Total      float64 `json:"total"`
}

// Correlations holds Pearson coefficients between paired dimensions.
type Correlations struct {
	HonestyIntimacy    float64 `json:"honesty_intimacy"`
	AttractionSurprise float64 `json:"attraction_surprise"`
}

// Trend compares the first and last thirds of the session.
type Trend struct {
	Direction Direction `json:"direction"`
	Momentum  float64   `json:"momentum"`
	EarlyMean float64   `json:"early_mean"`
	LateMean  float64   `json:"late_mean"`
}

// Breakthrough is one response that scored at or above the threshold on a
// dimension.
type Breakthrough struct {
	ResponseID  string             `json:"response_id"`
	Round       int                `json:"round"`
	ResponderID string             `json:"responder_id"`
	Dimension   response.Dimension `json:"dimension"`
	Score       float64            `json:"score"`
}

// Analyze builds the report. Zero evaluated responses yield an all-zero
// report with a stable trend.
func Analyze(responses []response.Response) Report {
	evaluated := response.EvaluatedOnly(responses)
	slices.SortStableFunc(evaluated, func(a, b response.Response) int {
		return cmp.Compare(a.Round, b.Round)
	})
	report := Report{
		Trend:         Trend{Direction: DirectionStable},
		Breakthroughs: []Breakthrough{},
		Patterns:      []Pattern{},
		Count:         len(evaluated),
	}
	if len(evaluated) == 0 {
		return report
	}

	var series [4][]float64
	for _, r := range evaluated {
		for i, v := range r.Evaluation.Scores() {
			series[i] = append(series[i], v)
		}
	}
	honesty, attraction, intimacy, surprise := series[0], series[1], series[2], series[3]

	report.Volatility = Volatility{
		Honesty:    stddev(honesty),
		Attraction: stddev(attraction),
		Intimacy:   stddev(intimacy),
		Surprise:   stddev(surprise),
	}
	report.Volatility.Total = report.Volatility.Honesty + report.Volatility.Attraction +
		report.Volatility.Intimacy + report.Volatility.Surprise

	report.Bond = Bond{
		Closeness: max(0, mean(intimacy)*(1-report.Volatility.Intimacy/response.MaxScore)),
		Spark:     (mean(attraction) + mean(surprise)) / 2,
		Anchor:    mean(honesty),
	}
	report.Correlations = Correlations{
		HonestyIntimacy:    pearson(honesty, intimacy),
		AttractionSurprise: pearson(attraction, surprise),
	}
	report.Stability = max(0, 1-report.Volatility.Total/10)
	report.Trend = trend(evaluated)
	report.Breakthroughs = breakthroughs(evaluated)
	report.Patterns = patterns(report)

	report.round()
	return report
}

func trend(evaluated []response.Response) Trend {
	n := len(evaluated)
	if n < 3 {
		return Trend{Direction: DirectionStable}
	}
	composites := make([]float64, n)
	for i, r := range evaluated {
		scores := r.Evaluation.Scores()
		composites[i] = mean(scores[:])
	}
	third := n / 3
	early := mean(composites[:third])
	late := mean(composites[n-third:])

	var momentum float64
	switch {
	case early > 0:
		momentum = (late - early) / early
	case late > 0:
		momentum = 1
	}

	direction := DirectionStable
	switch {
	case momentum > momentumThreshold:
		direction = DirectionRising
	case momentum < -momentumThreshold:
		direction = DirectionDeclining
	}
	return Trend{Direction: direction, Momentum: momentum, EarlyMean: early, LateMean: late}
}

func breakthroughs(evaluated []response.Response) []Breakthrough {
	out := []Breakthrough{}
	dims := response.Dimensions()
	for _, r := range evaluated {
		for i, v := range r.Evaluation.Scores() {
			if v >= BreakthroughThreshold {
				out = append(out, Breakthrough{
					ResponseID:  r.ID,
					Round:       r.Round,
					ResponderID: r.ResponderID,
					Dimension:   dims[i],
					Score:       v,
				})
			}
		}
	}
	return out
}

func patterns(r Report) []Pattern {
	out := []Pattern{}
	if r.Correlations.HonestyIntimacy >= strongCorrelation {
		out = append(out, PatternTrustBuildsCloseness)
	}
	if r.Correlations.AttractionSurprise >= strongCorrelation {
		out = append(out, PatternNoveltyFuelsAttraction)
	}
	if r.Count >= 2 && r.Stability >= steadyStability {
		out = append(out, PatternSteadyBond)
	}
	v := r.Volatility
	if max(v.Honesty, v.Attraction, v.Intimacy, v.Surprise) >= rollercoasterVolatility {
		out = append(out, PatternEmotionalRollercoaster)
	}
	if r.Correlations.HonestyIntimacy <= inverseCorrelation {
		out = append(out, PatternGuardedOpenness)
	}
	return out
}

func (r *Report) round() {
	for _, p := range []*float64{
		&r.Bond.Closeness, &r.Bond.Spark, &r.Bond.Anchor,
		&r.Volatility.Honesty, &r.Volatility.Attraction, &r.Volatility.Intimacy,
		&r.Volatility.Surprise, &r.Volatility.Total,
		&r.Correlations.HonestyIntimacy, &r.Correlations.AttractionSurprise,
		&r.Stability, &r.Trend.Momentum, &r.Trend.EarlyMean, &r.Trend.LateMean,
	} {
		*p = math.Round(*p*100) / 100
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the population standard deviation.
func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

// pearson returns 0 when either series has no variance or fewer than two
// points.
func pearson(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	mx, my := mean(x), mean(y)
	var sxy, sxx, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	return sxy / math.Sqrt(sxx*syy)
}
