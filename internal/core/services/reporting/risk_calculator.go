package reporting

import "math"

// RiskCalculator scores the overall exposure of the tracked corpus.
type RiskCalculator struct{}

// NewRiskCalculator creates a new risk calculator instance.
func NewRiskCalculator() *RiskCalculator {
	return &RiskCalculator{}
}

// severity weights for the aggregate score
const (
	weightCritical = 10.0
	weightHigh     = 7.0
	weightMedium   = 4.0
	weightLow      = 1.0
)

// CalculateOverallRisk computes a 0-10 score from the severity mix, with a
// boost for records listed in the known-exploited catalog. A corpus that is
// mostly critical and actively exploited approaches 10.
func (rc *RiskCalculator) CalculateOverallRisk(critical, high, medium, low, kev, total int) float64 {
	if total == 0 {
		return 0.0
	}

	weighted := weightCritical*float64(critical) +
		weightHigh*float64(high) +
		weightMedium*float64(medium) +
		weightLow*float64(low)
	avg := weighted / float64(total)

	// Known-exploited share lifts the score by up to 50%.
	kevFactor := 1.0 + math.Min(float64(kev)/float64(total), 0.5)

	return math.Min(avg*kevFactor, 10.0)
}

// GetRiskLevel converts numeric score to human-readable level.
func (rc *RiskCalculator) GetRiskLevel(score float64) string {
	switch {
	case score >= 8.0:
		return "Critical"
	case score >= 6.0:
		return "High"
	case score >= 4.0:
		return "Medium"
	default:
		return "Low"
	}
}
