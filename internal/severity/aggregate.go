package severity

import (
	"math"

	"EcoPulse/internal/domain"
)

// Dimension weights in percent; they sum to 100.
const (
	WeightEcological = 40
	WeightHealth     = 35
	WeightEconomic   = 25
)

// FallbackOverall is used when no dimension could be assessed.
const FallbackOverall = 50

// Aggregate computes the weighted overall score over the assessable dimensions.
// The second return value is true when every dimension was INSUFFICIENT_DATA.
func Aggregate(scores domain.DimensionScores) (int, bool) {
	weighted := []struct {
		score  int
		weight int
	}{
		{scores.Health, WeightHealth},
		{scores.Ecological, WeightEcological},
		{scores.Economic, WeightEconomic},
	}

	var sum, totalWeight int
	for _, w := range weighted {
		if w.score == domain.InsufficientScore {
			continue
		}
		sum += w.score * w.weight
		totalWeight += w.weight
	}

	if totalWeight == 0 {
		return FallbackOverall, true
	}

	return int(math.Round(float64(sum) / float64(totalWeight))), false
}

// UrgencyFor derives the urgency tier from an overall score.
func UrgencyFor(overall int) domain.Urgency {
	switch {
	case overall >= 80:
		return domain.UrgencyBreaking
	case overall >= 60:
		return domain.UrgencyCritical
	case overall >= 30:
		return domain.UrgencyModerate
	default:
		return domain.UrgencyInformational
	}
}
