// Package severity holds the numeric rules that bound and combine oracle scores.
package severity

import (
	"math"

	"EcoPulse/internal/domain"
)

// Range is an inclusive score interval owned by a severity level.
type Range struct {
	Min int
	Max int
}

var levelRanges = map[domain.SeverityLevel]Range{
	domain.LevelMinimal:     {Min: 0, Max: 25},
	domain.LevelModerate:    {Min: 26, Max: 50},
	domain.LevelSignificant: {Min: 51, Max: 75},
	domain.LevelSevere:      {Min: 76, Max: 100},
}

// Levels lists the four scoreable levels in ascending order.
var Levels = []domain.SeverityLevel{
	domain.LevelMinimal,
	domain.LevelModerate,
	domain.LevelSignificant,
	domain.LevelSevere,
}

// RangeOf reports the score range of a scoreable level.
func RangeOf(level domain.SeverityLevel) (Range, bool) {
	r, ok := levelRanges[level]
	return r, ok
}

// Validated is the corrected (level, score) pair.
type Validated struct {
	Level    domain.SeverityLevel
	Score    int
	Adjusted bool
}

// Validate forces score into the range claimed by level. NaN marks a missing score.
func Validate(level domain.SeverityLevel, score float64) Validated {
	if level == domain.LevelInsufficientData || math.IsNaN(score) || math.IsInf(score, 0) {
		return Validated{
			Level:    domain.LevelInsufficientData,
			Score:    domain.InsufficientScore,
			Adjusted: level != domain.LevelInsufficientData || score != domain.InsufficientScore,
		}
	}

	r, ok := levelRanges[level]
	if !ok {
		r = levelRanges[domain.LevelModerate]
		return Validated{
			Level:    domain.LevelModerate,
			Score:    clamp(score, r),
			Adjusted: true,
		}
	}

	clamped := clamp(score, r)
	return Validated{
		Level:    level,
		Score:    clamped,
		Adjusted: float64(clamped) != score,
	}
}

// ValidateResult applies Validate to a dimension, keeping its reasoning.
func ValidateResult(d domain.DimensionResult) (domain.DimensionResult, bool) {
	v := Validate(d.Level, float64(d.Score))
	return domain.DimensionResult{
		Reasoning: d.Reasoning,
		Level:     v.Level,
		Score:     v.Score,
	}, v.Adjusted
}

// clamp bounds score in float space so values beyond the int range keep their sign.
func clamp(score float64, r Range) int {
	bounded := math.Max(float64(r.Min), math.Min(float64(r.Max), score))
	return int(math.Round(bounded))
}
