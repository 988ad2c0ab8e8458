package domain

import "strings"

// SeverityLevel is the coarse bucket that constrains a dimension score.
type SeverityLevel string

const (
	LevelMinimal          SeverityLevel = "MINIMAL"
	LevelModerate         SeverityLevel = "MODERATE"
	LevelSignificant      SeverityLevel = "SIGNIFICANT"
	LevelSevere           SeverityLevel = "SEVERE"
	LevelInsufficientData SeverityLevel = "INSUFFICIENT_DATA"
)

// InsufficientScore is the sentinel score carried by INSUFFICIENT_DATA dimensions.
const InsufficientScore = -1

// ParseSeverityLevel normalizes oracle spelling; unknown values are returned as-is.
func ParseSeverityLevel(raw string) SeverityLevel {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	return SeverityLevel(normalized)
}

// Urgency is the display/alerting tier derived from the overall score.
type Urgency string

const (
	UrgencyInformational Urgency = "informational"
	UrgencyModerate      Urgency = "moderate"
	UrgencyCritical      Urgency = "critical"
	UrgencyBreaking      Urgency = "breaking"
)

// Dimension names one of the three scored severity axes.
type Dimension string

const (
	DimensionHealth     Dimension = "health"
	DimensionEcological Dimension = "ecological"
	DimensionEconomic   Dimension = "economic"
)

// DimensionResult is the oracle's assessment of one dimension.
type DimensionResult struct {
	Reasoning string
	Level     SeverityLevel
	Score     int
}
