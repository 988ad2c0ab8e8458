package severity

import (
	"EcoPulse/internal/domain"
)

// DefaultAnomalyThreshold is one full severity-level width.
const DefaultAnomalyThreshold = 25

// DefaultClampWarnRatio is the share of clamped dimensions that signals degraded oracle output.
const DefaultClampWarnRatio = 0.30

// Shift describes a single dimension jump between two snapshots.
type Shift struct {
	Dimension domain.Dimension
	Previous  int
	Current   int
}

// Delta is the absolute change of the shift.
func (s Shift) Delta() int {
	d := s.Current - s.Previous
	if d < 0 {
		return -d
	}
	return d
}

// DetectAnomalies returns the dimensions whose change exceeds threshold.
// Transitions to or from INSUFFICIENT_DATA have no comparable baseline and are skipped.
func DetectAnomalies(previous, current domain.DimensionScores, threshold int) []Shift {
	pairs := []Shift{
		{Dimension: domain.DimensionHealth, Previous: previous.Health, Current: current.Health},
		{Dimension: domain.DimensionEcological, Previous: previous.Ecological, Current: current.Ecological},
		{Dimension: domain.DimensionEconomic, Previous: previous.Economic, Current: current.Economic},
	}

	var shifts []Shift
	for _, p := range pairs {
		if p.Previous == domain.InsufficientScore || p.Current == domain.InsufficientScore {
			continue
		}
		if p.Delta() > threshold {
			shifts = append(shifts, p)
		}
	}
	return shifts
}

// ClampMonitor counts validated dimensions across a run.
type ClampMonitor struct {
	total    int
	adjusted int
}

// Observe records one validated dimension.
func (m *ClampMonitor) Observe(adjusted bool) {
	m.total++
	if adjusted {
		m.adjusted++
	}
}

// Adjusted reports how many dimensions were corrected.
func (m *ClampMonitor) Adjusted() int {
	return m.adjusted
}

// Total reports how many dimensions were validated.
func (m *ClampMonitor) Total() int {
	return m.total
}

// Degraded is true when the corrected share exceeds ratio.
func (m *ClampMonitor) Degraded(ratio float64) bool {
	if m.total == 0 {
		return false
	}
	return float64(m.adjusted)/float64(m.total) > ratio
}
