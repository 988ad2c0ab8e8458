package usecase

import (
	"log/slog"

	"EcoPulse/internal/domain"
	"EcoPulse/internal/severity"
)

// Assess validates the raw dimensions, computes overall score and urgency, and
// flags anomalies against prior. A nil prior (first sighting) is never anomalous.
func Assess(raw domain.TopicScoreSnapshot, prior *domain.DimensionScores, threshold int, monitor *severity.ClampMonitor, log *slog.Logger) (domain.TopicScoreSnapshot, []severity.Shift) {
	snap := raw

	dims := []struct {
		name domain.Dimension
		dim  *domain.DimensionResult
	}{
		{domain.DimensionHealth, &snap.Health},
		{domain.DimensionEcological, &snap.Ecological},
		{domain.DimensionEconomic, &snap.Economic},
	}
	for _, d := range dims {
		before := *d.dim
		validated, adjusted := severity.ValidateResult(before)
		*d.dim = validated
		if monitor != nil {
			monitor.Observe(adjusted)
		}
		if adjusted && log != nil {
			log.Debug("dimension score adjusted",
				"topic", snap.TopicName,
				"dimension", d.name,
				"level", before.Level,
				"score", before.Score,
				"new_level", validated.Level,
				"new_score", validated.Score,
			)
		}
	}

	overall, allInsufficient := severity.Aggregate(snap.Scores())
	if allInsufficient && log != nil {
		log.Warn("no dimension could be assessed, using fallback overall score", "topic", snap.TopicName, "overall", overall)
	}
	snap.OverallScore = overall
	snap.Urgency = severity.UrgencyFor(overall)

	var shifts []severity.Shift
	if prior != nil {
		if threshold <= 0 {
			threshold = severity.DefaultAnomalyThreshold
		}
		shifts = severity.DetectAnomalies(*prior, snap.Scores(), threshold)
	}
	snap.Anomalous = len(shifts) > 0
	if snap.Anomalous && log != nil {
		for _, s := range shifts {
			log.Warn("anomalous score change", "topic", snap.TopicName, "dimension", s.Dimension, "previous", s.Previous, "current", s.Current)
		}
	}

	return snap, shifts
}
