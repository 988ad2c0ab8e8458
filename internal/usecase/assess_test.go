package usecase

import (
	"testing"

	"EcoPulse/internal/domain"
	"EcoPulse/internal/severity"
)

func rawSnapshot(health, eco, econ domain.DimensionResult) domain.TopicScoreSnapshot {
	return domain.TopicScoreSnapshot{TopicName: "Topic", Health: health, Ecological: eco, Economic: econ}
}

func dim(level domain.SeverityLevel, score int) domain.DimensionResult {
	return domain.DimensionResult{Level: level, Score: score}
}

func TestAssessValidatesAndAggregates(t *testing.T) {
	t.Parallel()

	var monitor severity.ClampMonitor
	raw := rawSnapshot(
		dim(domain.LevelModerate, 35),
		dim(domain.LevelSevere, 80),
		dim(domain.LevelModerate, 40),
	)

	snap, shifts := Assess(raw, nil, 0, &monitor, nil)

	if snap.OverallScore != 54 || snap.Urgency != domain.UrgencyModerate {
		t.Fatalf("expected 54/moderate, got %d/%s", snap.OverallScore, snap.Urgency)
	}
	if len(shifts) != 0 || snap.Anomalous {
		t.Fatalf("first sighting must never be anomalous")
	}
	if monitor.Total() != 3 || monitor.Adjusted() != 0 {
		t.Fatalf("unexpected monitor counts: total=%d adjusted=%d", monitor.Total(), monitor.Adjusted())
	}
}

func TestAssessClampsOutOfRangeScores(t *testing.T) {
	t.Parallel()

	var monitor severity.ClampMonitor
	raw := rawSnapshot(
		dim(domain.LevelSevere, 40),
		dim("CATASTROPHIC", 95),
		dim(domain.LevelInsufficientData, 20),
	)

	snap, _ := Assess(raw, nil, 0, &monitor, nil)

	if snap.Health != dim(domain.LevelSevere, 76) {
		t.Fatalf("severe score must clamp to 76, got %+v", snap.Health)
	}
	if snap.Ecological != dim(domain.LevelModerate, 50) {
		t.Fatalf("unknown level must fall back to MODERATE, got %+v", snap.Ecological)
	}
	if snap.Economic != dim(domain.LevelInsufficientData, -1) {
		t.Fatalf("insufficient data must carry -1, got %+v", snap.Economic)
	}
	if monitor.Adjusted() != 3 {
		t.Fatalf("expected 3 adjusted dimensions, got %d", monitor.Adjusted())
	}
	if !monitor.Degraded(severity.DefaultClampWarnRatio) {
		t.Fatal("expected clamp monitor to report degradation")
	}
}

func TestAssessAllInsufficientFallsBack(t *testing.T) {
	t.Parallel()

	insufficient := dim(domain.LevelInsufficientData, -1)
	snap, _ := Assess(rawSnapshot(insufficient, insufficient, insufficient), nil, 0, nil, nil)
	if snap.OverallScore != severity.FallbackOverall {
		t.Fatalf("expected fallback overall %d, got %d", severity.FallbackOverall, snap.OverallScore)
	}
}

func TestAssessDetectsAnomalies(t *testing.T) {
	t.Parallel()

	prior := domain.DimensionScores{Health: 20, Ecological: 50, Economic: -1}
	raw := rawSnapshot(
		dim(domain.LevelSignificant, 60),
		dim(domain.LevelSevere, 76),
		dim(domain.LevelSevere, 90),
	)

	snap, shifts := Assess(raw, &prior, 25, nil, nil)

	if !snap.Anomalous || len(shifts) != 2 {
		t.Fatalf("expected health and ecological shifts, got %+v", shifts)
	}
	if shifts[0].Dimension != domain.DimensionHealth || shifts[0].Delta() != 40 {
		t.Fatalf("unexpected first shift: %+v", shifts[0])
	}

	_, shifts = Assess(raw, &prior, 45, nil, nil)
	if len(shifts) != 0 {
		t.Fatalf("threshold 45 must suppress the shifts, got %+v", shifts)
	}
}
