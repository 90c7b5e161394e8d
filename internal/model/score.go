package model

import (
	"fmt"
	"strings"
	"time"
)

// ScoreKind identifies which score a ScoreRecord carries
type ScoreKind string

const (
	ScoreKindStress   ScoreKind = "stress"
	ScoreKindWorkload ScoreKind = "workload"
	ScoreKindUrgency  ScoreKind = "urgency"
	ScoreKindBurnout  ScoreKind = "burnout"
)

// ScoreRecord is one evaluation of one score for one entity. Value is always
// in [0,1].
type ScoreRecord struct {
	EntityID   string    `json:"entity_id"`
	Kind       ScoreKind `json:"kind"`
	Value      float64   `json:"value"`
	Factors    []string  `json:"contributing_factors"`
	ComputedAt time.Time `json:"computed_at"`
}

// WorkloadLevel is the categorical label derived from a workload score
type WorkloadLevel string

const (
	WorkloadLow      WorkloadLevel = "LOW"
	WorkloadMedium   WorkloadLevel = "MEDIUM"
	WorkloadHigh     WorkloadLevel = "HIGH"
	WorkloadCritical WorkloadLevel = "CRITICAL"
)

// WorkloadLevelFor maps a workload score to its level, checking the highest
// bound first.
func WorkloadLevelFor(score float64) WorkloadLevel {
	switch {
	case score >= 0.8:
		return WorkloadCritical
	case score >= 0.6:
		return WorkloadHigh
	case score >= 0.3:
		return WorkloadMedium
	default:
		return WorkloadLow
	}
}

// Overloaded reports whether the level is HIGH or CRITICAL.
func (l WorkloadLevel) Overloaded() bool {
	return l == WorkloadHigh || l == WorkloadCritical
}

// PatternFinding is a population-level or time-series flag. Type reuses the
// alert vocabulary so a finding can be dispatched as-is.
type PatternFinding struct {
	Type             AlertType          `json:"type"`
	Severity         AlertSeverity      `json:"severity"`
	Description      string             `json:"description"`
	AffectedEntities []string           `json:"affected_entities,omitempty"`
	Metrics          map[string]float64 `json:"metric_snapshot,omitempty"`
}

// Request converts the finding into an alert request for target.
func (f PatternFinding) Request(target Target) AlertRequest {
	metadata := make(map[string]interface{}, len(f.Metrics)+1)
	for k, v := range f.Metrics {
		metadata[k] = v
	}
	if len(f.AffectedEntities) > 0 {
		metadata["affected_entities"] = strings.Join(f.AffectedEntities, ",")
	}
	return AlertRequest{
		Target:   target,
		Type:     f.Type,
		Severity: f.Severity,
		Message:  f.Description,
		Metadata: metadata,
	}
}

func (f PatternFinding) String() string {
	return fmt.Sprintf("%s[%s]: %s", f.Type, f.Severity, f.Description)
}
