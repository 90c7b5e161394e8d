package aggregator

import (
	"fmt"

	"github.com/t77yq/loadwatch/internal/model"
	"github.com/t77yq/loadwatch/internal/scoring"
)

// MemberWorkload is the workload evaluation of one team member
type MemberWorkload struct {
	EntityID string              `json:"entity_id"`
	Score    float64             `json:"workload_score"`
	Level    model.WorkloadLevel `json:"workload_level"`
	Factors  []string            `json:"factors"`
}

// TeamBalance is the workload distribution across a team
type TeamBalance struct {
	TeamID          string                `json:"team_id"`
	AverageWorkload float64               `json:"average_workload"`
	Overloaded      []string              `json:"overloaded_members"`
	Underloaded     []string              `json:"underloaded_members"`
	Imbalance       float64               `json:"workload_imbalance_score"`
	Recommendations []string              `json:"recommendations"`
	Members         []MemberWorkload      `json:"detailed_breakdown"`
	Finding         *model.PatternFinding `json:"finding,omitempty"`
}

// TeamWorkload evaluates each member's latest activity and measures how
// unevenly the load is spread. Imbalance is the overloaded share of members.
func (a *Aggregator) TeamWorkload(teamID string, members []model.ActivityRecord) TeamBalance {
	balance := TeamBalance{
		TeamID:      teamID,
		Overloaded:  []string{},
		Underloaded: []string{},
		Members:     make([]MemberWorkload, 0, len(members)),
	}

	total := 0.0
	for _, m := range members {
		score, level, factors := scoring.WorkloadFromActivity(m)
		total += score
		balance.Members = append(balance.Members, MemberWorkload{
			EntityID: m.EntityID,
			Score:    score,
			Level:    level,
			Factors:  factors,
		})
		switch {
		case level.Overloaded():
			balance.Overloaded = append(balance.Overloaded, m.EntityID)
		case level == model.WorkloadLow:
			balance.Underloaded = append(balance.Underloaded, m.EntityID)
		}
	}

	if n := len(members); n > 0 {
		balance.AverageWorkload = total / float64(n)
		balance.Imbalance = float64(len(balance.Overloaded)) / float64(n)
	}
	balance.Recommendations = scoring.TeamRecommendations(balance.Overloaded, balance.Underloaded, balance.Imbalance)

	if balance.Imbalance > a.cfg.ImbalanceRatio {
		severity := model.AlertSeverityMedium
		if balance.Imbalance > a.cfg.CriticalImbalance {
			severity = model.AlertSeverityHigh
		}
		balance.Finding = &model.PatternFinding{
			Type:     model.AlertTypeWorkImbalance,
			Severity: severity,
			Description: fmt.Sprintf("Team workload imbalance detected: %d of %d members overloaded",
				len(balance.Overloaded), len(members)),
			AffectedEntities: balance.Overloaded,
			Metrics: map[string]float64{
				"imbalance_score":  balance.Imbalance,
				"average_workload": balance.AverageWorkload,
			},
		}
	}

	return balance
}

// Summary is a count/mean/threshold view over a set of score records
type Summary struct {
	Kind     model.ScoreKind `json:"kind"`
	Count    int             `json:"count"`
	Mean     float64         `json:"mean"`
	Above    int             `json:"above_threshold"`
	Affected []string        `json:"affected_entities"`
}

// Summarize aggregates the records of one kind. Records of other kinds are
// ignored; Above counts values strictly greater than threshold.
func Summarize(kind model.ScoreKind, records []model.ScoreRecord, threshold float64) Summary {
	s := Summary{Kind: kind, Affected: []string{}}
	total := 0.0
	for _, r := range records {
		if r.Kind != kind {
			continue
		}
		s.Count++
		total += r.Value
		if r.Value > threshold {
			s.Above++
			s.Affected = append(s.Affected, r.EntityID)
		}
	}
	if s.Count > 0 {
		s.Mean = total / float64(s.Count)
	}
	return s
}
