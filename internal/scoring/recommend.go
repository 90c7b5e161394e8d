package scoring

import (
	"fmt"
	"strings"

	"github.com/t77yq/loadwatch/internal/model"
)

// WorkloadRecommendations turns workload factors and level into advice.
func WorkloadRecommendations(factors []string, level model.WorkloadLevel) []string {
	has := make(map[string]bool, len(factors))
	for _, f := range factors {
		has[f] = true
	}

	var recs []string
	if has[FactorHighMeetingDensity] {
		recs = append(recs, "Consolidate meetings into focused blocks")
	}
	if has[FactorHighTaskVolume] {
		recs = append(recs, "Prioritize and delegate lower-priority tasks")
	}
	if has[FactorMultipleDeadlines] {
		recs = append(recs, "Request deadline extensions where possible")
	}
	if has[FactorHighContextSwitching] {
		recs = append(recs, "Implement focus time blocks")
	}
	if level.Overloaded() {
		recs = append(recs,
			"Discuss workload with manager",
			"Take regular breaks to prevent burnout")
	}

	if len(recs) == 0 {
		return []string{"Maintain current work patterns"}
	}
	return recs
}

// TeamRecommendations advises on a team's workload distribution.
func TeamRecommendations(overloaded, underloaded []string, imbalance float64) []string {
	var recs []string
	if imbalance > 0.6 {
		recs = append(recs, fmt.Sprintf("Redistribute work from %s to %s",
			strings.Join(overloaded, ", "), strings.Join(underloaded, ", ")))
	}
	if len(overloaded) > len(underloaded) {
		recs = append(recs, "Consider hiring additional team members")
	}
	if imbalance > 0.8 {
		recs = append(recs, "Urgent workload rebalancing required")
	}

	if len(recs) == 0 {
		return []string{"Team workload is well balanced"}
	}
	return recs
}
