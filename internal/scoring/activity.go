package scoring

import (
	"time"

	"github.com/t77yq/loadwatch/internal/model"
)

// Stress indicators
const (
	IndicatorHighMessageFrequency = "high_message_frequency"
	IndicatorRapidResponses       = "rapid_responses"
	IndicatorExtendedHours        = "extended_hours"
	IndicatorLateNightWork        = "late_night_work"
	IndicatorWeekendWork          = "weekend_work"
)

// Workload factors
const (
	FactorHighMeetingDensity     = "high_meeting_density"
	FactorModerateMeetingDensity = "moderate_meeting_density"
	FactorHighTaskVolume         = "high_task_volume"
	FactorModerateTaskVolume     = "moderate_task_volume"
	FactorMultipleDeadlines      = "multiple_deadlines"
	FactorHighContextSwitching   = "high_context_switching"
)

// BurnoutFloor is returned when no burnout factor applies.
const BurnoutFloor = 0.1

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// stressRules weights sum to exactly 1.0.
var stressRules = []struct {
	indicator string
	weight    float64
	applies   func(a model.ActivityRecord) bool
}{
	{IndicatorHighMessageFrequency, 0.30, func(a model.ActivityRecord) bool { return a.MessagesPerHour > 15 }},
	{IndicatorRapidResponses, 0.25, func(a model.ActivityRecord) bool { return a.AvgResponseTimeMinutes < 2 }},
	{IndicatorExtendedHours, 0.20, func(a model.ActivityRecord) bool { return a.DailyHours > 10 }},
	{IndicatorLateNightWork, 0.15, func(a model.ActivityRecord) bool { return a.LateNightMessages > 3 }},
	{IndicatorWeekendWork, 0.10, func(a model.ActivityRecord) bool { return a.WeekendHours > 4 }},
}

// StressFromActivity applies the additive stress rules and returns the
// clamped score with the indicators that fired.
func StressFromActivity(a model.ActivityRecord) (float64, []string) {
	score := 0.0
	indicators := []string{}
	for _, rule := range stressRules {
		if rule.applies(a) {
			score += rule.weight
			indicators = append(indicators, rule.indicator)
		}
	}
	return clamp(score), indicators
}

// WorkloadFromActivity applies the tiered workload rules.
func WorkloadFromActivity(a model.ActivityRecord) (float64, model.WorkloadLevel, []string) {
	score := 0.0
	factors := []string{}

	switch {
	case a.MeetingHoursPerDay > 6:
		score += 0.40
		factors = append(factors, FactorHighMeetingDensity)
	case a.MeetingHoursPerDay > 4:
		score += 0.25
		factors = append(factors, FactorModerateMeetingDensity)
	}

	switch {
	case a.ActiveTasks > 10:
		score += 0.30
		factors = append(factors, FactorHighTaskVolume)
	case a.ActiveTasks > 5:
		score += 0.15
		factors = append(factors, FactorModerateTaskVolume)
	}

	if a.UpcomingDeadlines > 3 {
		score += 0.20
		factors = append(factors, FactorMultipleDeadlines)
	}

	if a.ContextSwitchesPerHour > 8 {
		score += 0.10
		factors = append(factors, FactorHighContextSwitching)
	}

	score = clamp(score)
	return score, model.WorkloadLevelFor(score), factors
}

// BurnoutFromActivity returns the mean of the triggered risk factors, or
// BurnoutFloor when none trigger.
func BurnoutFromActivity(a model.ActivityRecord) float64 {
	var factors []float64

	switch {
	case a.WeeklyHours > 60:
		factors = append(factors, 0.9)
	case a.WeeklyHours > 50:
		factors = append(factors, 0.7)
	case a.WeeklyHours > 40:
		factors = append(factors, 0.4)
	}

	switch {
	case a.WeekendWorkRatio > 0.5:
		factors = append(factors, 0.8)
	case a.WeekendWorkRatio > 0.3:
		factors = append(factors, 0.5)
	}

	if a.AvgResponseTimeMinutes < 5 {
		factors = append(factors, 0.6)
	}

	if a.LateNightSessions > 3 {
		factors = append(factors, 0.7)
	}

	if len(factors) == 0 {
		return BurnoutFloor
	}

	sum := 0.0
	for _, f := range factors {
		sum += f
	}
	return clamp(sum / float64(len(factors)))
}

// Evaluate computes the stress, workload and burnout records for a.
func Evaluate(a model.ActivityRecord, now time.Time) []model.ScoreRecord {
	stress, indicators := StressFromActivity(a)
	workload, _, factors := WorkloadFromActivity(a)
	burnout := BurnoutFromActivity(a)

	return []model.ScoreRecord{
		{
			EntityID:   a.EntityID,
			Kind:       model.ScoreKindStress,
			Value:      stress,
			Factors:    indicators,
			ComputedAt: now,
		},
		{
			EntityID:   a.EntityID,
			Kind:       model.ScoreKindWorkload,
			Value:      workload,
			Factors:    factors,
			ComputedAt: now,
		},
		{
			EntityID:   a.EntityID,
			Kind:       model.ScoreKindBurnout,
			Value:      burnout,
			ComputedAt: now,
		},
	}
}

// ActivityReport is the scored view of one activity record
type ActivityReport struct {
	EntityID         string              `json:"entity_id"`
	StressScore      float64             `json:"stress_score"`
	StressIndicators []string            `json:"stress_indicators"`
	WorkloadScore    float64             `json:"workload_score"`
	WorkloadLevel    model.WorkloadLevel `json:"workload_level"`
	WorkloadFactors  []string            `json:"workload_factors"`
	BurnoutRisk      float64             `json:"burnout_risk"`
	Recommendations  []string            `json:"recommendations"`
}

// Report scores a for stress, workload and burnout.
func Report(a model.ActivityRecord) ActivityReport {
	stress, indicators := StressFromActivity(a)
	workload, level, factors := WorkloadFromActivity(a)
	return ActivityReport{
		EntityID:         a.EntityID,
		StressScore:      stress,
		StressIndicators: indicators,
		WorkloadScore:    workload,
		WorkloadLevel:    level,
		WorkloadFactors:  factors,
		BurnoutRisk:      BurnoutFromActivity(a),
		Recommendations:  WorkloadRecommendations(factors, level),
	}
}
