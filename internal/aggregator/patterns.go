package aggregator

import (
	"fmt"
	"math"

	"github.com/t77yq/loadwatch/internal/anomaly"
	"github.com/t77yq/loadwatch/internal/model"
	"github.com/t77yq/loadwatch/internal/scoring"
)

// Work pattern types
const (
	PatternWorkingHours     = "WORKING_HOURS"
	PatternMessageFrequency = "MESSAGE_FREQUENCY"
	PatternResponseTime     = "RESPONSE_TIME"
)

// WorkPattern describes one habit observed across an entity's history.
// Level is high, medium or low.
type WorkPattern struct {
	Type        string  `json:"type"`
	Average     float64 `json:"average"`
	Level       string  `json:"level"`
	Description string  `json:"description"`
}

// WorkPatterns is the pattern and anomaly view of one entity's history
type WorkPatterns struct {
	EntityID  string                 `json:"entity_id"`
	Patterns  []WorkPattern          `json:"patterns"`
	Anomalies []model.PatternFinding `json:"anomalies"`
}

func tier(v, high, medium float64, above bool) string {
	switch {
	case above && v > high, !above && v < high:
		return "high"
	case above && v > medium, !above && v < medium:
		return "medium"
	default:
		return "low"
	}
}

// DetectWorkPatterns summarizes working-hours consistency, message frequency
// and responsiveness over history (oldest first), and runs the activity and
// workload spike detectors over it.
func DetectWorkPatterns(entityID string, history []model.ActivityRecord) WorkPatterns {
	out := WorkPatterns{
		EntityID:  entityID,
		Patterns:  []WorkPattern{},
		Anomalies: []model.PatternFinding{},
	}
	if len(history) == 0 {
		return out
	}

	var hours, responses []float64
	messages := make([]float64, len(history))
	workload := make([]float64, len(history))
	for i, rec := range history {
		messages[i] = rec.MessagesPerHour
		workload[i], _, _ = scoring.WorkloadFromActivity(rec)
		if rec.DailyHours > 0 {
			hours = append(hours, rec.DailyHours)
		}
		if rec.AvgResponseTimeMinutes > 0 {
			responses = append(responses, rec.AvgResponseTimeMinutes)
		}
	}

	if len(hours) > 0 {
		avg, dev := mean(hours), stdev(hours)
		consistency := "low"
		switch {
		case dev < 2:
			consistency = "high"
		case dev < 4:
			consistency = "medium"
		}
		out.Patterns = append(out.Patterns, WorkPattern{
			Type:        PatternWorkingHours,
			Average:     avg,
			Level:       consistency,
			Description: fmt.Sprintf("Typically works %.1f hours a day", avg),
		})
	}

	avgMessages := mean(messages)
	out.Patterns = append(out.Patterns, WorkPattern{
		Type:        PatternMessageFrequency,
		Average:     avgMessages,
		Level:       tier(avgMessages, 10, 5, true),
		Description: fmt.Sprintf("Sends ~%.1f messages per hour on average", avgMessages),
	})

	if len(responses) > 0 {
		avg := mean(responses)
		out.Patterns = append(out.Patterns, WorkPattern{
			Type:        PatternResponseTime,
			Average:     avg,
			Level:       tier(avg, 10, 30, false),
			Description: fmt.Sprintf("Average response time: %.1f minutes", avg),
		})
	}

	if f := anomaly.NewActivitySpikeDetector().Check(entityID, messages); f != nil {
		out.Anomalies = append(out.Anomalies, *f)
	}
	if f := anomaly.NewWorkloadSpikeDetector().Check(entityID, workload); f != nil {
		out.Anomalies = append(out.Anomalies, *f)
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdev is the sample standard deviation, 0 for fewer than two values.
func stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
