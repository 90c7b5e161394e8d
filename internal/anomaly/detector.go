// Package anomaly flags spikes by comparing recent windows of a metric with
// the windows just before them.
package anomaly

import (
	"fmt"

	"github.com/t77yq/loadwatch/internal/model"
)

const (
	// DefaultWindow is the number of entries in each compared window.
	DefaultWindow = 3

	ActivitySpikeRatio = 3.0
	WorkloadSpikeRatio = 1.5
)

// Detector compares the mean of the last Window entries of a series with the
// mean of the Window entries before them.
type Detector struct {
	Type      model.AlertType
	Severity  model.AlertSeverity
	Threshold float64
	Window    int
	Metric    string
}

// NewActivitySpikeDetector detects message-count spikes (ratio above 3.0).
func NewActivitySpikeDetector() *Detector {
	return &Detector{
		Type:      model.AlertTypeActivitySpike,
		Severity:  model.AlertSeverityHigh,
		Threshold: ActivitySpikeRatio,
		Window:    DefaultWindow,
		Metric:    "message_count",
	}
}

// NewWorkloadSpikeDetector detects workload-score spikes (ratio above 1.5).
func NewWorkloadSpikeDetector() *Detector {
	return &Detector{
		Type:      model.AlertTypeWorkloadSpike,
		Severity:  model.AlertSeverityMedium,
		Threshold: WorkloadSpikeRatio,
		Window:    DefaultWindow,
		Metric:    "workload",
	}
}

func (d *Detector) window() int {
	if d.Window <= 0 {
		return DefaultWindow
	}
	return d.Window
}

// Check returns a finding when the recent/previous ratio exceeds the
// threshold. Short series and a zero previous mean yield nil.
func (d *Detector) Check(entityID string, series []float64) *model.PatternFinding {
	w := d.window()
	if len(series) < 2*w {
		return nil
	}

	recent := mean(series[len(series)-w:])
	previous := mean(series[len(series)-2*w : len(series)-w])

	r, ok := Ratio(recent, previous)
	if !ok || r <= d.Threshold {
		return nil
	}

	var affected []string
	if entityID != "" {
		affected = []string{entityID}
	}
	return &model.PatternFinding{
		Type:             d.Type,
		Severity:         d.Severity,
		Description:      fmt.Sprintf("%s increased by %.1fx", d.Metric, r),
		AffectedEntities: affected,
		Metrics: map[string]float64{
			"recent_mean":   recent,
			"previous_mean": previous,
			"ratio":         r,
		},
	}
}

// Ratio divides current by previous, reporting false when previous is not
// positive.
func Ratio(current, previous float64) (float64, bool) {
	if previous <= 0 {
		return 0, false
	}
	return current / previous, true
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
