// Package aggregator combines per-message and per-entity scores into
// population-level distributions and pattern findings.
package aggregator

import (
	"fmt"
	"sort"

	"github.com/t77yq/loadwatch/internal/model"
	"github.com/t77yq/loadwatch/internal/scoring"
)

// Config holds the population thresholds. All comparisons are strict.
type Config struct {
	UrgencyScore      float64
	UrgencyRatio      float64
	StressRatio       float64
	TopK              int
	ImbalanceRatio    float64
	CriticalImbalance float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		UrgencyScore:      0.7,
		UrgencyRatio:      0.3,
		StressRatio:       0.2,
		TopK:              5,
		ImbalanceRatio:    0.6,
		CriticalImbalance: 0.8,
	}
}

// SentimentDistribution is the share of each sentiment in a batch
type SentimentDistribution struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

// PriorityDistribution is the share of each priority in a batch
type PriorityDistribution struct {
	High   float64 `json:"high"`
	Medium float64 `json:"medium"`
	Normal float64 `json:"normal"`
}

// TopicCount is one entry of the top-K topic list
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// BatchAnalysis is the aggregate view of a message batch
type BatchAnalysis struct {
	Total           int                    `json:"total_messages"`
	Sentiment       SentimentDistribution  `json:"average_sentiment"`
	Urgency         PriorityDistribution   `json:"urgency_distribution"`
	StressFrequency float64                `json:"stress_frequency"`
	TopTopics       []TopicCount           `json:"common_topics"`
	Patterns        []model.PatternFinding `json:"patterns"`
}

// Aggregator computes batch-level statistics
type Aggregator struct {
	cfg Config
}

// New creates an aggregator with the given thresholds
func New(cfg Config) *Aggregator {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	return &Aggregator{cfg: cfg}
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// AnalyzeMessages scores every message and aggregates the batch.
func (a *Aggregator) AnalyzeMessages(messages []model.Message) BatchAnalysis {
	return a.Analyze(scoring.AnalyzeMessages(messages))
}

// Analyze aggregates already-scored messages.
func (a *Aggregator) Analyze(batch []model.MessageAnalysis) BatchAnalysis {
	n := len(batch)
	var pos, neg, neu, high, med, normal, stressed int
	for _, m := range batch {
		switch m.Sentiment {
		case model.SentimentPositive:
			pos++
		case model.SentimentNegative:
			neg++
		default:
			neu++
		}
		switch m.Priority {
		case model.PriorityHigh:
			high++
		case model.PriorityMedium:
			med++
		default:
			normal++
		}
		if len(m.StressIndicators) > 0 {
			stressed++
		}
	}

	return BatchAnalysis{
		Total: n,
		Sentiment: SentimentDistribution{
			Positive: ratio(pos, n),
			Negative: ratio(neg, n),
			Neutral:  ratio(neu, n),
		},
		Urgency: PriorityDistribution{
			High:   ratio(high, n),
			Medium: ratio(med, n),
			Normal: ratio(normal, n),
		},
		StressFrequency: ratio(stressed, n),
		TopTopics:       a.topTopics(batch),
		Patterns:        a.Patterns(batch),
	}
}

// topTopics counts topic tags and returns the K most frequent. Ties keep
// first-seen order.
func (a *Aggregator) topTopics(batch []model.MessageAnalysis) []TopicCount {
	counts := make(map[string]int)
	var order []string
	for _, m := range batch {
		for _, topic := range m.Topics {
			if _, seen := counts[topic]; !seen {
				order = append(order, topic)
			}
			counts[topic]++
		}
	}

	out := make([]TopicCount, 0, len(order))
	for _, topic := range order {
		out = append(out, TopicCount{Topic: topic, Count: counts[topic]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})

	if len(out) > a.cfg.TopK {
		out = out[:a.cfg.TopK]
	}
	return out
}

// Patterns flags HIGH_URGENCY_PATTERN and STRESS_PATTERN for a batch.
func (a *Aggregator) Patterns(batch []model.MessageAnalysis) []model.PatternFinding {
	n := len(batch)
	if n == 0 {
		return nil
	}

	var urgent, stressed int
	for _, m := range batch {
		if m.UrgencyScore > a.cfg.UrgencyScore {
			urgent++
		}
		if len(m.StressIndicators) > 0 {
			stressed++
		}
	}

	var findings []model.PatternFinding
	if float64(urgent) > float64(n)*a.cfg.UrgencyRatio {
		findings = append(findings, model.PatternFinding{
			Type:        model.AlertTypeHighUrgencyPattern,
			Severity:    model.AlertSeverityMedium,
			Description: fmt.Sprintf("High urgency in %d/%d messages", urgent, n),
			Metrics: map[string]float64{
				"urgent_messages": float64(urgent),
				"total_messages":  float64(n),
				"ratio":           ratio(urgent, n),
			},
		})
	}
	if float64(stressed) > float64(n)*a.cfg.StressRatio {
		findings = append(findings, model.PatternFinding{
			Type:        model.AlertTypeStressPattern,
			Severity:    model.AlertSeverityHigh,
			Description: fmt.Sprintf("Stress indicators in %d/%d messages", stressed, n),
			Metrics: map[string]float64{
				"stressed_messages": float64(stressed),
				"total_messages":    float64(n),
				"ratio":             ratio(stressed, n),
			},
		})
	}
	return findings
}
