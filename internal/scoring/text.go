// Package scoring holds the deterministic score functions that turn raw
// activity and message text into bounded scores. Keyword matching is
// case-insensitive substring matching, so "nowhere" matches "now".
package scoring

import (
	"regexp"
	"strings"

	"github.com/t77yq/loadwatch/internal/model"
)

type weightedKeyword struct {
	word   string
	weight float64
}

var (
	positiveWords = []string{"great", "awesome", "thanks", "good", "excellent", "perfect", "happy"}
	negativeWords = []string{"urgent", "problem", "issue", "error", "failed", "broken", "stress"}

	stressPhrases = []string{"overwhelmed", "too much", "can't handle", "burnout", "exhausted"}

	highPriorityWords   = []string{"urgent", "critical", "emergency"}
	mediumPriorityWords = []string{"important", "asap"}

	urgencyKeywords = []weightedKeyword{
		{"asap", 0.9},
		{"urgent", 0.8},
		{"immediately", 0.7},
		{"now", 0.6},
		{"important", 0.5},
		{"deadline", 0.4},
	}

	stressKeywords = []weightedKeyword{
		{"urgent", 0.3},
		{"asap", 0.4},
		{"emergency", 0.5},
		{"critical", 0.4},
		{"deadline", 0.3},
		{"pressure", 0.4},
		{"overwhelmed", 0.6},
		{"stressed", 0.7},
		{"help", 0.3},
		{"now", 0.2},
		{"immediately", 0.3},
	}

	topicKeywords = []struct {
		topic string
		words []string
	}{
		{"meeting", []string{"meeting", "call", "discuss"}},
		{"task", []string{"task", "work", "assignment", "todo"}},
		{"issue", []string{"problem", "issue", "error", "bug", "fix"}},
		{"question", []string{"question", "help", "advice", "suggest"}},
		{"update", []string{"update", "progress", "status", "report"}},
	}

	mentionPattern = regexp.MustCompile(`@\w+`)
)

func countPresent(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

func containsAny(text string, words []string) bool {
	return countPresent(text, words) > 0
}

// Sentiment counts positive and negative lexicon hits; ties are neutral.
func Sentiment(text string) model.Sentiment {
	lower := strings.ToLower(text)
	pos := countPresent(lower, positiveWords)
	neg := countPresent(lower, negativeWords)

	switch {
	case pos > neg:
		return model.SentimentPositive
	case neg > pos:
		return model.SentimentNegative
	default:
		return model.SentimentNeutral
	}
}

// Priority returns high for any critical-tier keyword, medium for any
// important-tier keyword, and normal otherwise.
func Priority(text string) model.Priority {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, highPriorityWords):
		return model.PriorityHigh
	case containsAny(lower, mediumPriorityWords):
		return model.PriorityMedium
	default:
		return model.PriorityNormal
	}
}

// Urgency returns the largest weight among the urgency keywords present.
func Urgency(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.0
	for _, kw := range urgencyKeywords {
		if strings.Contains(lower, kw.word) && kw.weight > score {
			score = kw.weight
		}
	}
	return score
}

// StressFromText sums the weights of every stress keyword present, capped at 1.
func StressFromText(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.0
	for _, kw := range stressKeywords {
		if strings.Contains(lower, kw.word) {
			score += kw.weight
		}
	}
	return clamp(score)
}

// StressIndicators lists the stress phrases present in text.
func StressIndicators(text string) []string {
	lower := strings.ToLower(text)
	found := []string{}
	for _, phrase := range stressPhrases {
		if strings.Contains(lower, phrase) {
			found = append(found, phrase)
		}
	}
	return found
}

// Topics lists the topic tags whose keyword family appears in text.
func Topics(text string) []string {
	lower := strings.ToLower(text)
	topics := []string{}
	for _, family := range topicKeywords {
		if containsAny(lower, family.words) {
			topics = append(topics, family.topic)
		}
	}
	return topics
}

// AnalyzeMessage runs every text score over one message.
func AnalyzeMessage(text string) model.MessageAnalysis {
	return model.MessageAnalysis{
		Sentiment:        Sentiment(text),
		Priority:         Priority(text),
		StressIndicators: StressIndicators(text),
		StressScore:      StressFromText(text),
		UrgencyScore:     Urgency(text),
		Topics:           Topics(text),
		Length:           len([]rune(text)),
		ContainsQuestion: strings.Contains(text, "?"),
		ContainsMentions: mentionPattern.MatchString(text),
	}
}

// AnalyzeMessages analyzes every message of a batch in order.
func AnalyzeMessages(messages []model.Message) []model.MessageAnalysis {
	out := make([]model.MessageAnalysis, 0, len(messages))
	for _, msg := range messages {
		out = append(out, AnalyzeMessage(msg.Text))
	}
	return out
}
