package monitor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/t77yq/loadwatch/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

var severityGlyph = map[model.AlertSeverity]string{
	model.AlertSeverityLow:      "ℹ️",
	model.AlertSeverityMedium:   "⚠️",
	model.AlertSeverityHigh:     "🚨",
	model.AlertSeverityCritical: "🔥",
}

// FormatAlert renders an alert as a Markdown chat message.
func FormatAlert(a model.Alert) string {
	glyph, ok := severityGlyph[a.Severity]
	if !ok {
		glyph = severityGlyph[model.AlertSeverityMedium]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *Cognitive Load Alert* %s\n\n", glyph, glyph)
	fmt.Fprintf(&b, "*Type:* %s\n", a.Type.Title())
	fmt.Fprintf(&b, "*Severity:* %s\n", a.Severity)
	fmt.Fprintf(&b, "*Message:* %s\n", a.Message)
	fmt.Fprintf(&b, "*Time:* %s", a.Timestamp.Format(timeLayout))

	if len(a.Metadata) > 0 {
		keys := make([]string, 0, len(a.Metadata))
		for k := range a.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		details := make([]string, 0, len(keys))
		for _, k := range keys {
			details = append(details, fmt.Sprintf("%s=%v", k, a.Metadata[k]))
		}
		fmt.Fprintf(&b, "\n*Details:* %s", strings.Join(details, ", "))
	}

	return b.String()
}
