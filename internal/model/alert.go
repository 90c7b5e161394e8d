package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnknownSeverity is returned when parsing a severity outside the closed set
	ErrUnknownSeverity = errors.New("unknown alert severity")

	// ErrUnknownAlertType is returned when parsing an alert type outside the closed set
	ErrUnknownAlertType = errors.New("unknown alert type")

	// ErrInvalidTarget is returned when an alert names more than one target
	ErrInvalidTarget = errors.New("alert target must name at most one of user, team or channel")
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "LOW"
	AlertSeverityMedium   AlertSeverity = "MEDIUM"
	AlertSeverityHigh     AlertSeverity = "HIGH"
	AlertSeverityCritical AlertSeverity = "CRITICAL"
)

var severityRank = map[AlertSeverity]int{
	AlertSeverityLow:      1,
	AlertSeverityMedium:   2,
	AlertSeverityHigh:     3,
	AlertSeverityCritical: 4,
}

// ParseSeverity parses a case-insensitive severity name.
func ParseSeverity(s string) (AlertSeverity, error) {
	sev := AlertSeverity(strings.ToUpper(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSeverity, s)
	}
	return sev, nil
}

// Valid reports whether s is one of the declared severities.
func (s AlertSeverity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank orders severities from LOW (1) to CRITICAL (4). Unknown values rank 0.
func (s AlertSeverity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is as severe as min.
func (s AlertSeverity) AtLeast(min AlertSeverity) bool {
	return s.Rank() >= min.Rank()
}

// UnmarshalText rejects severities outside the closed set.
func (s *AlertSeverity) UnmarshalText(text []byte) error {
	sev, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// AlertType represents the type of alert
type AlertType string

const (
	AlertTypeHighStress          AlertType = "HIGH_STRESS"
	AlertTypeWorkloadOverload    AlertType = "WORKLOAD_OVERLOAD"
	AlertTypeLateNightWork       AlertType = "LATE_NIGHT_WORK"
	AlertTypeActivitySpike       AlertType = "HIGH_ACTIVITY_SPIKE"
	AlertTypeWorkloadSpike       AlertType = "WORKLOAD_SPIKE"
	AlertTypeWorkImbalance       AlertType = "WORK_IMBALANCE"
	AlertTypeBurnoutRisk         AlertType = "BURNOUT_RISK"
	AlertTypeSlowResponse        AlertType = "SLOW_RESPONSE"
	AlertTypeMessageDensitySpike AlertType = "MESSAGE_DENSITY_SPIKE"
	AlertTypeHighUrgencyPattern  AlertType = "HIGH_URGENCY_PATTERN"
	AlertTypeStressPattern       AlertType = "STRESS_PATTERN"
	AlertTypeDailySummary        AlertType = "DAILY_SUMMARY"
)

var alertTypes = map[AlertType]struct{}{
	AlertTypeHighStress:          {},
	AlertTypeWorkloadOverload:    {},
	AlertTypeLateNightWork:       {},
	AlertTypeActivitySpike:       {},
	AlertTypeWorkloadSpike:       {},
	AlertTypeWorkImbalance:       {},
	AlertTypeBurnoutRisk:         {},
	AlertTypeSlowResponse:        {},
	AlertTypeMessageDensitySpike: {},
	AlertTypeHighUrgencyPattern:  {},
	AlertTypeStressPattern:       {},
	AlertTypeDailySummary:        {},
}

// ParseAlertType parses a case-insensitive alert type name.
func ParseAlertType(s string) (AlertType, error) {
	t := AlertType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAlertType, s)
	}
	return t, nil
}

// Valid reports whether t is one of the declared alert types.
func (t AlertType) Valid() bool {
	_, ok := alertTypes[t]
	return ok
}

// HighSeverityOperational reports whether t belongs to the short-cooldown
// group (overload and burnout).
func (t AlertType) HighSeverityOperational() bool {
	return t == AlertTypeWorkloadOverload || t == AlertTypeBurnoutRisk
}

// Title renders the type as words, e.g. "Workload Overload".
func (t AlertType) Title() string {
	words := strings.Split(strings.ToLower(string(t)), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// UnmarshalText rejects alert types outside the closed set.
func (t *AlertType) UnmarshalText(text []byte) error {
	parsed, err := ParseAlertType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TargetKind names which target field of an alert is set
type TargetKind string

const (
	TargetUser    TargetKind = "user"
	TargetTeam    TargetKind = "team"
	TargetChannel TargetKind = "channel"
	TargetGlobal  TargetKind = "global"
)

// GlobalKey is the history key used for alerts without a target.
const GlobalKey = "global"

// Target identifies where an alert is addressed. At most one field is set.
type Target struct {
	UserID    string `json:"user_id,omitempty"`
	TeamID    string `json:"team_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

// Validate returns ErrInvalidTarget when more than one id is set.
func (t Target) Validate() error {
	set := 0
	for _, id := range []string{t.UserID, t.TeamID, t.ChannelID} {
		if id != "" {
			set++
		}
	}
	if set > 1 {
		return ErrInvalidTarget
	}
	return nil
}

// Kind returns the kind of the set field, or TargetGlobal.
func (t Target) Kind() TargetKind {
	switch {
	case t.TeamID != "":
		return TargetTeam
	case t.ChannelID != "":
		return TargetChannel
	case t.UserID != "":
		return TargetUser
	default:
		return TargetGlobal
	}
}

// Key returns the history key: team > channel > user > "global".
func (t Target) Key() string {
	switch t.Kind() {
	case TargetTeam:
		return t.TeamID
	case TargetChannel:
		return t.ChannelID
	case TargetUser:
		return t.UserID
	default:
		return GlobalKey
	}
}

func (t Target) String() string {
	return string(t.Kind()) + ":" + t.Key()
}

// AlertRequest is the input to an alert dispatch
type AlertRequest struct {
	Target   Target                 `json:"target"`
	Type     AlertType              `json:"type"`
	Severity AlertSeverity          `json:"severity"`
	Message  string                 `json:"message"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the closed sets and the target shape.
func (r AlertRequest) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAlertType, r.Type)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownSeverity, r.Severity)
	}
	return r.Target.Validate()
}

// Alert represents an alert event
type Alert struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	Target     Target                 `json:"target"`
	Type       AlertType              `json:"type"`
	Severity   AlertSeverity          `json:"severity"`
	Message    string                 `json:"message"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Resolved   bool                   `json:"resolved"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
}
