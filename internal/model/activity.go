package model

import "time"

// ActivityRecord is one observation of a person's communication and calendar
// activity. Missing fields are zero.
type ActivityRecord struct {
	EntityID  string    `json:"entity_id"`
	TeamID    string    `json:"team_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	MessagesPerHour        float64 `json:"messages_per_hour"`
	AvgResponseTimeMinutes float64 `json:"avg_response_time_minutes"`
	DailyHours             float64 `json:"daily_hours"`
	LateNightMessages      int     `json:"late_night_messages"`
	WeekendHours           float64 `json:"weekend_hours"`
	MeetingHoursPerDay     float64 `json:"meeting_hours_per_day"`
	ActiveTasks            int     `json:"active_tasks"`
	UpcomingDeadlines      int     `json:"upcoming_deadlines"`
	ContextSwitchesPerHour float64 `json:"context_switches_per_hour"`
	WeeklyHours            float64 `json:"weekly_hours"`
	WeekendWorkRatio       float64 `json:"weekend_work_ratio"`
	LateNightSessions      int     `json:"late_night_sessions"`
}

// Message is a single chat message
type Message struct {
	AuthorID  string    `json:"author_id,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageBatch is the set of messages seen on a channel during one window
type MessageBatch struct {
	ChannelID   string    `json:"channel_id"`
	TeamID      string    `json:"team_id,omitempty"`
	WindowStart time.Time `json:"window_start"`
	Messages    []Message `json:"messages"`
}

// Sentiment is the coarse tone of a message
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Priority is the coarse priority of a message
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityNormal Priority = "normal"
)

// MessageAnalysis holds the per-message scores
type MessageAnalysis struct {
	Sentiment        Sentiment `json:"sentiment"`
	Priority         Priority  `json:"priority_level"`
	StressIndicators []string  `json:"stress_indicators"`
	StressScore      float64   `json:"stress_score"`
	UrgencyScore     float64   `json:"urgency_score"`
	Topics           []string  `json:"topics"`
	Length           int       `json:"message_length"`
	ContainsQuestion bool      `json:"contains_questions"`
	ContainsMentions bool      `json:"contains_mentions"`
}
