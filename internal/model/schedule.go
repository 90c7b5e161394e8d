package model

import "time"

// Schedule represents a registered cron job
type Schedule struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Expression  string     `json:"expression"`
	LastRunTime *time.Time `json:"last_run_time,omitempty"`
	NextRunTime *time.Time `json:"next_run_time,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
