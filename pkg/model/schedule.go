package model

import "time"

// Schedule enqueues a job profile on a recurring cron expression.
// NextDue is stored in UTC and advanced by the schedule service after
// each firing.
type Schedule struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	JobProfileID string     `json:"job_profile_id"`
	CronExpr     string     `json:"cron_expr"`
	Enabled      bool       `json:"enabled"`
	NextDue      time.Time  `json:"next_due"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
