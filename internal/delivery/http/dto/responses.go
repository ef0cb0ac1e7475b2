package dto

import (
	"jobradar/internal/ratelimit"
	"jobradar/internal/scheduler"
)

type RunStartedResponse struct {
	Task    string `json:"task"`
	Started bool   `json:"started"`
	Reason  string `json:"reason,omitempty"`
}

type RateLimitsResponse struct {
	Sources map[string]ratelimit.SourceStatus `json:"sources"`
}

type SchedulerStatusResponse struct {
	Tasks map[string]scheduler.TaskState `json:"tasks"`
}

type ScrapeLogEntry struct {
	Source       string `json:"source"`
	JobsFound    int    `json:"jobs_found"`
	JobsAdded    int    `json:"jobs_added"`
	StartedAt    string `json:"started_at"`
	CompletedAt  string `json:"completed_at,omitempty"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type StatsResponse struct {
	Jobs       any              `json:"jobs"`
	RecentRuns []ScrapeLogEntry `json:"recent_runs"`
	// RunsLastDay counts scrape runs per source over the trailing 24 hours.
	RunsLastDay map[string]int `json:"runs_last_day"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Clients  int    `json:"ws_clients"`
}
