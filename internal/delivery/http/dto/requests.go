package dto

type ScrapeRunRequest struct {
	Sources   []string `json:"sources"`
	ConfigIDs []int64  `json:"config_ids"`
}

type DescriptionsRunRequest struct {
	Limit int `json:"limit"`
}

type RateLimitResetRequest struct {
	// Source empty means reset every source.
	Source string `json:"source"`
}

type SchedulerConfigRequest struct {
	Task            string `json:"task"`
	IntervalMinutes int    `json:"interval_minutes"`
	// Enabled omitted keeps the task enabled.
	Enabled *bool `json:"enabled"`
}

type SchedulerRunRequest struct {
	Task string `json:"task"`
}
