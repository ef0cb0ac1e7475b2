package job

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status values a listing moves through. Transitions are user-driven only;
// ingestion never resets them.
const (
	StatusNew          = "new"
	StatusInterested   = "interested"
	StatusApplied      = "applied"
	StatusInterviewing = "interviewing"
	StatusOffer        = "offer"
	StatusRejected     = "rejected"
	StatusArchived     = "archived"
)

var validStatuses = map[string]struct{}{
	StatusNew:          {},
	StatusInterested:   {},
	StatusApplied:      {},
	StatusInterviewing: {},
	StatusOffer:        {},
	StatusRejected:     {},
	StatusArchived:     {},
}

func ValidStatus(s string) bool {
	_, ok := validStatuses[strings.TrimSpace(strings.ToLower(s))]
	return ok
}

// Listing is one discovered job posting. Scraper-owned fields (Description,
// Salary, PostedDate, EmploymentType, URL, ScrapedAt) may be overwritten by
// ingestion; user-owned fields (Status, Notes, IsApplied) never are.
type Listing struct {
	ID                 uuid.UUID
	Title              string
	Company            string
	Location           string
	Description        string
	Salary             string
	EmploymentType     string
	PostedDate         string
	URL                string
	Source             string
	ScrapedAt          time.Time
	Status             string
	IsApplied          bool
	IsEdited           bool
	Notes              string
	HasFullDescription bool
}

// SearchConfig is a named, persistent search query. The scheduler consumes
// enabled configs read-only as the unit of scrape work.
type SearchConfig struct {
	ID              int64
	Name            string
	Keywords        string
	Location        string
	Radius          int
	EmploymentTypes string
	Enabled         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ScrapeRunLog is the append-only record of one scrape attempt.
type ScrapeRunLog struct {
	ID           int64
	Source       string
	ConfigID     *int64
	JobsFound    int
	JobsAdded    int
	StartedAt    time.Time
	CompletedAt  *time.Time
	Success      bool
	ErrorMessage string
}
