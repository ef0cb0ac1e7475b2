package handler

import (
	"time"

	"jobradar/internal/delivery/http/dto"
	"jobradar/internal/delivery/http/middleware"
	"jobradar/internal/pkg/response"
	"jobradar/internal/repository"
	"jobradar/internal/scraper"

	"github.com/gofiber/fiber/v3"
)

type StatsHandler struct {
	jobs   repository.JobRepository
	runLog repository.ScrapeLogRepository
}

func NewStatsHandler(jobs repository.JobRepository, runLog repository.ScrapeLogRepository) *StatsHandler {
	return &StatsHandler{jobs: jobs, runLog: runLog}
}

func (h *StatsHandler) HandleStats(c fiber.Ctx) error {
	counts, err := h.jobs.Counts(c.Context())
	if err != nil {
		return middleware.NewAppError(fiber.StatusInternalServerError, "", nil, err)
	}
	recent, err := h.runLog.Recent(c.Context(), 20)
	if err != nil {
		return middleware.NewAppError(fiber.StatusInternalServerError, "", nil, err)
	}

	runs := make([]dto.ScrapeLogEntry, 0, len(recent))
	for _, e := range recent {
		entry := dto.ScrapeLogEntry{
			Source:       e.Source,
			JobsFound:    e.JobsFound,
			JobsAdded:    e.JobsAdded,
			StartedAt:    e.StartedAt.UTC().Format(time.RFC3339),
			Success:      e.Success,
			ErrorMessage: e.ErrorMessage,
		}
		if e.CompletedAt != nil {
			entry.CompletedAt = e.CompletedAt.UTC().Format(time.RFC3339)
		}
		runs = append(runs, entry)
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	lastDay := make(map[string]int)
	for _, source := range scraper.SourceNames() {
		n, err := h.runLog.CountSince(c.Context(), source, since)
		if err != nil {
			return middleware.NewAppError(fiber.StatusInternalServerError, "", nil, err)
		}
		lastDay[source] = n
	}

	return response.Success(c, fiber.StatusOK, "", dto.StatsResponse{
		Jobs:        counts,
		RecentRuns:  runs,
		RunsLastDay: lastDay,
	})
}
