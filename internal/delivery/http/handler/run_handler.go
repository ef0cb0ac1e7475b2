package handler

import (
	"fmt"
	"log"

	"jobradar/internal/delivery/http/dto"
	"jobradar/internal/delivery/http/middleware"
	"jobradar/internal/pipeline"
	"jobradar/internal/pkg/response"
	"jobradar/internal/scheduler"

	"github.com/gofiber/fiber/v3"
)

// RunHandler exposes the manual triggers. All triggers go through the
// scheduler's run slot, so a manual run and a scheduled run can never
// overlap.
type RunHandler struct {
	sched    *scheduler.Scheduler
	pipeline *pipeline.Pipeline
	logger   *log.Logger
}

func NewRunHandler(sched *scheduler.Scheduler, p *pipeline.Pipeline, logger *log.Logger) *RunHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &RunHandler{sched: sched, pipeline: p, logger: logger}
}

// HandleScrapeRun triggers a scrape. With a body, the run is scoped to the
// requested sources/configs; without one it is a full run, identical to a
// scheduled tick.
func (h *RunHandler) HandleScrapeRun(c fiber.Ctx) error {
	var req dto.ScrapeRunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
		}
	}

	if len(req.Sources) == 0 && len(req.ConfigIDs) == 0 {
		started, err := h.sched.RunNow(scheduler.TaskScrape)
		if err != nil {
			return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
		}
		return runStarted(c, scheduler.TaskScrape, started)
	}

	done, ok := h.sched.TryBegin(scheduler.TaskScrape)
	if !ok {
		return runStarted(c, scheduler.TaskScrape, false)
	}
	go func() {
		summary, err := h.pipeline.RunScrape(h.sched.RunContext(), pipeline.ScrapeParams{
			Sources:   req.Sources,
			ConfigIDs: req.ConfigIDs,
		})
		if err != nil {
			h.logger.Printf("[API] scoped scrape failed | err=%v", err)
		}
		done(scrapeSummaryMessage(summary), err)
	}()
	return runStarted(c, scheduler.TaskScrape, true)
}

func (h *RunHandler) HandleDescriptionsRun(c fiber.Ctx) error {
	started, err := h.sched.RunNow(scheduler.TaskDescriptions)
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}
	return runStarted(c, scheduler.TaskDescriptions, started)
}

func (h *RunHandler) HandleEnrichmentRun(c fiber.Ctx) error {
	started, err := h.sched.RunNow(scheduler.TaskEnrichment)
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}
	return runStarted(c, scheduler.TaskEnrichment, started)
}

func runStarted(c fiber.Ctx, task string, started bool) error {
	out := dto.RunStartedResponse{Task: task, Started: started}
	if !started {
		out.Reason = "already running"
	}
	status := fiber.StatusAccepted
	if !started {
		status = fiber.StatusOK
	}
	return response.Success(c, status, "", out)
}

func scrapeSummaryMessage(s pipeline.ScrapeSummary) string {
	return fmt.Sprintf("runs=%d found=%d added=%d updated=%d skipped=%d failed=%d",
		s.Runs, s.Found, s.Added, s.Updated, s.Skipped, s.Failed)
}
