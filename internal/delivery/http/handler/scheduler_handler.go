package handler

import (
	"time"

	"jobradar/internal/delivery/http/dto"
	"jobradar/internal/delivery/http/middleware"
	"jobradar/internal/pkg/response"
	"jobradar/internal/scheduler"

	"github.com/gofiber/fiber/v3"
)

type SchedulerHandler struct {
	sched *scheduler.Scheduler
}

func NewSchedulerHandler(sched *scheduler.Scheduler) *SchedulerHandler {
	return &SchedulerHandler{sched: sched}
}

func (h *SchedulerHandler) HandleStatus(c fiber.Ctx) error {
	return response.Success(c, fiber.StatusOK, "", dto.SchedulerStatusResponse{Tasks: h.sched.Status()})
}

func (h *SchedulerHandler) HandleConfigure(c fiber.Ctx) error {
	var req dto.SchedulerConfigRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}
	if req.Task == "" || req.IntervalMinutes <= 0 {
		return middleware.NewAppError(fiber.StatusBadRequest, "task and interval_minutes are required", nil, nil)
	}
	interval := time.Duration(req.IntervalMinutes) * time.Minute
	enabled := req.Enabled == nil || *req.Enabled
	if err := h.sched.Configure(req.Task, interval, enabled); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}
	return response.Success(c, fiber.StatusOK, "rescheduled", fiber.Map{
		"task":     req.Task,
		"interval": interval.String(),
		"enabled":  enabled,
	})
}

func (h *SchedulerHandler) HandleRun(c fiber.Ctx) error {
	var req dto.SchedulerRunRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}
	started, err := h.sched.RunNow(req.Task)
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}
	return runStarted(c, req.Task, started)
}
