package handler

import (
	"jobradar/internal/delivery/http/dto"
	"jobradar/internal/delivery/http/middleware"
	"jobradar/internal/pkg/response"
	"jobradar/internal/ratelimit"

	"github.com/gofiber/fiber/v3"
)

type RateLimitHandler struct {
	limiter *ratelimit.Limiter
}

func NewRateLimitHandler(limiter *ratelimit.Limiter) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter}
}

func (h *RateLimitHandler) HandleStatus(c fiber.Ctx) error {
	status, err := h.limiter.Status(c.Context())
	if err != nil {
		return middleware.NewAppError(fiber.StatusInternalServerError, "", nil, err)
	}
	return response.Success(c, fiber.StatusOK, "", dto.RateLimitsResponse{Sources: status})
}

// HandleReset clears a source's window, limited flag and backoff. This is
// the only way backoff ever goes back to baseline.
func (h *RateLimitHandler) HandleReset(c fiber.Ctx) error {
	var req dto.RateLimitResetRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
		}
	}

	if req.Source == "" {
		if err := h.limiter.ResetAll(c.Context()); err != nil {
			return middleware.NewAppError(fiber.StatusInternalServerError, "", nil, err)
		}
		return response.Success(c, fiber.StatusOK, "all sources reset", nil)
	}
	if err := h.limiter.Reset(c.Context(), req.Source); err != nil {
		return middleware.NewAppError(fiber.StatusInternalServerError, "", nil, err)
	}
	return response.Success(c, fiber.StatusOK, "source reset", fiber.Map{"source": req.Source})
}
