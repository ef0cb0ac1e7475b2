package handler

import (
	"context"
	"time"

	"jobradar/internal/database"
	"jobradar/internal/delivery/http/dto"
	"jobradar/internal/pkg/response"
	"jobradar/internal/ws"

	"github.com/gofiber/fiber/v3"
)

type HealthHandler struct {
	db  database.DB
	hub *ws.Hub
}

func NewHealthHandler(db database.DB, hub *ws.Hub) *HealthHandler {
	return &HealthHandler{db: db, hub: hub}
}

func (h *HealthHandler) HandleHealth(c fiber.Ctx) error {
	out := dto.HealthResponse{Status: "ok", Database: "ok", Clients: h.hub.ClientCount()}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			out.Status = "degraded"
			out.Database = "unreachable"
			return response.Success(c, fiber.StatusServiceUnavailable, "degraded", out)
		}
	}
	return response.Success(c, fiber.StatusOK, "ok", out)
}
