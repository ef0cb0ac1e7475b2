package routes

import (
	"jobradar/internal/delivery/http/handler"
	"jobradar/internal/delivery/http/middleware"
	"jobradar/internal/ws"

	"github.com/gofiber/fiber/v3"
)

type Registry struct {
	Health    *handler.HealthHandler
	Run       *handler.RunHandler
	RateLimit *handler.RateLimitHandler
	Scheduler *handler.SchedulerHandler
	Stats     *handler.StatsHandler
	WS        *ws.Handler

	// Auth is optional; nil leaves the ops API open, which is only sane on
	// a private network.
	Auth *middleware.AuthMiddleware
}

func (r *Registry) Register(app *fiber.App) {
	if app == nil {
		return
	}

	app.Get("/health", r.Health.HandleHealth)
	app.Get("/ws/progress", r.WS.HandleProgressWS)

	api := app.Group("/api")
	v1 := api.Group("/v1")
	if r.Auth != nil {
		v1 = v1.Group("", r.Auth.Middleware())
	}

	v1.Post("/scrape/run", r.Run.HandleScrapeRun)
	v1.Post("/descriptions/run", r.Run.HandleDescriptionsRun)
	v1.Post("/enrichment/run", r.Run.HandleEnrichmentRun)

	v1.Get("/rate-limits", r.RateLimit.HandleStatus)
	v1.Post("/rate-limits/reset", r.RateLimit.HandleReset)

	v1.Get("/scheduler/status", r.Scheduler.HandleStatus)
	v1.Post("/scheduler/config", r.Scheduler.HandleConfigure)
	v1.Post("/scheduler/run", r.Scheduler.HandleRun)

	v1.Get("/stats", r.Stats.HandleStats)
}
