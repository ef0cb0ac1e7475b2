package app

import (
	"jobradar/internal/delivery/http/handler"
	"jobradar/internal/delivery/http/middleware"
	"jobradar/internal/delivery/http/routes"
	"jobradar/internal/pkg/jwt"
	"jobradar/internal/ws"

	"github.com/gofiber/fiber/v3"
)

// BuildHTTP assembles the fiber app over the container's components.
func BuildHTTP(c *Container) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: c.Cfg.App.AppName,
	})

	app.Use(middleware.NewAccessLogMiddleware(c.Logger).Middleware())
	app.Use(middleware.NewErrorMiddleware().Middleware())

	var auth *middleware.AuthMiddleware
	if c.Cfg.Auth.JWTSecret != "" {
		auth = middleware.NewAuthMiddleware(jwt.NewHMACService(c.Cfg.Auth.JWTSecret))
	} else {
		c.Logger.Printf("[App] ops API auth disabled | reason=no JWT_SECRET")
	}

	reg := &routes.Registry{
		Health:    handler.NewHealthHandler(c.DB, c.Hub),
		Run:       handler.NewRunHandler(c.Scheduler, c.Pipeline, c.Logger),
		RateLimit: handler.NewRateLimitHandler(c.Limiter),
		Scheduler: handler.NewSchedulerHandler(c.Scheduler),
		Stats:     handler.NewStatsHandler(c.Jobs, c.RunLog),
		WS:        ws.NewHandler(c.Hub, c.Logger),
		Auth:      auth,
	}
	reg.Register(app)

	return app
}
