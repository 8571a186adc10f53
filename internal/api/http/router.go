package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/complaint-service/internal/api/http/handlers"
	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/observability"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Complaints     *handlers.ComplaintsHandler
	Sessions       *handlers.SessionHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	if cfg.Health != nil {
		app.Get("/health/live", cfg.Health.Live)
		app.Get("/health/ready", cfg.Health.Ready)
	}
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	complaints := app.Group("/complaints", cfg.AuthMiddleware.Handle)
	complaints.Post("/", auth.RequireRole(domain.RoleResident), cfg.Complaints.Create)
	complaints.Get("/overdue", auth.RequireRole(domain.RoleAdmin), cfg.Complaints.Overdue)
	complaints.Get("/:id", cfg.Complaints.Get)
	complaints.Get("/:id/history", cfg.Complaints.History)
	complaints.Get("/:id/messages", cfg.Complaints.Messages)
	complaints.Post("/:id/transitions", cfg.Complaints.Transition)
	complaints.Post("/:id/assign", auth.RequireRole(domain.RoleAdmin), cfg.Complaints.Assign)
	complaints.Post("/:id/comments", cfg.Complaints.AddComment)
	complaints.Post("/:id/work-updates", auth.RequireRole(domain.RoleHandler, domain.RoleAdmin), cfg.Complaints.AddWorkUpdate)

	if cfg.Sessions != nil {
		app.Post("/sessions/heartbeat", cfg.AuthMiddleware.Handle, cfg.Sessions.Heartbeat)
	}

	app.Use(func(c *fiber.Ctx) error {
		return apperrors.NewNotFound("route", map[string]any{"method": c.Method(), "path": c.Path()})
	})
}
