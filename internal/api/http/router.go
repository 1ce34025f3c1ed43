package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/change-service/internal/api/http/handlers"
	"github.com/spec-kit/change-service/internal/auth"
	"github.com/spec-kit/change-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Changes        *handlers.ChangesHandler
	Settings       *handlers.SettingsHandler
	AuthMiddleware *auth.AuthMiddleware
	// Metrics is optional; MetricsPath is ignored without it.
	Metrics     *observability.Metrics
	MetricsPath string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil && cfg.MetricsPath != "" {
		app.Get(cfg.MetricsPath, adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())

	changes := api.Group("/changes")
	changes.Get("/", cfg.Changes.List)
	changes.Post("/", cfg.Changes.Create)
	changes.Get("/pending-approval", cfg.Changes.PendingApproval)
	changes.Post("/risk-preview", cfg.Changes.Preview)
	changes.Get("/:id", cfg.Changes.Get)
	changes.Post("/:id/submit", cfg.Changes.Submit)
	changes.Post("/:id/approve", cfg.Changes.Approve)
	changes.Post("/:id/reject", cfg.Changes.Reject)
	changes.Post("/:id/start", cfg.Changes.Start)
	changes.Post("/:id/complete", cfg.Changes.Complete)
	changes.Get("/:id/approvals", cfg.Changes.Ledger)
	changes.Get("/:id/progress", cfg.Changes.Progress)

	settings := api.Group("/settings")
	settings.Get("/creation-options", cfg.Settings.CreationOptions)
	settings.Get("/risk-matrices", cfg.Settings.ListMatrices)
	settings.Get("/risk-matrices/:id", cfg.Settings.GetMatrix)
	settings.Get("/categories", cfg.Settings.ListCategories)
	settings.Get("/categories/:id", cfg.Settings.GetCategory)
	settings.Get("/workflows", cfg.Settings.ListWorkflows)
	settings.Get("/workflows/:id", cfg.Settings.GetWorkflow)

	admin := auth.RequireRole(auth.RoleSettingsAdmin)
	settings.Post("/risk-matrices", admin, cfg.Settings.CreateMatrix)
	settings.Put("/risk-matrices/:id", admin, cfg.Settings.UpdateMatrix)
	settings.Delete("/risk-matrices/:id", admin, cfg.Settings.DeleteMatrix)
	settings.Post("/categories", admin, cfg.Settings.CreateCategory)
	settings.Put("/categories/:id", admin, cfg.Settings.UpdateCategory)
	settings.Delete("/categories/:id", admin, cfg.Settings.DeleteCategory)
	settings.Post("/workflows", admin, cfg.Settings.CreateWorkflow)
	settings.Put("/workflows/:id", admin, cfg.Settings.UpdateWorkflow)
	settings.Delete("/workflows/:id", admin, cfg.Settings.DeleteWorkflow)
}
