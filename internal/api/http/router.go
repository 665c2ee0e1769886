package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/forge-tickets/internal/api/http/handlers"
	"github.com/spec-kit/forge-tickets/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Patchsets      *handlers.PatchsetsHandler
	Merge          *handlers.MergeHandler
	Milestones     *handlers.MilestonesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	repos := app.Group("/repos/:repo", cfg.AuthMiddleware.Handle, auth.RequireRole())

	tickets := repos.Group("/tickets")
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:number", cfg.Tickets.GetTicket)
	tickets.Patch("/:number", cfg.Tickets.EditTicket)

	tickets.Post("/:number/comments", cfg.Tickets.AddComment)
	tickets.Patch("/:number/comments/:comment", cfg.Tickets.EditComment)
	tickets.Delete("/:number/comments/:comment", cfg.Tickets.DeleteComment)

	tickets.Put("/:number/watch", cfg.Tickets.Watch)
	tickets.Delete("/:number/watch", cfg.Tickets.Unwatch)
	tickets.Put("/:number/vote", cfg.Tickets.Vote)
	tickets.Delete("/:number/vote", cfg.Tickets.Unvote)
	tickets.Put("/:number/labels", cfg.Tickets.AddLabels)
	tickets.Delete("/:number/labels", cfg.Tickets.RemoveLabels)

	tickets.Post("/:number/patchsets", cfg.Patchsets.UploadPatchset)
	tickets.Post("/:number/reviews", cfg.Patchsets.AddReview)

	tickets.Get("/:number/merge", cfg.Merge.Evaluate)
	tickets.Post("/:number/merge", auth.RequireMaintainer(), cfg.Merge.Merge)

	milestones := repos.Group("/milestones")
	milestones.Get("", cfg.Milestones.List)
	milestones.Get("/:name", cfg.Milestones.Get)

	admin := milestones.Group("", auth.RequireMaintainer())
	admin.Post("", cfg.Milestones.Create)
	admin.Patch("/:name", cfg.Milestones.Edit)
	admin.Post("/:name/rename", cfg.Milestones.Rename)
	admin.Post("/:name/close", cfg.Milestones.Close)
	admin.Post("/:name/reopen", cfg.Milestones.Reopen)
	admin.Delete("/:name", cfg.Milestones.Delete)
}
