package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/edu-homework-api/internal/config"
	"github.com/noah-isme/edu-homework-api/internal/handler"
	"github.com/noah-isme/edu-homework-api/internal/middleware"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssignmentHandler *handler.AssignmentHandler
	SubmissionHandler *handler.SubmissionHandler
	GroupHandler      *handler.GroupHandler
	ScoringHandler    *handler.ScoringHandler
	ReportHandler     *handler.ReportHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	teacherOnly := middleware.RequireRole("teacher")

	// Assignment lifecycle: reads are open to any authenticated user,
	// mutations are teacher only.
	if deps.AssignmentHandler != nil {
		assignments := api.Group("/assignments", jwtMiddleware)
		deps.AssignmentHandler.Register(assignments, teacherOnly)
	}

	// Submission intake and grading.
	if deps.SubmissionHandler != nil {
		homework := api.Group("/homework", jwtMiddleware)
		deps.SubmissionHandler.Register(homework)
	}

	// Group formation.
	if deps.GroupHandler != nil {
		groups := api.Group("/groups", jwtMiddleware)
		deps.GroupHandler.Register(groups)
	}

	// Score adjustments and the audit ledger.
	if deps.ScoringHandler != nil {
		scoring := api.Group("/scoring", jwtMiddleware)
		deps.ScoringHandler.Register(scoring)
	}

	// Grade export and statistics are teacher-facing reports.
	if deps.ReportHandler != nil {
		reports := api.Group("/reports", jwtMiddleware, teacherOnly)
		deps.ReportHandler.Register(reports)
	}
}
