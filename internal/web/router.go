package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"
)

// New builds the fiber application with all screens routed.
func New(h *Handler) *fiber.App {
	engine := html.New(h.cfg.Server.Templates, ".html")

	app := fiber.New(fiber.Config{
		Views:       engine,
		ViewsLayout: "layouts/main",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).Render("error", fiber.Map{
				"Code":  code,
				"Error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(RateLimiter(100, time.Minute))

	app.Get("/login", h.ShowLogin)
	app.Post("/login", h.HandleLogin)
	app.Get("/logout", h.HandleLogout)
	app.Get("/health", h.Health)

	protected := app.Group("", h.RequireSession)
	protected.Get("/", h.Home)
	protected.Get("/planner", h.ShowPlanner)
	protected.Post("/planner/generate", h.HandleGenerate)
	protected.Post("/planner/save", h.HandleSave)
	protected.Get("/history", h.ShowHistory)
	protected.Get("/plans/:id", h.ShowPlan)

	return app
}
