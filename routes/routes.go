package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	controller "mailnexy/controllers"
	"mailnexy/internal/clock"
	"mailnexy/internal/mailclient"
	"mailnexy/internal/score"
	"mailnexy/internal/store"
	"mailnexy/middleware"
)

// Deps bundles everything the route tree needs to construct its
// controllers, assembled once in main and threaded through here.
type Deps struct {
	DB          *gorm.DB
	Store       *store.Store
	Clients     *mailclient.Registry
	ScoreEngine *score.Engine
	Clock       clock.Clock
	Log         *logrus.Logger
}

func SetupRoutes(app *fiber.App, deps Deps) {
	api := app.Group("/api")

	authController := controller.NewAuthController(deps.DB, deps.Log)
	mailboxController := controller.NewMailboxController(deps.DB, deps.Store, deps.Clients, deps.Clock, deps.Log)
	statusController := controller.NewStatusController(deps.DB, deps.ScoreEngine, deps.Log)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", authController.Register)
	authGroup.Post("/login", authController.Login)
	authGroup.Post("/refresh", authController.RefreshToken)
	authGroup.Post("/logout", middleware.Protected(), authController.Logout)

	protected := api.Group("/protected", middleware.Protected())
	protected.Get("/me", authController.Me)

	mailboxes := protected.Group("/mailboxes")
	mailboxes.Post("/", mailboxController.Create)
	mailboxes.Get("/", mailboxController.List)
	mailboxes.Get("/:id", mailboxController.Get)
	mailboxes.Put("/:id", mailboxController.Update)
	mailboxes.Delete("/:id", mailboxController.Delete)
	mailboxes.Post("/:id/test", middleware.MailboxTestRateLimiter(), mailboxController.Test)
	mailboxes.Post("/:id/pause", mailboxController.Pause)
	mailboxes.Post("/:id/resume", mailboxController.Resume)

	mailboxes.Get("/:id/score", statusController.Score)
	mailboxes.Get("/:id/plan/:date", statusController.Plan)
}
