package web

import (
	"log/slog"

	"github.com/freekieb7/playlog/internal/config"
	"github.com/freekieb7/playlog/internal/share"
	"github.com/freekieb7/playlog/internal/telemetry"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewApp builds the HTTP application with every route registered.
func NewApp(cfg config.ServerConfig, logger *slog.Logger, h *APIHandler, tokens tokenValidator, membership share.MembershipSource) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "playlog",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ErrorHandler:          ErrorHandler(logger),
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(telemetry.FiberMiddleware())
	app.Use(RequestLoggerMiddleware(logger))
	app.Use(ContentNegotiationMiddleware())

	app.Get("/api/health", h.Healthy)

	api := app.Group("/api", AuthenticatedMiddleware(logger, tokens), ViewerMiddleware(membership))

	groups := api.Group("/groups")
	groups.Post("/", h.CreateGroup)
	groups.Get("/", h.ListGroups)
	groups.Get("/:id", h.GetGroup)
	groups.Patch("/:id", h.UpdateGroup)
	groups.Delete("/:id", h.DeleteGroup)
	groups.Post("/:id/leave", h.LeaveGroup)
	groups.Post("/:id/transfer", h.TransferOwnership)
	groups.Delete("/:id/members/:userID", h.RemoveMember)
	groups.Post("/:id/invites", h.CreateInviteCode)
	groups.Get("/:id/invites", h.ListInviteCodes)
	groups.Delete("/:id/invites/:codeID", h.RevokeInviteCode)

	api.Post("/invites/:code/join", h.JoinGroup)

	lib := api.Group("/library")
	lib.Post("/", h.AddEntry)
	lib.Get("/", h.ListEntries)
	lib.Get("/:id", h.GetEntry)
	lib.Put("/:id", h.UpdateEntry)
	lib.Delete("/:id", h.DeleteEntry)
	lib.Put("/:id/share", h.ShareEntry)
	lib.Delete("/:id/share", h.UnshareEntry)

	sessions := api.Group("/sessions")
	sessions.Post("/", h.LogSession)
	sessions.Get("/", h.ListSessions)
	sessions.Get("/:id", h.GetSession)
	sessions.Delete("/:id", h.DeleteSession)
	sessions.Put("/:id/share", h.ShareSession)
	sessions.Delete("/:id/share", h.UnshareSession)

	return app
}
