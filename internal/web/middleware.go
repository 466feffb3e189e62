package web

import (
	"log/slog"
	"strings"
	"time"

	"github.com/freekieb7/playlog/internal/auth"
	"github.com/freekieb7/playlog/internal/share"

	"github.com/gofiber/fiber/v2"
)

type tokenValidator interface {
	Validate(tokenString string) (string, error)
}

// ContentNegotiationMiddleware ensures that the client accepts JSON responses.
func ContentNegotiationMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		accept := c.Get(fiber.HeaderAccept)
		if accept != "" && accept != "*/*" && !strings.Contains(accept, fiber.MIMEApplicationJSON) {
			return ErrorResponse(c, fiber.StatusNotAcceptable, "NOT_ACCEPTABLE", "Supported types: application/json")
		}
		return c.Next()
	}
}

// RequestLoggerMiddleware logs every request once it has been handled.
func RequestLoggerMiddleware(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.UserContext(), level, "Request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration", time.Since(start),
			"ip", c.IP(),
		)
		return err
	}
}

// AuthenticatedMiddleware resolves the bearer token into the acting user and
// rejects the request when that fails.
func AuthenticatedMiddleware(logger *slog.Logger, tokens tokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
		}

		userID, err := tokens.Validate(token)
		if err != nil {
			logger.DebugContext(c.UserContext(), "Rejected bearer token", "error", err)
			return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHENTICATED", "Invalid token")
		}

		c.Locals("user_id", userID)
		c.SetUserContext(auth.WithUserID(c.UserContext(), userID))
		return c.Next()
	}
}

// ViewerMiddleware gives each request its own memoized view of the caller's
// group memberships.
func ViewerMiddleware(source share.MembershipSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.SetUserContext(share.WithViewer(c.UserContext(), share.NewViewer(source)))
		return c.Next()
	}
}
