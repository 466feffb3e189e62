package web

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/freekieb7/playlog/internal/apperr"
	"github.com/freekieb7/playlog/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    int                  `json:"code"`
	Status  string               `json:"status"`
	Message string               `json:"message"`
	Details []domain.DomainError `json:"details,omitempty"`
}

func ErrorResponse(c *fiber.Ctx, code int, status string, message string) error {
	return JSONResponse(c, code, ErrorBody{Error: ErrorDetail{
		Code:    code,
		Status:  status,
		Message: message,
	}})
}

func JSONResponse(c *fiber.Ctx, code int, data any) error {
	return c.Status(code).JSON(data)
}

type Page[T any] struct {
	Items      []T  `json:"items"`
	NextOffset *int `json:"next_offset,omitempty"`
}

// PaginationResponse writes one page of items. A next offset is only
// advertised when the page came back full.
func PaginationResponse[T any](c *fiber.Ctx, items []T, offset, limit int) error {
	page := Page[T]{Items: items}
	if page.Items == nil {
		page.Items = []T{}
	}
	if limit > 0 && len(items) == limit {
		next := max(offset, 0) + len(items)
		page.NextOffset = &next
	}
	return JSONResponse(c, fiber.StatusOK, page)
}

// ErrorHandler renders every error returned by a handler. Expected failures
// keep their message; anything else is logged and hidden behind a 500.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if _, ok := domain.AsErrors(err); ok {
			err = apperr.FromDomain(err)
		}

		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			code := appErr.Kind.HTTPStatus()
			return JSONResponse(c, code, ErrorBody{Error: ErrorDetail{
				Code:    code,
				Status:  strings.ToUpper(appErr.Kind.String()),
				Message: appErr.Message,
				Details: appErr.Details,
			}})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status := strings.ToUpper(strings.ReplaceAll(utils.StatusMessage(fiberErr.Code), " ", "_"))
			return ErrorResponse(c, fiberErr.Code, status, fiberErr.Message)
		}

		logger.ErrorContext(c.UserContext(), "Request failed", "method", c.Method(), "path", c.Path(), "error", err)
		return ErrorResponse(c, fiber.StatusInternalServerError, "SERVER_ERROR", "Internal server error")
	}
}
