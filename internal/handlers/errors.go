package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"alfredoptarigan/interview-engine/internal/services"
)

func respondError(c *fiber.Ctx, code int, msg string) error {
	return c.Status(code).JSON(fiber.Map{
		"error": msg,
		"code":  code,
	})
}

// StatusFor maps engine errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrSessionNotFound), errors.Is(err, services.ErrJobNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrInvalidTurn), errors.Is(err, services.ErrInvalidTransition):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrEmptyAnswer):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func handleEngineError(c *fiber.Ctx, log *zap.Logger, err error) error {
	code := StatusFor(err)
	if code == fiber.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return respondError(c, code, "internal server error")
	}
	return respondError(c, code, err.Error())
}
