package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gurux2003/charityauction/internal/engine"
	"github.com/gurux2003/charityauction/internal/http/dto"
)

// statusFor maps engine error classes onto HTTP statuses: rejected input is
// 400, a state that forbids the transition is 409, an unknown auction is 404
// and an external rail failure is 502.
func statusFor(err error) int {
	switch {
	case engine.IsNotFound(err):
		return fiber.StatusNotFound
	case engine.IsValidation(err):
		return fiber.StatusBadRequest
	case engine.IsStateConflict(err):
		return fiber.StatusConflict
	case engine.IsTransferFailure(err):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		msg = "internal error"
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: msg})
}
