package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gurux2003/charityauction/internal/http/dto"
	"github.com/gurux2003/charityauction/internal/policy"
)

// AdminHandler edits the bidder whitelist and the approved-charity registry.
type AdminHandler struct {
	whitelist policy.MutableRegistry
	charities policy.MutableRegistry
	log       *zap.Logger
}

func NewAdminHandler(whitelist, charities policy.MutableRegistry, log *zap.Logger) *AdminHandler {
	return &AdminHandler{whitelist: whitelist, charities: charities, log: log}
}

func (h *AdminHandler) registryAdd(c *fiber.Ctx, reg policy.MutableRegistry) error {
	var req dto.RegistryRequest
	if err := c.BodyParser(&req); err != nil || req.Address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "address is required"})
	}
	if err := reg.Add(c.Context(), req.Address); err != nil {
		h.log.Error("registry add failed", zap.String("address", req.Address), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AdminHandler) registryRemove(c *fiber.Ctx, reg policy.MutableRegistry) error {
	addr := c.Params("address")
	if addr == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "address is required"})
	}
	if err := reg.Remove(c.Context(), addr); err != nil {
		h.log.Error("registry remove failed", zap.String("address", addr), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AdminHandler) AddToWhitelist(c *fiber.Ctx) error {
	return h.registryAdd(c, h.whitelist)
}

func (h *AdminHandler) RemoveFromWhitelist(c *fiber.Ctx) error {
	return h.registryRemove(c, h.whitelist)
}

func (h *AdminHandler) AddCharity(c *fiber.Ctx) error {
	return h.registryAdd(c, h.charities)
}

func (h *AdminHandler) RemoveCharity(c *fiber.Ctx) error {
	return h.registryRemove(c, h.charities)
}
