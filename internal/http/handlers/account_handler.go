package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gurux2003/charityauction/internal/engine"
	"github.com/gurux2003/charityauction/internal/http/dto"
)

type AccountHandler struct {
	engine *engine.Engine
	log    *zap.Logger
}

func NewAccountHandler(eng *engine.Engine, log *zap.Logger) *AccountHandler {
	return &AccountHandler{engine: eng, log: log}
}

// GetAccount returns the public profile of one wallet: whitelist status,
// deposit balance and the derived reputation counters.
func (h *AccountHandler) GetAccount(c *fiber.Ctx) error {
	addr := c.Params("address")
	if addr == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "address is required"})
	}

	ctx := c.Context()

	listed, err := h.engine.IsWhitelisted(ctx, addr)
	if err != nil {
		h.log.Error("whitelist lookup failed", zap.Error(err))
		return fail(c, err)
	}
	deposit, err := h.engine.DepositBalance(ctx, addr)
	if err != nil {
		h.log.Error("deposit lookup failed", zap.Error(err))
		return fail(c, err)
	}
	participated, err := h.engine.AuctionsParticipated(ctx, addr)
	if err != nil {
		return fail(c, err)
	}
	won, err := h.engine.AuctionsWon(ctx, addr)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(dto.AccountResponse{
		Address:              addr,
		Whitelisted:          listed,
		DepositBalance:       deposit.String(),
		AuctionsParticipated: participated,
		AuctionsWon:          won,
	})
}

func (h *AccountHandler) GetWhitelistStatus(c *fiber.Ctx) error {
	addr := c.Params("address")
	listed, err := h.engine.IsWhitelisted(c.Context(), addr)
	if err != nil {
		h.log.Error("whitelist lookup failed", zap.Error(err))
		return fail(c, err)
	}
	return c.JSON(dto.MembershipResponse{Address: addr, Member: listed})
}

func (h *AccountHandler) GetCharityStatus(c *fiber.Ctx) error {
	addr := c.Params("address")
	approved, err := h.engine.IsApprovedCharity(c.Context(), addr)
	if err != nil {
		h.log.Error("charity lookup failed", zap.Error(err))
		return fail(c, err)
	}
	return c.JSON(dto.MembershipResponse{Address: addr, Member: approved})
}
