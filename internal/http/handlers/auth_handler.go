package handlers

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gurux2003/charityauction/internal/auth"
	"github.com/gurux2003/charityauction/internal/config"
	"github.com/gurux2003/charityauction/internal/http/dto"
)

type AuthHandler struct {
	cfg *config.Config
	log *zap.Logger
}

func NewAuthHandler(cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, log: log}
}

// IssueToken mints a JWT for a wallet address. The caller is the frontend
// gateway that has already run the wallet-proof handshake; it authenticates
// here with the shared internal secret.
func (h *AuthHandler) IssueToken(c *fiber.Ctx) error {
	secret := c.Get("X-Internal-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.cfg.InternalAPISecret)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthorized"})
	}

	var req dto.IssueTokenRequest
	if err := c.BodyParser(&req); err != nil || req.Address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "address is required"})
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, req.Address, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	return c.JSON(dto.AuthResponse{Token: token, Address: req.Address})
}
