package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gurux2003/charityauction/internal/config"
	"github.com/gurux2003/charityauction/internal/http/dto"
)

type MetaHandler struct {
	cfg *config.Config
}

func NewMetaHandler(cfg *config.Config) *MetaHandler {
	return &MetaHandler{cfg: cfg}
}

// GetParams exposes the engine tuning parameters clients need to build
// valid bids.
func (h *MetaHandler) GetParams(c *fiber.Ctx) error {
	return c.JSON(dto.ParamsResponse{
		MinBidIncrement:           h.cfg.MinBidIncrement.String(),
		AntiSnipeThresholdSeconds: int64(h.cfg.AntiSnipeThreshold.Seconds()),
		ExtensionWindowSeconds:    int64(h.cfg.ExtensionWindow.Seconds()),
	})
}
