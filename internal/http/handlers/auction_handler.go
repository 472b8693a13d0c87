package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gurux2003/charityauction/internal/engine"
	"github.com/gurux2003/charityauction/internal/http/dto"
	"github.com/gurux2003/charityauction/internal/middleware"
)

type AuctionHandler struct {
	engine *engine.Engine
	log    *zap.Logger
}

func NewAuctionHandler(eng *engine.Engine, log *zap.Logger) *AuctionHandler {
	return &AuctionHandler{engine: eng, log: log}
}

func parseAuctionID(c *fiber.Ctx) (uint64, error) {
	return strconv.ParseUint(c.Params("id"), 10, 64)
}

func (h *AuctionHandler) CreateAuction(c *fiber.Ctx) error {
	var req dto.CreateAuctionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	if req.Charity == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "charity is required"})
	}

	startPrice, err := decimal.NewFromString(req.StartPrice)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid start_price"})
	}

	buyNowPrice := decimal.Zero
	if req.BuyNowPrice != "" {
		buyNowPrice, err = decimal.NewFromString(req.BuyNowPrice)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid buy_now_price"})
		}
	}

	seller := middleware.GetAddress(c)
	a, err := h.engine.CreateAuction(
		c.Context(),
		seller,
		req.TokenID,
		startPrice,
		time.Duration(req.DurationSeconds)*time.Second,
		req.Charity,
		buyNowPrice,
	)
	if err != nil {
		if statusFor(err) == fiber.StatusInternalServerError {
			h.log.Error("create auction failed", zap.Error(err))
		}
		return fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: a})
}

func (h *AuctionHandler) ListAuctions(c *fiber.Ctx) error {
	auctions, err := h.engine.ListActive(c.Context())
	if err != nil {
		h.log.Error("list auctions failed", zap.Error(err))
		return fail(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: auctions})
}

func (h *AuctionHandler) GetAuction(c *fiber.Ctx) error {
	id, err := parseAuctionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid auction id"})
	}

	a, err := h.engine.GetAuction(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: a})
}

func (h *AuctionHandler) GetCount(c *fiber.Ctx) error {
	count, err := h.engine.AuctionCount(c.Context())
	if err != nil {
		h.log.Error("auction count failed", zap.Error(err))
		return fail(c, err)
	}
	return c.JSON(dto.CountResponse{Count: count})
}

func (h *AuctionHandler) PlaceBid(c *fiber.Ctx) error {
	id, err := parseAuctionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid auction id"})
	}

	var req dto.PlaceBidRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid amount"})
	}

	bidder := middleware.GetAddress(c)
	if err := h.engine.PlaceBid(c.Context(), bidder, id, amount); err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AuctionHandler) BuyNow(c *fiber.Ctx) error {
	id, err := parseAuctionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid auction id"})
	}

	var req dto.BuyNowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid amount"})
	}

	buyer := middleware.GetAddress(c)
	if err := h.engine.BuyNow(c.Context(), buyer, id, amount); err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AuctionHandler) ExtendAuction(c *fiber.Ctx) error {
	id, err := parseAuctionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid auction id"})
	}

	actor := middleware.GetAddress(c)
	extended, err := h.engine.ExtendAuction(c.Context(), actor, id)
	if err != nil {
		return fail(c, err)
	}

	a, err := h.engine.GetAuction(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.ExtendResponse{Extended: extended, EndTime: a.EndTime})
}

func (h *AuctionHandler) EndAuction(c *fiber.Ctx) error {
	id, err := parseAuctionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid auction id"})
	}

	actor := middleware.GetAddress(c)
	if err := h.engine.EndAuction(c.Context(), actor, id); err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AuctionHandler) WithdrawBid(c *fiber.Ctx) error {
	id, err := parseAuctionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid auction id"})
	}

	bidder := middleware.GetAddress(c)
	amount, err := h.engine.WithdrawBid(c.Context(), bidder, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.WithdrawResponse{Amount: amount.String()})
}

func (h *AuctionHandler) ReclaimNFT(c *fiber.Ctx) error {
	id, err := parseAuctionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid auction id"})
	}

	caller := middleware.GetAddress(c)
	if err := h.engine.ReclaimNFT(c.Context(), caller, id); err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AuctionHandler) GetAuctionEvents(c *fiber.Ctx) error {
	id, err := parseAuctionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid auction id"})
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.engine.AuctionEvents(c.Context(), id, limit)
	if err != nil {
		h.log.Error("get auction events failed", zap.Error(err))
		return fail(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
