// Package engine is the auction lifecycle state machine: the single write
// path over the ledger store. Every transition validates against current
// ledger state, commits atomically, and only then touches external rails
// (fund payouts, NFT custody), so a reentrant recipient can never observe
// mid-transition state.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gurux2003/charityauction/internal/config"
	"github.com/gurux2003/charityauction/internal/custody"
	"github.com/gurux2003/charityauction/internal/events"
	"github.com/gurux2003/charityauction/internal/ledger"
	"github.com/gurux2003/charityauction/internal/models"
	"github.com/gurux2003/charityauction/internal/policy"
	"github.com/gurux2003/charityauction/internal/treasury"
)

const actorSystem = "system"

type Engine struct {
	store     ledger.Store
	custody   custody.Registry
	payer     treasury.Payer
	whitelist policy.Registry
	charities policy.Registry
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger

	// Now is the clock for every time comparison. Tests override it.
	Now func() time.Time

	lockMu sync.Mutex
	locks  map[uint64]*sync.Mutex
}

func New(
	store ledger.Store,
	registry custody.Registry,
	payer treasury.Payer,
	whitelist policy.Registry,
	charities policy.Registry,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *Engine {
	return &Engine{
		store:     store,
		custody:   registry,
		payer:     payer,
		whitelist: whitelist,
		charities: charities,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		Now:       func() time.Time { return time.Now().UTC() },
		locks:     make(map[uint64]*sync.Mutex),
	}
}

// lock serializes transitions per auction, external transfers included.
// Different auctions progress in parallel.
func (e *Engine) lock(id uint64) func() {
	e.lockMu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	e.lockMu.Unlock()
	l.Lock()
	return l.Unlock
}

// dropLock evicts the mutex of an auction that reached a terminal state.
// Without eviction the map keeps an entry for every auction ever touched.
// A waiter still holding the old mutex races a fresh one at worst, and
// every mutator re-checks the terminal state under the store transaction.
func (e *Engine) dropLock(id uint64) {
	e.lockMu.Lock()
	delete(e.locks, id)
	e.lockMu.Unlock()
}

// engineAddress is the custody-holding identity of the engine.
func (e *Engine) engineAddress() string {
	return e.cfg.HotWalletAddress
}

// setStatus guards every status write with the transition table.
func setStatus(a *models.Auction, to string) error {
	if !models.IsValidTransition(a.Status, to) {
		return fmt.Errorf("invalid transition from %s to %s", a.Status, to)
	}
	a.Status = to
	return nil
}

// record writes the audit entry and publishes the event for one operation.
// Neither failure rolls back the operation, but a mutation without its
// trail has to be visible somewhere, so both are logged.
func (e *Engine) record(ctx context.Context, op, actor string, auctionID uint64, eventType string, meta map[string]any) {
	id := auctionID
	err := e.store.AppendAudit(ctx, models.AuditLog{
		Actor:     actor,
		Operation: op,
		AuctionID: &id,
		Meta:      meta,
	})
	if err != nil {
		e.log.Warn("audit append failed",
			zap.String("operation", op),
			zap.Uint64("auction_id", auctionID),
			zap.Error(err),
		)
	}

	payload := map[string]any{"auction_id": auctionID, "actor": actor}
	for k, v := range meta {
		payload[k] = v
	}
	if err := e.publisher.Publish(ctx, events.StreamAuction, events.Event{Type: eventType, Payload: payload}); err != nil {
		e.log.Warn("event publish failed",
			zap.String("operation", op),
			zap.String("event", eventType),
			zap.Uint64("auction_id", auctionID),
			zap.Error(err),
		)
	}
}

// CreateAuction validates the charity and token custody, takes the token into
// engine custody, and opens a new active auction.
func (e *Engine) CreateAuction(
	ctx context.Context,
	seller string,
	tokenID uint64,
	startPrice decimal.Decimal,
	duration time.Duration,
	charityAddr string,
	buyNowPrice decimal.Decimal,
) (*models.Auction, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("create auction: %w", ErrInvalidDuration)
	}
	if startPrice.IsNegative() || buyNowPrice.IsNegative() {
		return nil, fmt.Errorf("create auction: %w", ErrInvalidPrice)
	}

	approved, err := e.charities.Contains(ctx, charityAddr)
	if err != nil {
		return nil, fmt.Errorf("create auction: check charity: %w", err)
	}
	if !approved {
		return nil, fmt.Errorf("create auction: charity %s: %w", charityAddr, ErrInvalidCharity)
	}

	ok, err := e.custody.ConfirmApproval(ctx, tokenID, seller)
	if err != nil || !ok {
		if err != nil {
			return nil, fmt.Errorf("create auction: token %d: %w: %v", tokenID, ErrTokenNotCustodied, err)
		}
		return nil, fmt.Errorf("create auction: token %d: %w", tokenID, ErrTokenNotCustodied)
	}

	now := e.Now()
	a := &models.Auction{
		TokenID:        tokenID,
		Seller:         seller,
		Charity:        charityAddr,
		StartPrice:     startPrice,
		BuyNowPrice:    buyNowPrice,
		StartTime:      now,
		EndTime:        now.Add(duration),
		HighestBid:     decimal.Zero,
		Status:         models.AuctionStatusActive,
		PendingReturns: make(map[string]decimal.Decimal),
		Bidders:        make(map[string]struct{}),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	id, err := e.store.CreateAuction(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("create auction: token %d: %w", tokenID, err)
	}
	a.ID = id

	// Escrow the token with the engine. On failure the fresh record is
	// voided so the token is free to be auctioned again.
	ref, err := e.custody.Transfer(ctx, tokenID, seller, e.engineAddress())
	if err != nil {
		_ = e.store.UpdateAuction(ctx, id, func(tx ledger.Tx) error {
			au := tx.Auction()
			au.Ended = true
			if err := setStatus(au, models.AuctionStatusEnded); err != nil {
				return err
			}
			return setStatus(au, models.AuctionStatusReclaimed)
		})
		e.record(ctx, "create_auction_reverted", seller, id, events.EventNFTReclaimed, map[string]any{
			"token_id": tokenID,
			"reason":   err.Error(),
		})
		return nil, fmt.Errorf("%w: escrow token %d for auction %d: %v", ErrTransferFailed, tokenID, id, err)
	}

	err = e.store.UpdateAuction(ctx, id, func(tx ledger.Tx) error {
		tx.Auction().CustodyTxRef = &ref
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create auction %d: %w", id, err)
	}

	e.record(ctx, "create_auction", seller, id, events.EventAuctionCreated, map[string]any{
		"token_id":      tokenID,
		"start_price":   startPrice.String(),
		"buy_now_price": buyNowPrice.String(),
		"charity":       charityAddr,
		"end_time":      a.EndTime,
	})

	return e.store.GetAuction(ctx, id)
}

// maybeExtend applies the anti-snipe rule: a transition landing within the
// threshold of the end time pushes the end time out by the extension window.
// Outside the window it is a no-op, which makes repeated extension calls
// idempotent per triggering window.
func (e *Engine) maybeExtend(a *models.Auction, now time.Time) bool {
	if a.EndTime.Sub(now) > e.cfg.AntiSnipeThreshold {
		return false
	}
	a.EndTime = a.EndTime.Add(e.cfg.ExtensionWindow)
	return true
}

// PlaceBid locks the bidder's funds as the new highest bid and releases the
// previous highest bidder's funds into withdrawable escrow. Refunds are
// never pushed; outbid bidders claim them via WithdrawBid.
func (e *Engine) PlaceBid(ctx context.Context, bidder string, auctionID uint64, amount decimal.Decimal) error {
	listed, err := e.whitelist.Contains(ctx, bidder)
	if err != nil {
		return fmt.Errorf("place bid: check whitelist: %w", err)
	}
	if !listed {
		return fmt.Errorf("place bid on auction %d: bidder %s: %w", auctionID, bidder, ErrNotWhitelisted)
	}

	unlock := e.lock(auctionID)
	defer unlock()

	var (
		extended bool
		firstBid bool
		outbid   string
		newEnd   time.Time
	)

	err = e.store.UpdateAuction(ctx, auctionID, func(tx ledger.Tx) error {
		a := tx.Auction()
		now := e.Now()

		if a.Status != models.AuctionStatusActive {
			return fmt.Errorf("auction %d: %w", auctionID, ErrAuctionNotActive)
		}
		if a.Expired(now) {
			return fmt.Errorf("auction %d: %w", auctionID, ErrAuctionExpired)
		}

		min := a.StartPrice
		if a.HasBids() {
			min = a.HighestBid.Add(e.cfg.MinBidIncrement)
		}
		if !amount.IsPositive() || amount.LessThan(min) {
			return fmt.Errorf("auction %d: bid %s, minimum %s: %w", auctionID, amount, min, ErrBidTooLow)
		}

		balance, err := tx.Deposit(bidder)
		if err != nil {
			return err
		}
		if balance.LessThan(amount) {
			return fmt.Errorf("auction %d: deposit %s, bid %s: %w", auctionID, balance, amount, ErrInsufficientDeposit)
		}
		if err := tx.SetDeposit(bidder, balance.Sub(amount)); err != nil {
			return err
		}

		if a.HasBids() {
			outbid = a.HighestBidder
			a.CreditReturn(a.HighestBidder, a.HighestBid)
		}
		a.HighestBid = amount
		a.HighestBidder = bidder
		firstBid = a.RecordBidder(bidder)

		extended = e.maybeExtend(a, now)
		newEnd = a.EndTime
		return nil
	})
	if err != nil {
		return err
	}

	meta := map[string]any{"amount": amount.String(), "first_bid": firstBid}
	if outbid != "" {
		meta["outbid"] = outbid
	}
	e.record(ctx, "place_bid", bidder, auctionID, events.EventBidPlaced, meta)

	if extended {
		e.record(ctx, "extend_auction", actorSystem, auctionID, events.EventAuctionExtended, map[string]any{
			"end_time": newEnd,
		})
	}
	return nil
}

// BuyNow ends the auction immediately at the buy-now price and settles it.
func (e *Engine) BuyNow(ctx context.Context, buyer string, auctionID uint64, amount decimal.Decimal) error {
	listed, err := e.whitelist.Contains(ctx, buyer)
	if err != nil {
		return fmt.Errorf("buy now: check whitelist: %w", err)
	}
	if !listed {
		return fmt.Errorf("buy now on auction %d: buyer %s: %w", auctionID, buyer, ErrNotWhitelisted)
	}

	unlock := e.lock(auctionID)
	defer unlock()

	var outbid string

	err = e.store.UpdateAuction(ctx, auctionID, func(tx ledger.Tx) error {
		a := tx.Auction()
		now := e.Now()

		if a.Status != models.AuctionStatusActive {
			return fmt.Errorf("auction %d: %w", auctionID, ErrAuctionNotActive)
		}
		if a.Expired(now) {
			return fmt.Errorf("auction %d: %w", auctionID, ErrAuctionExpired)
		}
		if !a.BuyNowEnabled() {
			return fmt.Errorf("auction %d: %w", auctionID, ErrBuyNowDisabled)
		}
		if !amount.Equal(a.BuyNowPrice) || amount.LessThanOrEqual(a.HighestBid) {
			return fmt.Errorf("auction %d: paid %s, buy-now %s, highest bid %s: %w",
				auctionID, amount, a.BuyNowPrice, a.HighestBid, ErrWrongAmount)
		}

		balance, err := tx.Deposit(buyer)
		if err != nil {
			return err
		}
		if balance.LessThan(amount) {
			return fmt.Errorf("auction %d: deposit %s, price %s: %w", auctionID, balance, amount, ErrInsufficientDeposit)
		}
		if err := tx.SetDeposit(buyer, balance.Sub(amount)); err != nil {
			return err
		}

		if a.HasBids() {
			outbid = a.HighestBidder
			a.CreditReturn(a.HighestBidder, a.HighestBid)
		}
		a.HighestBid = amount
		a.HighestBidder = buyer
		a.RecordBidder(buyer)
		a.Ended = true
		return setStatus(a, models.AuctionStatusEnded)
	})
	if err != nil {
		return err
	}

	meta := map[string]any{"amount": amount.String()}
	if outbid != "" {
		meta["outbid"] = outbid
	}
	e.record(ctx, "buy_now", buyer, auctionID, events.EventAuctionEnded, meta)

	return e.settle(ctx, buyer, auctionID)
}

// ExtendAuction pushes the end time out by the extension window when called
// within the anti-snipe threshold. Outside the window it succeeds as a
// no-op and reports false.
func (e *Engine) ExtendAuction(ctx context.Context, actor string, auctionID uint64) (bool, error) {
	unlock := e.lock(auctionID)
	defer unlock()

	var (
		extended bool
		newEnd   time.Time
	)
	err := e.store.UpdateAuction(ctx, auctionID, func(tx ledger.Tx) error {
		a := tx.Auction()
		now := e.Now()

		if a.Status != models.AuctionStatusActive {
			return fmt.Errorf("auction %d: %w", auctionID, ErrAuctionNotActive)
		}
		if a.Expired(now) {
			return fmt.Errorf("auction %d: %w", auctionID, ErrAuctionExpired)
		}

		extended = e.maybeExtend(a, now)
		newEnd = a.EndTime
		return nil
	})
	if err != nil {
		return false, err
	}

	if extended {
		e.record(ctx, "extend_auction", actor, auctionID, events.EventAuctionExtended, map[string]any{
			"end_time": newEnd,
		})
	}
	return extended, nil
}

// EndAuction finalizes an expired auction: anyone may call it. A repeat call
// on a settled or reclaimed auction returns ErrAlreadyFinalized; a call on
// an ended-but-unsettled auction retries settlement.
func (e *Engine) EndAuction(ctx context.Context, actor string, auctionID uint64) error {
	unlock := e.lock(auctionID)
	defer unlock()

	a, err := e.store.GetAuction(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("end auction %d: %w", auctionID, err)
	}

	if a.Settled || a.Status == models.AuctionStatusReclaimed {
		return fmt.Errorf("auction %d: %w", auctionID, ErrAlreadyFinalized)
	}

	if a.Status == models.AuctionStatusActive {
		err = e.store.UpdateAuction(ctx, auctionID, func(tx ledger.Tx) error {
			au := tx.Auction()
			if au.Status != models.AuctionStatusActive {
				return fmt.Errorf("auction %d: %w", auctionID, ErrAlreadyFinalized)
			}
			if !au.Expired(e.Now()) {
				return fmt.Errorf("auction %d ends at %s: %w", auctionID, au.EndTime, ErrAuctionStillActive)
			}
			au.Ended = true
			return setStatus(au, models.AuctionStatusEnded)
		})
		if err != nil {
			return err
		}
		e.record(ctx, "end_auction", actor, auctionID, events.EventAuctionEnded, map[string]any{
			"highest_bid":    a.HighestBid.String(),
			"highest_bidder": a.HighestBidder,
		})
	}

	return e.settle(ctx, actor, auctionID)
}

// settle forwards the proceeds to the charity and the token to the winner,
// then marks the auction settled. The ended flag is already committed, so a
// transfer failure leaves the auction ended-but-unsettled and a later call
// retries from where it stopped; completed transfers are recorded by tx
// hash so a retry never pays twice. A no-bid auction settles without moving
// anything and stays eligible for reclaim.
//
// Caller must hold the auction lock.
func (e *Engine) settle(ctx context.Context, actor string, auctionID uint64) error {
	a, err := e.store.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	if a.Settled || a.Status == models.AuctionStatusReclaimed {
		return nil
	}

	if a.HasBids() {
		if a.CharityTxHash == nil {
			hash, err := e.payer.Send(ctx, a.Charity, a.HighestBid,
				fmt.Sprintf("auction:%d charity payout", auctionID))
			if err != nil {
				return fmt.Errorf("%w: charity payout for auction %d: %v", ErrTransferFailed, auctionID, err)
			}
			err = e.store.UpdateAuction(ctx, auctionID, func(tx ledger.Tx) error {
				tx.Auction().CharityTxHash = &hash
				return nil
			})
			if err != nil {
				return err
			}
		}

		ref, err := e.custody.Transfer(ctx, a.TokenID, e.engineAddress(), a.HighestBidder)
		if err != nil {
			return fmt.Errorf("%w: custody handoff for auction %d: %v", ErrTransferFailed, auctionID, err)
		}
		err = e.store.UpdateAuction(ctx, auctionID, func(tx ledger.Tx) error {
			au := tx.Auction()
			au.CustodyTxRef = &ref
			au.Settled = true
			return setStatus(au, models.AuctionStatusSettled)
		})
		if err != nil {
			return err
		}
	} else {
		err = e.store.UpdateAuction(ctx, auctionID, func(tx ledger.Tx) error {
			au := tx.Auction()
			au.Settled = true
			return setStatus(au, models.AuctionStatusSettled)
		})
		if err != nil {
			return err
		}
	}

	e.record(ctx, "settle_auction", actor, auctionID, events.EventAuctionSettled, map[string]any{
		"winner": a.HighestBidder,
		"amount": a.HighestBid.String(),
	})
	if a.HasBids() {
		e.dropLock(auctionID)
	}
	return nil
}

// WithdrawBid pays out the caller's withdrawable escrow for the auction and
// returns the amount paid. A zero balance succeeds as a no-op. The balance
// is zeroed before the external payout; a payout failure re-credits it, so
// the ledger entry is net unchanged and no funds are lost.
func (e *Engine) WithdrawBid(ctx context.Context, bidder string, auctionID uint64) (decimal.Decimal, error) {
	unlock := e.lock(auctionID)
	defer unlock()

	var (
		amount  decimal.Decimal
		settled bool
	)
	err := e.store.UpdateAuction(ctx, auctionID, func(tx ledger.Tx) error {
		a := tx.Auction()
		settled = a.Settled || a.Status == models.AuctionStatusReclaimed
		amount = a.PendingReturn(bidder)
		if amount.IsZero() {
			return nil
		}
		delete(a.PendingReturns, bidder)
		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("withdraw bid on auction %d: %w", auctionID, err)
	}
	if amount.IsZero() {
		if settled {
			e.dropLock(auctionID)
		}
		return decimal.Zero, nil
	}

	_, err = e.payer.Send(ctx, bidder, amount, fmt.Sprintf("auction:%d bid refund", auctionID))
	if err != nil {
		restoreErr := e.store.UpdateAuction(ctx, auctionID, func(tx ledger.Tx) error {
			tx.Auction().CreditReturn(bidder, amount)
			return nil
		})
		if restoreErr != nil {
			// Should not happen on the stores we run; surfaced loudly since it
			// would mean a stranded balance.
			e.log.Error("failed to restore withdrawable balance after payout failure",
				zap.Uint64("auction_id", auctionID),
				zap.String("bidder", bidder),
				zap.String("amount", amount.String()),
				zap.Error(restoreErr),
			)
		}
		return decimal.Zero, fmt.Errorf("%w: refund payout for auction %d: %v", ErrTransferFailed, auctionID, err)
	}

	e.record(ctx, "withdraw_bid", bidder, auctionID, events.EventBidWithdrawn, map[string]any{
		"amount": amount.String(),
	})
	if settled {
		e.dropLock(auctionID)
	}
	return amount, nil
}

// ReclaimNFT returns the token to the seller of a finalized auction that
// never received a bid. A single successful bid forecloses reclaim forever.
func (e *Engine) ReclaimNFT(ctx context.Context, caller string, auctionID uint64) error {
	unlock := e.lock(auctionID)
	defer unlock()

	a, err := e.store.GetAuction(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("reclaim auction %d: %w", auctionID, err)
	}

	if a.Status == models.AuctionStatusReclaimed {
		return fmt.Errorf("auction %d: %w", auctionID, ErrAlreadyReclaimed)
	}
	if !a.Ended && !a.Settled {
		return fmt.Errorf("auction %d is not finalized: %w", auctionID, ErrNotEligibleForReclaim)
	}
	if a.HasBids() {
		return fmt.Errorf("auction %d received bids: %w", auctionID, ErrNotEligibleForReclaim)
	}
	if caller != a.Seller {
		return fmt.Errorf("auction %d: caller is not the seller: %w", auctionID, ErrNotEligibleForReclaim)
	}

	// Custody moves first; the terminal reclaimed state commits only on
	// success, so a registry failure leaves the ledger untouched and the
	// seller can retry. The auction lock held here prevents a concurrent
	// double reclaim.
	ref, err := e.custody.Transfer(ctx, a.TokenID, e.engineAddress(), a.Seller)
	if err != nil {
		return fmt.Errorf("%w: return token %d to seller: %v", ErrTransferFailed, a.TokenID, err)
	}

	err = e.store.UpdateAuction(ctx, auctionID, func(tx ledger.Tx) error {
		au := tx.Auction()
		if au.Status == models.AuctionStatusReclaimed {
			return fmt.Errorf("auction %d: %w", auctionID, ErrAlreadyReclaimed)
		}
		au.CustodyTxRef = &ref
		return setStatus(au, models.AuctionStatusReclaimed)
	})
	if err != nil {
		return err
	}

	e.record(ctx, "reclaim_nft", caller, auctionID, events.EventNFTReclaimed, map[string]any{
		"token_id": a.TokenID,
	})
	e.dropLock(auctionID)
	return nil
}

// --- reads ---

func (e *Engine) GetAuction(ctx context.Context, id uint64) (*models.Auction, error) {
	return e.store.GetAuction(ctx, id)
}

// ListActive returns unsettled, unexpired auctions in creation order.
func (e *Engine) ListActive(ctx context.Context) ([]*models.Auction, error) {
	ids, err := e.store.ListActiveIDs(ctx, e.Now())
	if err != nil {
		return nil, err
	}
	out := make([]*models.Auction, 0, len(ids))
	for _, id := range ids {
		a, err := e.store.GetAuction(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (e *Engine) ListActiveIDs(ctx context.Context) ([]uint64, error) {
	return e.store.ListActiveIDs(ctx, e.Now())
}

func (e *Engine) AuctionCount(ctx context.Context) (uint64, error) {
	return e.store.AuctionCount(ctx)
}

func (e *Engine) MinimumBidIncrement() decimal.Decimal {
	return e.cfg.MinBidIncrement
}

func (e *Engine) IsWhitelisted(ctx context.Context, addr string) (bool, error) {
	return e.whitelist.Contains(ctx, addr)
}

func (e *Engine) IsApprovedCharity(ctx context.Context, addr string) (bool, error) {
	return e.charities.Contains(ctx, addr)
}

func (e *Engine) AuctionsParticipated(ctx context.Context, addr string) (int, error) {
	return e.store.Participated(ctx, addr)
}

func (e *Engine) AuctionsWon(ctx context.Context, addr string) (int, error) {
	return e.store.Won(ctx, addr)
}

func (e *Engine) DepositBalance(ctx context.Context, addr string) (decimal.Decimal, error) {
	return e.store.Deposit(ctx, addr)
}

func (e *Engine) AuctionEvents(ctx context.Context, id uint64, limit int) ([]models.AuditLog, error) {
	return e.store.AuditByAuction(ctx, id, limit)
}

// FinalizeExpired ends every active auction whose end time has passed. The
// worker calls this on a ticker; time-gated transitions are caller-polled,
// there is no internal timer.
func (e *Engine) FinalizeExpired(ctx context.Context, limit int) int {
	ids, err := e.store.ListExpiredActive(ctx, e.Now(), limit)
	if err != nil {
		e.log.Error("list expired auctions", zap.Error(err))
		return 0
	}

	done := 0
	for _, id := range ids {
		if err := e.EndAuction(ctx, actorSystem, id); err != nil {
			e.log.Error("finalize auction", zap.Uint64("auction_id", id), zap.Error(err))
			continue
		}
		done++
	}
	return done
}

// RetryUnsettled retries settlement of auctions left ended-but-unsettled by
// an earlier transfer failure.
func (e *Engine) RetryUnsettled(ctx context.Context, limit int) int {
	ids, err := e.store.ListUnsettled(ctx, limit)
	if err != nil {
		e.log.Error("list unsettled auctions", zap.Error(err))
		return 0
	}

	done := 0
	for _, id := range ids {
		unlock := e.lock(id)
		err := e.settle(ctx, actorSystem, id)
		unlock()
		if err != nil {
			e.log.Warn("settlement retry failed", zap.Uint64("auction_id", id), zap.Error(err))
			continue
		}
		done++
	}
	return done
}
