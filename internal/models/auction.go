package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Auction statuses
const (
	AuctionStatusActive    = "active"
	AuctionStatusEnded     = "ended"
	AuctionStatusSettled   = "settled"
	AuctionStatusReclaimed = "reclaimed"
)

// Valid state transitions: from -> []to
var ValidAuctionTransitions = map[string][]string{
	AuctionStatusActive:    {AuctionStatusEnded, AuctionStatusSettled},
	AuctionStatusEnded:     {AuctionStatusSettled, AuctionStatusReclaimed},
	AuctionStatusSettled:   {AuctionStatusReclaimed},
	AuctionStatusReclaimed: {},
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidAuctionTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Auction is one ledger record: an NFT offered for time-bounded bidding with
// proceeds going to a charity. Ids are counter-assigned starting at 0.
type Auction struct {
	ID          uint64          `json:"auction_id"`
	TokenID     uint64          `json:"token_id"`
	Seller      string          `json:"seller"`
	Charity     string          `json:"charity"`
	StartPrice  decimal.Decimal `json:"start_price"`
	BuyNowPrice decimal.Decimal `json:"buy_now_price"` // zero = disabled

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	HighestBid    decimal.Decimal `json:"highest_bid"`
	HighestBidder string          `json:"highest_bidder"` // empty = none

	Status  string `json:"status"`
	Ended   bool   `json:"ended"`
	Settled bool   `json:"settled"`

	CharityTxHash *string `json:"charity_tx_hash,omitempty"`
	CustodyTxRef  *string `json:"custody_tx_ref,omitempty"`

	// PendingReturns holds withdrawable escrow per outbid bidder.
	// The current highest bidder's amount is locked and never appears here.
	PendingReturns map[string]decimal.Decimal `json:"pending_returns,omitempty"`

	// Bidders is every address that ever held the highest bid. Drives the
	// participated reputation counter; never shrinks.
	Bidders map[string]struct{} `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BuyNowEnabled reports whether the auction accepts an instant purchase.
func (a *Auction) BuyNowEnabled() bool {
	return a.BuyNowPrice.IsPositive()
}

// HasBids reports whether any bid was ever accepted.
func (a *Auction) HasBids() bool {
	return a.HighestBid.IsPositive()
}

// Expired reports whether the auction's end time has passed.
func (a *Auction) Expired(now time.Time) bool {
	return !now.Before(a.EndTime)
}

// CustodyReleased reports whether the engine no longer holds the token:
// either it went to the winner at settlement, or back to the seller on
// reclaim. A zero-bid settled auction still holds custody until reclaimed.
func (a *Auction) CustodyReleased() bool {
	return a.Status == AuctionStatusReclaimed || (a.Settled && a.HasBids())
}

// PendingReturn returns the withdrawable balance for an address.
func (a *Auction) PendingReturn(addr string) decimal.Decimal {
	if a.PendingReturns == nil {
		return decimal.Zero
	}
	if v, ok := a.PendingReturns[addr]; ok {
		return v
	}
	return decimal.Zero
}

// CreditReturn moves an amount into a bidder's withdrawable balance.
func (a *Auction) CreditReturn(addr string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	if a.PendingReturns == nil {
		a.PendingReturns = make(map[string]decimal.Decimal)
	}
	a.PendingReturns[addr] = a.PendingReturn(addr).Add(amount)
}

// RecordBidder adds an address to the ever-highest-bidder set, returning
// true the first time it is seen on this auction.
func (a *Auction) RecordBidder(addr string) bool {
	if a.Bidders == nil {
		a.Bidders = make(map[string]struct{})
	}
	if _, ok := a.Bidders[addr]; ok {
		return false
	}
	a.Bidders[addr] = struct{}{}
	return true
}

// Clone returns a deep copy, so store mutators can work on a snapshot and
// commit only on success.
func (a *Auction) Clone() *Auction {
	c := *a
	if a.PendingReturns != nil {
		c.PendingReturns = make(map[string]decimal.Decimal, len(a.PendingReturns))
		for k, v := range a.PendingReturns {
			c.PendingReturns[k] = v
		}
	}
	if a.Bidders != nil {
		c.Bidders = make(map[string]struct{}, len(a.Bidders))
		for k := range a.Bidders {
			c.Bidders[k] = struct{}{}
		}
	}
	if a.CharityTxHash != nil {
		h := *a.CharityTxHash
		c.CharityTxHash = &h
	}
	if a.CustodyTxRef != nil {
		r := *a.CustodyTxRef
		c.CustodyTxRef = &r
	}
	return &c
}
