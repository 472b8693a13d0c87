// Package ledger defines the auction ledger store: the single durable mapping
// of auction ids to auction records, plus deposit balances, audit entries and
// the reputation counters derived from them.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gurux2003/charityauction/internal/models"
)

var (
	ErrNotFound   = errors.New("auction not found")
	ErrTokenInUse = errors.New("token already referenced by an open auction")
)

// Tx is the view a mutator gets inside UpdateAuction. Everything touched
// through it commits atomically with the auction record, or not at all.
type Tx interface {
	// Auction returns the mutable auction snapshot being updated.
	Auction() *models.Auction

	// Deposit returns the current spendable deposit balance of an address.
	Deposit(addr string) (decimal.Decimal, error)

	// SetDeposit overwrites the deposit balance of an address.
	SetDeposit(addr string, amount decimal.Decimal) error
}

// Store is the ledger store. It enforces id existence/uniqueness and keeps
// mutations transactional; business invariants live in the engine.
type Store interface {
	// CreateAuction assigns the next counter id (0-based), inserts the record
	// and returns the id. Fails with ErrTokenInUse when an unsettled,
	// unreclaimed auction already references the same token.
	CreateAuction(ctx context.Context, a *models.Auction) (uint64, error)

	GetAuction(ctx context.Context, id uint64) (*models.Auction, error)

	// UpdateAuction applies fn transactionally against the auction and any
	// deposit balances it touches. No partial update is observable; an error
	// from fn discards every change.
	UpdateAuction(ctx context.Context, id uint64, fn func(tx Tx) error) error

	// ListActiveIDs returns, in insertion order, ids of auctions that are
	// still active and not yet expired at the given instant.
	ListActiveIDs(ctx context.Context, now time.Time) ([]uint64, error)

	// ListExpiredActive returns active auctions whose end time has passed.
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]uint64, error)

	// ListUnsettled returns ended auctions awaiting settlement retry.
	ListUnsettled(ctx context.Context, limit int) ([]uint64, error)

	AuctionCount(ctx context.Context) (uint64, error)

	Deposit(ctx context.Context, addr string) (decimal.Decimal, error)
	CreditDeposit(ctx context.Context, addr string, amount decimal.Decimal) error

	// Participated counts auctions in which the address ever held the
	// highest bid. Won counts settled auctions the address won. Both are
	// derived from the ledger and never decrease.
	Participated(ctx context.Context, addr string) (int, error)
	Won(ctx context.Context, addr string) (int, error)

	AppendAudit(ctx context.Context, entry models.AuditLog) error
	AuditByAuction(ctx context.Context, id uint64, limit int) ([]models.AuditLog, error)
}
