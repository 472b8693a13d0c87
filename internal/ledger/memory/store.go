// Package memory is an in-process ledger store used by tests and dev mode.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gurux2003/charityauction/internal/ledger"
	"github.com/gurux2003/charityauction/internal/models"
)

type Store struct {
	mu       sync.RWMutex
	auctions map[uint64]*models.Auction
	order    []uint64 // insertion order
	counter  uint64
	deposits map[string]decimal.Decimal
	audit    []models.AuditLog

	lockMu sync.Mutex
	locks  map[uint64]*sync.Mutex // per-auction update serialization

	// depMu serializes deposit access across auctions. Two mutations on
	// different auctions may debit the same address; without this both
	// would read the same starting balance and the last write would win.
	depMu sync.Mutex
}

func NewStore() *Store {
	return &Store{
		auctions: make(map[uint64]*models.Auction),
		deposits: make(map[string]decimal.Decimal),
		locks:    make(map[uint64]*sync.Mutex),
	}
}

var _ ledger.Store = (*Store)(nil)

func (s *Store) auctionLock(id uint64) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Store) CreateAuction(ctx context.Context, a *models.Auction) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.auctions {
		if existing.TokenID == a.TokenID && !existing.CustodyReleased() {
			return 0, ledger.ErrTokenInUse
		}
	}

	id := s.counter
	s.counter++

	a.ID = id
	s.auctions[id] = a.Clone()
	s.order = append(s.order, id)
	return id, nil
}

func (s *Store) GetAuction(ctx context.Context, id uint64) (*models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auctions[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return a.Clone(), nil
}

type memTx struct {
	s        *Store
	auction  *models.Auction
	staged   map[string]decimal.Decimal
	holdsDep bool
}

func (t *memTx) Auction() *models.Auction { return t.auction }

// lockDeposits takes depMu on the first deposit touch and keeps it until
// the transaction commits or rolls back, the way the SQL store holds its
// row locks through the surrounding transaction.
func (t *memTx) lockDeposits() {
	if t.holdsDep {
		return
	}
	t.s.depMu.Lock()
	t.holdsDep = true
}

func (t *memTx) Deposit(addr string) (decimal.Decimal, error) {
	t.lockDeposits()
	if v, ok := t.staged[addr]; ok {
		return v, nil
	}
	t.s.mu.RLock()
	v := t.s.deposits[addr]
	t.s.mu.RUnlock()
	t.staged[addr] = v
	return v, nil
}

func (t *memTx) SetDeposit(addr string, amount decimal.Decimal) error {
	t.lockDeposits()
	t.staged[addr] = amount
	return nil
}

func (s *Store) UpdateAuction(ctx context.Context, id uint64, fn func(tx ledger.Tx) error) error {
	l := s.auctionLock(id)
	l.Lock()
	defer l.Unlock()

	snapshot, err := s.GetAuction(ctx, id)
	if err != nil {
		return err
	}

	tx := &memTx{s: s, auction: snapshot, staged: make(map[string]decimal.Decimal)}
	defer func() {
		if tx.holdsDep {
			s.depMu.Unlock()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}

	snapshot.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.auctions[id] = snapshot
	for addr, v := range tx.staged {
		s.deposits[addr] = v
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) ListActiveIDs(ctx context.Context, now time.Time) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint64, 0)
	for _, id := range s.order {
		a := s.auctions[id]
		if a.Status == models.AuctionStatusActive && !a.Expired(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []uint64
	for _, id := range s.order {
		a := s.auctions[id]
		if a.Status == models.AuctionStatusActive && a.Expired(now) {
			ids = append(ids, id)
			if limit > 0 && len(ids) >= limit {
				break
			}
		}
	}
	return ids, nil
}

func (s *Store) ListUnsettled(ctx context.Context, limit int) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []uint64
	for _, id := range s.order {
		a := s.auctions[id]
		if a.Status == models.AuctionStatusEnded && !a.Settled {
			ids = append(ids, id)
			if limit > 0 && len(ids) >= limit {
				break
			}
		}
	}
	return ids, nil
}

func (s *Store) AuctionCount(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counter, nil
}

func (s *Store) Deposit(ctx context.Context, addr string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deposits[addr], nil
}

func (s *Store) CreditDeposit(ctx context.Context, addr string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deposits[addr] = s.deposits[addr].Add(amount)
	return nil
}

func (s *Store) Participated(ctx context.Context, addr string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.auctions {
		if _, ok := a.Bidders[addr]; ok {
			n++
		}
	}
	return n, nil
}

func (s *Store) Won(ctx context.Context, addr string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.auctions {
		if a.Settled && a.HasBids() && a.HighestBidder == addr {
			n++
		}
	}
	return n, nil
}

func (s *Store) AppendAudit(ctx context.Context, entry models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.audit = append(s.audit, entry)
	return nil
}

func (s *Store) AuditByAuction(ctx context.Context, id uint64, limit int) ([]models.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AuditLog
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if e.AuctionID != nil && *e.AuctionID == id {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
