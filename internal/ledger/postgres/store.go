// Package postgres is the durable ledger store. One pgx transaction per
// mutation: the auction row is locked FOR UPDATE for the whole mutator, and
// deposit rows are locked as they are touched, so concurrent writers
// serialize per auction exactly like the in-memory store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gurux2003/charityauction/internal/ledger"
	"github.com/gurux2003/charityauction/internal/models"
)

const auctionIDCounter = "auction_id"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const auctionColumns = `id, token_id, seller, charity,
	start_price::text, buy_now_price::text,
	start_time, end_time,
	highest_bid::text, highest_bidder,
	status, ended, settled,
	charity_tx_hash, custody_tx_ref,
	created_at, updated_at`

func scanAuction(row pgx.Row) (*models.Auction, error) {
	var (
		a          models.Auction
		startPrice string
		buyNow     string
		highestBid string
	)
	err := row.Scan(
		&a.ID, &a.TokenID, &a.Seller, &a.Charity,
		&startPrice, &buyNow,
		&a.StartTime, &a.EndTime,
		&highestBid, &a.HighestBidder,
		&a.Status, &a.Ended, &a.Settled,
		&a.CharityTxHash, &a.CustodyTxRef,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}

	if a.StartPrice, err = decimal.NewFromString(startPrice); err != nil {
		return nil, fmt.Errorf("auction %d: bad start_price: %w", a.ID, err)
	}
	if a.BuyNowPrice, err = decimal.NewFromString(buyNow); err != nil {
		return nil, fmt.Errorf("auction %d: bad buy_now_price: %w", a.ID, err)
	}
	if a.HighestBid, err = decimal.NewFromString(highestBid); err != nil {
		return nil, fmt.Errorf("auction %d: bad highest_bid: %w", a.ID, err)
	}
	return &a, nil
}

func loadReturns(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, auctionID uint64) (map[string]decimal.Decimal, error) {
	rows, err := q.Query(ctx,
		`SELECT address, amount::text FROM pending_returns WHERE auction_id = $1`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var addr, amount string
		if err := rows.Scan(&addr, &amount); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, err
		}
		out[addr] = d
	}
	return out, rows.Err()
}

func loadBidders(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, auctionID uint64) (map[string]struct{}, error) {
	rows, err := q.Query(ctx,
		`SELECT address FROM auction_bidders WHERE auction_id = $1`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out[addr] = struct{}{}
	}
	return out, rows.Err()
}

func (s *Store) CreateAuction(ctx context.Context, a *models.Auction) (uint64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	// A token may only back one open auction at a time. Open means custody
	// is still with the engine: not reclaimed and not settled-with-winner.
	var busy bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM auctions
			WHERE token_id = $1
			  AND NOT (status = 'reclaimed' OR (settled AND highest_bid > 0))
		)`, a.TokenID).Scan(&busy)
	if err != nil {
		return 0, err
	}
	if busy {
		return 0, fmt.Errorf("token %d: %w", a.TokenID, ledger.ErrTokenInUse)
	}

	var id uint64
	err = tx.QueryRow(ctx, `
		UPDATE counters SET value = value + 1
		WHERE name = $1
		RETURNING value - 1`, auctionIDCounter).Scan(&id)
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO auctions (
			id, token_id, seller, charity,
			start_price, buy_now_price,
			start_time, end_time,
			highest_bid, highest_bidder,
			status, ended, settled,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		id, a.TokenID, a.Seller, a.Charity,
		a.StartPrice.String(), a.BuyNowPrice.String(),
		a.StartTime, a.EndTime,
		a.HighestBid.String(), a.HighestBidder,
		a.Status, a.Ended, a.Settled,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) GetAuction(ctx context.Context, id uint64) (*models.Auction, error) {
	a, err := scanAuction(s.pool.QueryRow(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	if a.PendingReturns, err = loadReturns(ctx, s.pool, id); err != nil {
		return nil, err
	}
	if a.Bidders, err = loadBidders(ctx, s.pool, id); err != nil {
		return nil, err
	}
	return a, nil
}

// pgTx is the ledger.Tx view over one pgx transaction. Deposit rows are
// locked on first read and written back on commit.
type pgTx struct {
	ctx      context.Context
	tx       pgx.Tx
	auction  *models.Auction
	deposits map[string]decimal.Decimal
}

func (t *pgTx) Auction() *models.Auction { return t.auction }

func (t *pgTx) Deposit(addr string) (decimal.Decimal, error) {
	if v, ok := t.deposits[addr]; ok {
		return v, nil
	}

	var balance string
	err := t.tx.QueryRow(t.ctx,
		`SELECT balance::text FROM deposits WHERE address = $1 FOR UPDATE`, addr).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		t.deposits[addr] = decimal.Zero
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}

	d, err := decimal.NewFromString(balance)
	if err != nil {
		return decimal.Zero, err
	}
	t.deposits[addr] = d
	return d, nil
}

func (t *pgTx) SetDeposit(addr string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("deposit for %s would go negative", addr)
	}
	t.deposits[addr] = amount
	return nil
}

func (s *Store) UpdateAuction(ctx context.Context, id uint64, fn func(tx ledger.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	a, err := scanAuction(tx.QueryRow(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return err
	}
	if a.PendingReturns, err = loadReturns(ctx, tx, id); err != nil {
		return err
	}
	if a.Bidders, err = loadBidders(ctx, tx, id); err != nil {
		return err
	}

	view := &pgTx{
		ctx:      ctx,
		tx:       tx,
		auction:  a,
		deposits: make(map[string]decimal.Decimal),
	}
	if err := fn(view); err != nil {
		return err
	}

	a.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(ctx, `
		UPDATE auctions SET
			end_time = $2,
			highest_bid = $3, highest_bidder = $4,
			status = $5, ended = $6, settled = $7,
			charity_tx_hash = $8, custody_tx_ref = $9,
			updated_at = $10
		WHERE id = $1`,
		id,
		a.EndTime,
		a.HighestBid.String(), a.HighestBidder,
		a.Status, a.Ended, a.Settled,
		a.CharityTxHash, a.CustodyTxRef,
		a.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM pending_returns WHERE auction_id = $1`, id); err != nil {
		return err
	}
	for addr, amount := range a.PendingReturns {
		if amount.IsZero() {
			continue
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO pending_returns (auction_id, address, amount)
			VALUES ($1, $2, $3)`, id, addr, amount.String())
		if err != nil {
			return err
		}
	}

	for addr := range a.Bidders {
		_, err := tx.Exec(ctx, `
			INSERT INTO auction_bidders (auction_id, address)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, id, addr)
		if err != nil {
			return err
		}
	}

	for addr, balance := range view.deposits {
		_, err := tx.Exec(ctx, `
			INSERT INTO deposits (address, balance)
			VALUES ($1, $2)
			ON CONFLICT (address) DO UPDATE SET balance = EXCLUDED.balance`,
			addr, balance.String())
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) listIDs(ctx context.Context, query string, args ...any) ([]uint64, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListActiveIDs(ctx context.Context, now time.Time) ([]uint64, error) {
	return s.listIDs(ctx, `
		SELECT id FROM auctions
		WHERE status = 'active' AND end_time > $1
		ORDER BY id`, now)
}

func (s *Store) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	return s.listIDs(ctx, `
		SELECT id FROM auctions
		WHERE status = 'active' AND end_time <= $1
		ORDER BY id
		LIMIT $2`, now, limit)
}

func (s *Store) ListUnsettled(ctx context.Context, limit int) ([]uint64, error) {
	return s.listIDs(ctx, `
		SELECT id FROM auctions
		WHERE status = 'ended' AND NOT settled
		ORDER BY id
		LIMIT $1`, limit)
}

func (s *Store) AuctionCount(ctx context.Context) (uint64, error) {
	var value uint64
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM counters WHERE name = $1`, auctionIDCounter).Scan(&value)
	return value, err
}

func (s *Store) Deposit(ctx context.Context, addr string) (decimal.Decimal, error) {
	var balance string
	err := s.pool.QueryRow(ctx,
		`SELECT balance::text FROM deposits WHERE address = $1`, addr).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(balance)
}

func (s *Store) CreditDeposit(ctx context.Context, addr string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("credit must be positive, got %s", amount)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deposits (address, balance)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET balance = deposits.balance + EXCLUDED.balance`,
		addr, amount.String())
	return err
}

func (s *Store) Participated(ctx context.Context, addr string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM auction_bidders WHERE address = $1`, addr).Scan(&n)
	return n, err
}

func (s *Store) Won(ctx context.Context, addr string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM auctions
		WHERE settled AND highest_bid > 0 AND highest_bidder = $1`, addr).Scan(&n)
	return n, err
}

func (s *Store) AppendAudit(ctx context.Context, entry models.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, actor, operation, auction_id, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.Actor, entry.Operation, entry.AuctionID, meta, entry.CreatedAt)
	return err
}

func (s *Store) AuditByAuction(ctx context.Context, id uint64, limit int) ([]models.AuditLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, actor, operation, auction_id, meta, created_at
		FROM audit_log
		WHERE auction_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AuditLog
	for rows.Next() {
		var (
			e    models.AuditLog
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.Operation, &e.AuctionID, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			e.Meta = json.RawMessage(meta)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
