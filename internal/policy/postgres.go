package policy

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Table names for the two administratively maintained sets.
const (
	TableWhitelist = "whitelist"
	TableCharities = "approved_charities"
)

// PGRegistry is a Postgres-backed address set.
type PGRegistry struct {
	pool  *pgxpool.Pool
	table string
}

func NewPGRegistry(pool *pgxpool.Pool, table string) *PGRegistry {
	return &PGRegistry{pool: pool, table: table}
}

func (r *PGRegistry) Contains(ctx context.Context, addr string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+r.table+` WHERE address = $1)`, addr,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PGRegistry) Add(ctx context.Context, addr string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO `+r.table+` (address) VALUES ($1) ON CONFLICT (address) DO NOTHING`, addr)
	return err
}

func (r *PGRegistry) Remove(ctx context.Context, addr string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM `+r.table+` WHERE address = $1`, addr)
	return err
}
