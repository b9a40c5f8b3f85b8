package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{

		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			buyer_id TEXT NOT NULL,
			items JSONB NOT NULL,
			total DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			payment_id TEXT NOT NULL DEFAULT '',
			txid TEXT NOT NULL DEFAULT '',
			note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,

		`CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders (buyer_id);`,

		`CREATE TABLE IF NOT EXISTS payment_ledger (
			payment_id TEXT NOT NULL,
			order_id TEXT NOT NULL DEFAULT '',
			phase TEXT NOT NULL,
			outcome_code TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			txid TEXT NOT NULL DEFAULT '',
			completed_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (payment_id, phase)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}
