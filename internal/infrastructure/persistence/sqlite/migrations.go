package sqlite

import "database/sql"

func RunMigrations(db *sql.DB) error {
	stmts := []string{

		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			buyer_id TEXT NOT NULL,
			items TEXT NOT NULL,
			total REAL NOT NULL,
			status TEXT NOT NULL,
			payment_id TEXT NOT NULL DEFAULT '',
			txid TEXT NOT NULL DEFAULT '',
			note TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,

		`CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders (buyer_id);`,

		`CREATE TABLE IF NOT EXISTS payment_ledger (
			payment_id TEXT NOT NULL,
			order_id TEXT NOT NULL DEFAULT '',
			phase TEXT NOT NULL,
			outcome_code TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			txid TEXT NOT NULL DEFAULT '',
			completed_at DATETIME NOT NULL,
			PRIMARY KEY (payment_id, phase)
		);`,

		`CREATE TABLE IF NOT EXISTS outbox_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			payload BLOB NOT NULL,
			published INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
