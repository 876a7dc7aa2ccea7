package database

import (
	"regexp"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

var placeholder = regexp.MustCompile(`\$(\d+)`)

// Rebind rewrites $n placeholders for the dialect. SQLite understands ?n,
// which keeps repeated and out-of-order parameters intact.
func (d Dialect) Rebind(query string) string {
	if d != SQLite {
		return query
	}
	return placeholder.ReplaceAllString(query, "?$1")
}

// ForUpdate is the row-lock suffix for a SELECT inside a transaction.
// SQLite locks the whole database on write and has no equivalent.
func (d Dialect) ForUpdate() string {
	if d == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

func (d Dialect) schema() []string {
	if d == Postgres {
		return postgresSchema
	}
	return sqliteSchema
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL DEFAULT '',
		price NUMERIC(12,2) NOT NULL DEFAULT 0,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS payment_orders (
		id BIGSERIAL PRIMARY KEY,
		order_token VARCHAR(64) NOT NULL UNIQUE,
		provider VARCHAR(32) NOT NULL,
		provider_payment_id VARCHAR(128) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		amount_subtotal NUMERIC(12,2) NOT NULL,
		shipping_amount NUMERIC(12,2) NOT NULL,
		amount_total NUMERIC(12,2) NOT NULL,
		checkout_data TEXT NOT NULL,
		delivery_data TEXT NOT NULL,
		payment_data TEXT NOT NULL DEFAULT '{}',
		stock_decremented BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_orders_status ON payment_orders(status, updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_orders_provider_payment ON payment_orders(provider, provider_payment_id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL DEFAULT '',
		price NUMERIC NOT NULL DEFAULT 0,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS payment_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_token TEXT NOT NULL UNIQUE,
		provider TEXT NOT NULL,
		provider_payment_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		amount_subtotal NUMERIC NOT NULL,
		shipping_amount NUMERIC NOT NULL,
		amount_total NUMERIC NOT NULL,
		checkout_data TEXT NOT NULL,
		delivery_data TEXT NOT NULL,
		payment_data TEXT NOT NULL DEFAULT '{}',
		stock_decremented BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_orders_status ON payment_orders(status, updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_orders_provider_payment ON payment_orders(provider, provider_payment_id)`,
}
