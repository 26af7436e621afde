package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id                TEXT PRIMARY KEY,
	reference         TEXT NOT NULL UNIQUE,
	pixel_ids         INTEGER[] NOT NULL CHECK (cardinality(pixel_ids) > 0),
	amount            INTEGER NOT NULL CHECK (amount = cardinality(pixel_ids)),
	status            TEXT NOT NULL CHECK (status IN ('pending', 'paid', 'expired')),
	color             TEXT,
	link              TEXT,
	individual_data   JSONB,
	payment_proof_url TEXT,
	payment_note      TEXT,
	expires_at        TIMESTAMPTZ NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	paid_at           TIMESTAMPTZ,
	CHECK ((individual_data IS NULL) <> (color IS NULL))
);
CREATE INDEX IF NOT EXISTS orders_pending_expiry_idx ON orders (expires_at) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS orders_created_idx ON orders (created_at DESC);

CREATE TABLE IF NOT EXISTS pixels (
	pixel_id INTEGER PRIMARY KEY CHECK (pixel_id >= 0 AND pixel_id < %d),
	status   TEXT NOT NULL DEFAULT 'free' CHECK (status IN ('free', 'reserved', 'sold')),
	color    TEXT,
	link     TEXT,
	order_id TEXT REFERENCES orders (id),
	CHECK ((order_id IS NULL) = (status = 'free'))
);
CREATE INDEX IF NOT EXISTS pixels_order_idx ON pixels (order_id) WHERE order_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS pixels_taken_idx ON pixels (status) WHERE status <> 'free';
`

const seedPixels = `
INSERT INTO pixels (pixel_id)
SELECT g FROM generate_series(0, $1::int - 1) AS g
ON CONFLICT (pixel_id) DO NOTHING`

// Migrate creates the tables if needed and makes sure every pixel row exists.
// It is safe to run on every start.
func Migrate(ctx context.Context, db *pgxpool.Pool, totalPixels int) error {
	if _, err := db.Exec(ctx, fmt.Sprintf(schema, totalPixels)); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	var n int
	if err := db.QueryRow(ctx, `SELECT count(*) FROM pixels`).Scan(&n); err != nil {
		return fmt.Errorf("count pixels: %w", err)
	}
	if n == totalPixels {
		return nil
	}
	if _, err := db.Exec(ctx, seedPixels, totalPixels); err != nil {
		return fmt.Errorf("seed pixels: %w", err)
	}
	return nil
}
