package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ariefcatur/go-pixel-market.git/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the part of *pgxpool.Pool the store needs.
type DB interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

// Store implements orders.Store on the pixels/orders tables. Row locks are
// always taken in ascending pixel_id order so concurrent reservations over
// overlapping sets cannot deadlock.
type Store struct{ DB DB }

var _ orders.Store = (*Store)(nil)

const orderColumns = `id, reference, pixel_ids, amount, status, color, link, individual_data,
	payment_proof_url, payment_note, expires_at, created_at, updated_at, paid_at`

func (s *Store) InTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetOrder(ctx context.Context, key string) (*orders.Order, error) {
	col, arg := orderKey(key)
	return scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+col+` = $1`, arg))
}

func (s *Store) ExpiredOrderIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id FROM orders
		WHERE status = 'pending' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) ListOrders(ctx context.Context, status orders.OrderStatus) ([]orders.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC, id`
	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s *Store) ListPixels(ctx context.Context, status orders.PixelStatus) ([]orders.Pixel, error) {
	q := `SELECT pixel_id, status, color, link, order_id FROM pixels WHERE status <> 'free'`
	var args []any
	if status != "" {
		q += ` AND status = $1`
		args = append(args, string(status))
	}
	q += ` ORDER BY pixel_id`
	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPixels(rows)
}

func (s *Store) CountPixels(ctx context.Context) (reserved, sold int, err error) {
	err = s.DB.QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE status = 'reserved'),
		       count(*) FILTER (WHERE status = 'sold')
		FROM pixels WHERE status <> 'free'`).Scan(&reserved, &sold)
	return reserved, sold, err
}

func (s *Store) PaidTotals(ctx context.Context) (paid, units int, err error) {
	err = s.DB.QueryRow(ctx, `
		SELECT count(*), coalesce(sum(amount), 0)
		FROM orders WHERE status = 'paid'`).Scan(&paid, &units)
	return paid, units, err
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) LockPixels(ctx context.Context, ids []int) ([]orders.Pixel, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT pixel_id, status, color, link, order_id FROM pixels
		WHERE pixel_id = ANY($1)
		ORDER BY pixel_id
		FOR UPDATE`, toInt32s(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := scanPixels(rows)
	if err != nil {
		return nil, err
	}
	if len(out) != len(ids) {
		return nil, fmt.Errorf("pixels table incomplete: found %d of %d rows", len(out), len(ids))
	}
	return out, nil
}

func (t *pgTx) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE reference = $1)`, ref).Scan(&ok)
	return ok, err
}

func (t *pgTx) InsertOrder(ctx context.Context, o *orders.Order) error {
	color, link, individual, err := orders.AppearanceColumns(o.Appearance)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO orders (id, reference, pixel_ids, amount, status, color, link, individual_data,
		                    expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		o.ID, o.Reference, toInt32s(o.PixelIDs), o.Amount, string(o.Status),
		color, link, individual, o.ExpiresAt, o.CreatedAt)
	return err
}

func (t *pgTx) ReservePixels(ctx context.Context, ids []int, orderID string) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE pixels SET status = 'reserved', order_id = $2, color = NULL, link = NULL
		WHERE pixel_id = ANY($1) AND status = 'free'`, toInt32s(ids), orderID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("reserve pixels: updated %d of %d rows", ct.RowsAffected(), len(ids))
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, key string) (*orders.Order, error) {
	col, arg := orderKey(key)
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+col+` = $1 FOR UPDATE`, arg))
}

func (t *pgTx) TransitionOrder(ctx context.Context, orderID string, from, to orders.OrderStatus, at time.Time) (bool, error) {
	if !orders.CanTransition(from, to) {
		return false, nil
	}
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET status = $3, updated_at = $4,
		    paid_at = CASE WHEN $3 = 'paid' THEN $4 ELSE paid_at END
		WHERE id = $1 AND status = $2`, orderID, string(from), string(to), at)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (t *pgTx) ExpireOrder(ctx context.Context, orderID string, now time.Time) (bool, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET status = 'expired', updated_at = $2
		WHERE id = $1 AND status = 'pending' AND expires_at < $2`, orderID, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// SellPixels sends one conditional update per pixel in a single batch.
func (t *pgTx) SellPixels(ctx context.Context, orderID string, styles map[int]orders.Style) (int, error) {
	ids := make([]int, 0, len(styles))
	for id := range styles {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	batch := &pgx.Batch{}
	for _, id := range ids {
		st := styles[id]
		var link *string
		if st.Link != "" {
			link = &st.Link
		}
		batch.Queue(`
			UPDATE pixels SET status = 'sold', color = $3, link = $4
			WHERE pixel_id = $1 AND order_id = $2 AND status = 'reserved'`,
			id, orderID, st.Color, link)
	}
	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()

	sold := 0
	for range ids {
		ct, err := br.Exec()
		if err != nil {
			return sold, err
		}
		sold += int(ct.RowsAffected())
	}
	return sold, br.Close()
}

func (t *pgTx) ReleasePixels(ctx context.Context, orderID string) (int, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE pixels SET status = 'free', order_id = NULL, color = NULL, link = NULL
		WHERE pixel_id IN (
			SELECT pixel_id FROM pixels WHERE order_id = $1
			ORDER BY pixel_id
			FOR UPDATE
		)`, orderID)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (t *pgTx) SetPaymentProof(ctx context.Context, orderID, url, note string, at time.Time) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET payment_proof_url = NULLIF($2, ''), payment_note = NULLIF($3, ''), updated_at = $4
		WHERE id = $1`, orderID, url, note, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteOrder(ctx context.Context, orderID string) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrNotFound
	}
	return nil
}

func orderKey(key string) (column string, arg string) {
	if orders.IsReference(key) {
		return "reference", strings.ToUpper(key)
	}
	return "id", key
}

func scanOrder(row pgx.Row) (*orders.Order, error) {
	var (
		o          orders.Order
		pixelIDs   []int32
		status     string
		color      *string
		link       *string
		individual []byte
		proofURL   *string
		note       *string
	)
	err := row.Scan(&o.ID, &o.Reference, &pixelIDs, &o.Amount, &status, &color, &link, &individual,
		&proofURL, &note, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt, &o.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orders.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = orders.OrderStatus(status)
	o.PixelIDs = make([]int, len(pixelIDs))
	for i, id := range pixelIDs {
		o.PixelIDs[i] = int(id)
	}
	if o.Appearance, err = orders.AppearanceFromColumns(color, link, individual); err != nil {
		return nil, err
	}
	if proofURL != nil {
		o.PaymentProofURL = *proofURL
	}
	if note != nil {
		o.PaymentNote = *note
	}
	return &o, nil
}

func scanPixels(rows pgx.Rows) ([]orders.Pixel, error) {
	var out []orders.Pixel
	for rows.Next() {
		var (
			p      orders.Pixel
			status string
		)
		if err := rows.Scan(&p.ID, &status, &p.Color, &p.Link, &p.OrderID); err != nil {
			return nil, err
		}
		p.Status = orders.PixelStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

func toInt32s(ids []int) []int32 {
	out := make([]int32, len(ids))
	for i, id := range ids {
		out[i] = int32(id)
	}
	return out
}
