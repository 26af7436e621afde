package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-pixel-market.git/internal/monitoring"
	"go.uber.org/zap"
)

const (
	DefaultOrderTTL     = 20 * time.Minute
	DefaultStoreTimeout = 5 * time.Second
	DefaultMaxPixels    = 10_000

	sweepBatch        = 500
	referenceAttempts = 5
)

// Service owns every state transition of orders and pixels: reservation,
// settlement, expiry and administrative cancel.
type Service struct {
	Store   Store
	Events  Publisher           // optional
	Monitor *monitoring.Monitor // optional
	Log     *zap.Logger
	Name    string // producer name stamped on events

	OrderTTL     time.Duration
	StoreTimeout time.Duration
	MaxPixels    int

	Now          func() time.Time
	NewReference func() (string, error)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Service) ttl() time.Duration {
	if s.OrderTTL > 0 {
		return s.OrderTTL
	}
	return DefaultOrderTTL
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	d := s.StoreTimeout
	if d <= 0 {
		d = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, d)
}

func (s *Service) reference() (string, error) {
	if s.NewReference != nil {
		return s.NewReference()
	}
	return NewReference()
}

// CreateOrder reserves pixelIDs for a new pending order. If any pixel is not
// free the call fails with *ConflictError and nothing is written.
func (s *Service) CreateOrder(ctx context.Context, pixelIDs []int, a Appearance) (res Reservation, err error) {
	started := time.Now()
	defer func() { s.Monitor.TrackOperation("create", resultLabel(err), started) }()

	maxPixels := s.MaxPixels
	if maxPixels == 0 {
		maxPixels = DefaultMaxPixels
	}
	ids, err := normalizeRequest(pixelIDs, a, maxPixels)
	if err != nil {
		return Reservation{}, err
	}

	// stale reservations would otherwise show up as conflicts
	if n, err := s.SweepExpired(ctx, s.now()); err != nil {
		s.log().Warn("pre-reservation sweep failed", zap.Error(err))
	} else if n > 0 {
		s.log().Info("pre-reservation sweep expired orders", zap.Int("count", n))
	}

	now := s.now()
	order := &Order{
		PixelIDs:   ids,
		Amount:     len(ids),
		Status:     StatusPending,
		Appearance: a,
		ExpiresAt:  now.Add(s.ttl()),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	tctx, cancel := s.withTimeout(ctx)
	defer cancel()
	err = s.Store.InTx(tctx, func(tx Tx) error {
		pixels, err := tx.LockPixels(tctx, ids)
		if err != nil {
			return err
		}
		var taken []int
		for _, p := range pixels {
			if p.Status != PixelFree {
				taken = append(taken, p.ID)
			}
		}
		if len(taken) > 0 {
			return &ConflictError{PixelIDs: taken}
		}

		ref, err := s.uniqueReference(tctx, tx)
		if err != nil {
			return err
		}
		order.ID = newOrderID()
		order.Reference = ref
		if err := tx.InsertOrder(tctx, order); err != nil {
			return err
		}
		return tx.ReservePixels(tctx, ids, order.ID)
	})
	if err != nil {
		return Reservation{}, storeErr("create order", err)
	}

	s.Monitor.TrackReserved(len(ids))
	s.log().Info("order reserved",
		zap.String("order_id", order.ID),
		zap.String("reference", order.Reference),
		zap.Int("pixels", len(ids)),
		zap.Time("expires_at", order.ExpiresAt),
	)
	s.emit(ctx, EventOrderReserved, order.ID, OrderReservedPayload{
		OrderID:   order.ID,
		Reference: order.Reference,
		PixelIDs:  ids,
		Amount:    order.Amount,
		ExpiresAt: order.ExpiresAt,
	})
	return Reservation{
		OrderID:   order.ID,
		Reference: order.Reference,
		Amount:    order.Amount,
		ExpiresAt: order.ExpiresAt,
	}, nil
}

func (s *Service) uniqueReference(ctx context.Context, tx Tx) (string, error) {
	for i := 0; i < referenceAttempts; i++ {
		ref, err := s.reference()
		if err != nil {
			return "", fmt.Errorf("generate reference: %w", err)
		}
		exists, err := tx.ReferenceExists(ctx, ref)
		if err != nil {
			return "", err
		}
		if !exists {
			return ref, nil
		}
	}
	return "", errors.New("could not generate a unique reference")
}

// Settle marks a pending order paid and its pixels sold. Settling a paid
// order succeeds without changing anything except finishing pixels a
// previous attempt left reserved. Expired orders cannot be settled.
func (s *Service) Settle(ctx context.Context, key string) (st Settlement, err error) {
	started := time.Now()
	defer func() { s.Monitor.TrackOperation("settle", resultLabel(err), started) }()

	var (
		order       *Order
		alreadyPaid bool
		sold        int
	)
	tctx, cancel := s.withTimeout(ctx)
	defer cancel()
	err = s.Store.InTx(tctx, func(tx Tx) error {
		o, err := tx.LockOrder(tctx, key)
		if err != nil {
			return err
		}
		switch o.Status {
		case StatusExpired:
			return fmt.Errorf("%w: order %s is expired", ErrInvalidState, o.Reference)
		case StatusPaid:
			alreadyPaid = true
		case StatusPending:
			now := s.now()
			ok, err := tx.TransitionOrder(tctx, o.ID, StatusPending, StatusPaid, now)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: order %s is no longer pending", ErrInvalidState, o.Reference)
			}
			o.Status = StatusPaid
			o.PaidAt = &now
			o.UpdatedAt = now
		default:
			return fmt.Errorf("%w: unknown status %q", ErrInvalidState, o.Status)
		}

		styles, err := resolveStyles(o)
		if err != nil {
			return err
		}
		sold, err = tx.SellPixels(tctx, o.ID, styles)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return Settlement{}, storeErr("settle", err)
	}

	if alreadyPaid {
		if sold > 0 {
			s.log().Warn("settle repaired unsold pixels of paid order",
				zap.String("order_id", order.ID), zap.Int("pixels", sold))
		}
		return Settlement{Order: order, AlreadyPaid: true}, nil
	}

	s.log().Info("order settled",
		zap.String("order_id", order.ID),
		zap.String("reference", order.Reference),
		zap.Int("pixels", sold),
	)
	s.emit(ctx, EventOrderPaid, order.ID, OrderPaidPayload{
		OrderID:   order.ID,
		Reference: order.Reference,
		Amount:    order.Amount,
		Pixels:    sold,
	})
	return Settlement{Order: order}, nil
}

// resolveStyles picks each pixel's final color/link from the order's
// appearance.
func resolveStyles(o *Order) (map[int]Style, error) {
	if o.Appearance == nil {
		return nil, fmt.Errorf("%w: order %s has no appearance", ErrInvalidState, o.Reference)
	}
	styles := make(map[int]Style, len(o.PixelIDs))
	for _, id := range o.PixelIDs {
		st, ok := o.Appearance.StyleFor(id)
		if !ok {
			return nil, fmt.Errorf("%w: order %s has no style for pixel %d", ErrInvalidState, o.Reference, id)
		}
		styles[id] = st
	}
	return styles, nil
}

// SweepExpired expires every pending order whose deadline is before now and
// frees its pixels, paging through candidates sweepBatch at a time. Orders
// settled concurrently are skipped. It returns the number of orders expired
// by this call.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (n int, err error) {
	started := time.Now()
	defer func() { s.Monitor.TrackOperation("sweep", resultLabel(err), started) }()

	for {
		batch, err := s.expireBatch(ctx, now)
		n += batch.expired
		if err != nil {
			return n, err
		}
		// a short batch was the last one; a batch with nothing expirable
		// means the rest are being settled concurrently
		if batch.listed < sweepBatch || batch.expired == 0 {
			return n, nil
		}
	}
}

type sweepResult struct {
	listed  int
	expired int
}

func (s *Service) expireBatch(ctx context.Context, now time.Time) (sweepResult, error) {
	var res sweepResult
	lctx, cancel := s.withTimeout(ctx)
	ids, err := s.Store.ExpiredOrderIDs(lctx, now, sweepBatch)
	cancel()
	if err != nil {
		return res, storeErr("list expired", err)
	}
	res.listed = len(ids)

	for _, id := range ids {
		var (
			expired  bool
			released int
		)
		tctx, cancel := s.withTimeout(ctx)
		err := s.Store.InTx(tctx, func(tx Tx) error {
			ok, err := tx.ExpireOrder(tctx, id, now)
			if err != nil || !ok {
				return err
			}
			expired = true
			released, err = tx.ReleasePixels(tctx, id)
			return err
		})
		cancel()
		if err != nil {
			return res, storeErr("expire order", err)
		}
		if !expired {
			continue
		}
		res.expired++
		s.log().Info("order expired", zap.String("order_id", id), zap.Int("released", released))
		s.emit(ctx, EventOrderExpired, id, OrderExpiredPayload{OrderID: id, Released: released})
	}
	return res, nil
}

// SweepDue runs SweepExpired at the service's current time.
func (s *Service) SweepDue(ctx context.Context) (int, error) {
	return s.SweepExpired(ctx, s.now())
}

// AttachProof records buyer-submitted payment evidence on a pending order.
// It never settles the order.
func (s *Service) AttachProof(ctx context.Context, key, proofURL, note string) (*Order, error) {
	if proofURL == "" && note == "" {
		return nil, validationf("payment_proof_url or payment_note is required")
	}
	if len(note) > 2000 {
		return nil, validationf("payment_note too long")
	}
	if err := validate.Var(proofURL, "omitempty,http_url"); err != nil {
		return nil, validationf("invalid payment_proof_url %q", proofURL)
	}
	var order *Order
	tctx, cancel := s.withTimeout(ctx)
	defer cancel()
	err := s.Store.InTx(tctx, func(tx Tx) error {
		o, err := tx.LockOrder(tctx, key)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidState, o.Reference, o.Status)
		}
		now := s.now()
		if err := tx.SetPaymentProof(tctx, o.ID, proofURL, note, now); err != nil {
			return err
		}
		o.PaymentProofURL, o.PaymentNote, o.UpdatedAt = proofURL, note, now
		order = o
		return nil
	})
	if err != nil {
		return nil, storeErr("attach proof", err)
	}
	s.log().Info("payment proof attached", zap.String("order_id", order.ID))
	return order, nil
}

// Cancel deletes a pending or expired order and frees its pixels. Paid
// orders cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, key string) (err error) {
	started := time.Now()
	defer func() { s.Monitor.TrackOperation("cancel", resultLabel(err), started) }()

	var (
		order    *Order
		released int
	)
	tctx, cancel := s.withTimeout(ctx)
	defer cancel()
	err = s.Store.InTx(tctx, func(tx Tx) error {
		o, err := tx.LockOrder(tctx, key)
		if err != nil {
			return err
		}
		if o.Status == StatusPaid {
			return fmt.Errorf("%w: order %s is paid", ErrInvalidState, o.Reference)
		}
		if released, err = tx.ReleasePixels(tctx, o.ID); err != nil {
			return err
		}
		order = o
		return tx.DeleteOrder(tctx, o.ID)
	})
	if err != nil {
		return storeErr("cancel", err)
	}
	s.log().Info("order cancelled",
		zap.String("order_id", order.ID),
		zap.String("status", string(order.Status)),
		zap.Int("released", released),
	)
	s.emit(ctx, EventOrderCancelled, order.ID, OrderCancelledPayload{
		OrderID:   order.ID,
		Reference: order.Reference,
		Status:    order.Status,
		Released:  released,
	})
	return nil
}

// Order looks up an order by ID or reference.
func (s *Service) Order(ctx context.Context, key string) (*Order, error) {
	tctx, cancel := s.withTimeout(ctx)
	defer cancel()
	o, err := s.Store.GetOrder(tctx, key)
	if err != nil {
		return nil, storeErr("get order", err)
	}
	return o, nil
}

func (s *Service) emit(ctx context.Context, eventType, orderID string, payload any) {
	if s.Events == nil {
		return
	}
	env, err := NewEnvelope(eventType, s.Name, orderID, payload, s.now())
	if err != nil {
		s.log().Error("encode event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	env.TraceID = TraceID(ctx)
	if err := s.Events.PublishEvent(ctx, orderID, env); err != nil {
		s.log().Warn("publish event", zap.String("event_type", eventType),
			zap.String("order_id", orderID), zap.Error(err))
	}
}

func resultLabel(err error) string {
	var ve *ValidationError
	var ce *ConflictError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ve):
		return "invalid"
	case errors.As(err, &ce):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	default:
		return "error"
	}
}
