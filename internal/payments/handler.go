package payments

import (
	"context"
	"encoding/json"
	"errors"

	kafkax "github.com/ariefcatur/go-pixel-market.git/internal/kafka"
	"github.com/ariefcatur/go-pixel-market.git/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Settler is the part of orders.Service the handler needs.
type Settler interface {
	Settle(ctx context.Context, key string) (orders.Settlement, error)
}

// Deduper remembers provider events that were already applied.
type Deduper interface {
	Seen(ctx context.Context, provider, eventID string) (bool, error)
	Mark(ctx context.Context, provider, eventID string) error
}

// Handler applies confirmed-payment events to orders. Signature checks and
// provider-specific payloads are handled upstream; an event reaching this
// topic is already trusted.
type Handler struct {
	Orders Settler
	Dedup  Deduper // optional
	Log    *zap.Logger
}

func (h *Handler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

// HandleMessage is installed as the kafka consumer handler.
func (h *Handler) HandleMessage(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		h.log().Warn("dropping undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventPaymentConfirmed {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.PaymentConfirmedPayload](env.Payload)
	if err != nil {
		h.log().Warn("dropping payment event", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	return h.Confirm(orders.WithTraceID(ctx, env.TraceID), p)
}

// Confirm settles the order referenced by p. Events for unknown or expired
// orders are logged and acknowledged; store failures are returned so the
// message is retried.
func (h *Handler) Confirm(ctx context.Context, p orders.PaymentConfirmedPayload) error {
	if p.Reference == "" {
		h.log().Warn("payment event without reference", zap.String("provider", p.Provider))
		return nil
	}
	log := h.log().With(
		zap.String("reference", p.Reference),
		zap.String("provider", p.Provider),
		zap.String("provider_event_id", p.ProviderEventID),
	)

	dedupable := h.Dedup != nil && p.ProviderEventID != ""
	if dedupable {
		if seen, err := h.Dedup.Seen(ctx, p.Provider, p.ProviderEventID); err == nil && seen {
			log.Debug("duplicate payment event")
			return nil
		}
	}

	st, err := h.Orders.Settle(ctx, p.Reference)
	switch {
	case err == nil:
		if p.Amount != 0 && p.Amount != st.Order.Amount {
			log.Warn("payment amount differs from order amount",
				zap.Int("paid", p.Amount), zap.Int("expected", st.Order.Amount))
		}
		log.Info("payment applied", zap.String("order_id", st.Order.ID), zap.Bool("already_paid", st.AlreadyPaid))
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, orders.ErrInvalidState):
		// needs manual review, retrying will not change the outcome
		log.Error("payment for unsettleable order", zap.Error(err))
	default:
		return err
	}

	if dedupable {
		if err := h.Dedup.Mark(ctx, p.Provider, p.ProviderEventID); err != nil {
			log.Warn("dedup mark failed", zap.Error(err))
		}
	}
	return nil
}
