package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderReserved    = "OrderReserved"
	EventOrderPaid        = "OrderPaid"
	EventOrderExpired     = "OrderExpired"
	EventOrderCancelled   = "OrderCancelled"
	EventPaymentConfirmed = "PaymentConfirmed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// Publisher delivers order lifecycle events. Publishing is best effort: the
// store is the source of truth and a lost event never undoes a transition.
type Publisher interface {
	PublishEvent(ctx context.Context, key string, env Envelope) error
}

func NewEnvelope(eventType, producer, orderID string, payload any, at time.Time) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    at.UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}

// ---- payloads ----

type OrderReservedPayload struct {
	OrderID   string    `json:"order_id"`
	Reference string    `json:"reference"`
	PixelIDs  []int     `json:"pixel_ids"`
	Amount    int       `json:"amount"`
	ExpiresAt time.Time `json:"expires_at"`
}

type OrderPaidPayload struct {
	OrderID   string `json:"order_id"`
	Reference string `json:"reference"`
	Amount    int    `json:"amount"`
	Pixels    int    `json:"pixels"`
}

type OrderExpiredPayload struct {
	OrderID  string `json:"order_id"`
	Released int    `json:"released"`
}

type OrderCancelledPayload struct {
	OrderID   string      `json:"order_id"`
	Reference string      `json:"reference"`
	Status    OrderStatus `json:"status"`
	Released  int         `json:"released"`
}

// PaymentConfirmedPayload is produced by the payment side once a provider
// has verified a payment; it is correlated to an order by reference.
type PaymentConfirmedPayload struct {
	Reference       string `json:"reference"`
	Provider        string `json:"provider"`
	ProviderEventID string `json:"provider_event_id"`
	Amount          int    `json:"amount"`
}
