package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-pixel-market.git/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSettler struct {
	mock.Mock
}

func (m *mockSettler) Settle(ctx context.Context, key string) (orders.Settlement, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(orders.Settlement), args.Error(1)
}

type mockDedup struct {
	mock.Mock
}

func (m *mockDedup) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	args := m.Called(ctx, provider, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *mockDedup) Mark(ctx context.Context, provider, eventID string) error {
	return m.Called(ctx, provider, eventID).Error(0)
}

func paymentMessage(t *testing.T, eventType string, p orders.PaymentConfirmedPayload) kafkago.Message {
	t.Helper()
	env, err := orders.NewEnvelope(eventType, "gateway", "", p, time.Now())
	require.NoError(t, err)
	env.TraceID = "trace-1"
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Value: b}
}

var confirmed = orders.PaymentConfirmedPayload{
	Reference: "PIX-ABC123", Provider: "stripe", ProviderEventID: "evt_1", Amount: 3,
}

func TestHandleMessage_SettlesAndMarks(t *testing.T) {
	settler := &mockSettler{}
	dedup := &mockDedup{}
	h := &Handler{Orders: settler, Dedup: dedup}

	dedup.On("Seen", mock.Anything, "stripe", "evt_1").Return(false, nil)
	settler.On("Settle", mock.MatchedBy(func(ctx context.Context) bool {
		return orders.TraceID(ctx) == "trace-1"
	}), "PIX-ABC123").Return(orders.Settlement{Order: &orders.Order{ID: "o-1", Amount: 3}}, nil)
	dedup.On("Mark", mock.Anything, "stripe", "evt_1").Return(nil)

	err := h.HandleMessage(context.Background(), paymentMessage(t, orders.EventPaymentConfirmed, confirmed))
	require.NoError(t, err)
	settler.AssertExpectations(t)
	dedup.AssertExpectations(t)
}

func TestHandleMessage_SkipsDuplicates(t *testing.T) {
	settler := &mockSettler{}
	dedup := &mockDedup{}
	h := &Handler{Orders: settler, Dedup: dedup}

	dedup.On("Seen", mock.Anything, "stripe", "evt_1").Return(true, nil)

	require.NoError(t, h.HandleMessage(context.Background(), paymentMessage(t, orders.EventPaymentConfirmed, confirmed)))
	settler.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything)
	dedup.AssertNotCalled(t, "Mark", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleMessage_IgnoresForeignAndBrokenMessages(t *testing.T) {
	settler := &mockSettler{}
	h := &Handler{Orders: settler}

	require.NoError(t, h.HandleMessage(context.Background(), kafkago.Message{Value: []byte("{nope")}))
	require.NoError(t, h.HandleMessage(context.Background(), paymentMessage(t, orders.EventOrderPaid, confirmed)))
	require.NoError(t, h.HandleMessage(context.Background(), paymentMessage(t, orders.EventPaymentConfirmed, orders.PaymentConfirmedPayload{})))
	settler.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything)
}

func TestConfirm_TerminalErrorsAreAcknowledged(t *testing.T) {
	for _, settleErr := range []error{orders.ErrNotFound, orders.ErrInvalidState} {
		settler := &mockSettler{}
		dedup := &mockDedup{}
		h := &Handler{Orders: settler, Dedup: dedup}

		dedup.On("Seen", mock.Anything, "stripe", "evt_1").Return(false, nil)
		settler.On("Settle", mock.Anything, "PIX-ABC123").Return(orders.Settlement{}, settleErr)
		dedup.On("Mark", mock.Anything, "stripe", "evt_1").Return(nil)

		assert.NoError(t, h.Confirm(context.Background(), confirmed))
		dedup.AssertExpectations(t)
	}
}

func TestConfirm_StoreFailureIsRetried(t *testing.T) {
	settler := &mockSettler{}
	dedup := &mockDedup{}
	h := &Handler{Orders: settler, Dedup: dedup}

	storeErr := &orders.StoreError{Op: "settle", Err: errors.New("timeout")}
	dedup.On("Seen", mock.Anything, "stripe", "evt_1").Return(false, nil)
	settler.On("Settle", mock.Anything, "PIX-ABC123").Return(orders.Settlement{}, storeErr)

	err := h.Confirm(context.Background(), confirmed)
	assert.ErrorIs(t, err, storeErr)
	dedup.AssertNotCalled(t, "Mark", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirm_AgainstRealService(t *testing.T) {
	store := orders.NewMemoryStore()
	svc := &orders.Service{Store: store}
	ctx := context.Background()

	res, err := svc.CreateOrder(ctx, []int{1, 2, 3}, orders.Uniform{Style: orders.Style{Color: "#123456"}})
	require.NoError(t, err)

	h := &Handler{Orders: svc}
	p := confirmed
	p.Reference = res.Reference
	require.NoError(t, h.Confirm(ctx, p))
	require.NoError(t, h.Confirm(ctx, p), "redelivery is harmless")

	o, err := svc.Order(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, o.Status)
	assert.Equal(t, orders.PixelSold, store.Pixel(2).Status)
}
