package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RollbackOnError(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	o := &Order{ID: "o-1", Reference: "PIX-ROLLBK", PixelIDs: []int{1, 2}, Amount: 2,
		Status: StatusPending, Appearance: red(), ExpiresAt: now.Add(time.Minute), CreatedAt: now}
	boom := errors.New("boom")
	err := m.InTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertOrder(ctx, o))
		require.NoError(t, tx.ReservePixels(ctx, o.PixelIDs, o.ID))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = m.GetOrder(ctx, "PIX-ROLLBK")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, PixelFree, m.Pixel(1).Status)
	assert.Equal(t, PixelFree, m.Pixel(2).Status)
}

func TestMemoryStore_RollbackRestoresPriorState(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	o := &Order{ID: "o-1", Reference: "PIX-KEEPME", PixelIDs: []int{7}, Amount: 1,
		Status: StatusPending, Appearance: red(), ExpiresAt: now, CreatedAt: now}
	require.NoError(t, m.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		return tx.ReservePixels(ctx, o.PixelIDs, o.ID)
	}))

	err := m.InTx(ctx, func(tx Tx) error {
		if _, err := tx.TransitionOrder(ctx, o.ID, StatusPending, StatusPaid, now); err != nil {
			return err
		}
		if _, err := tx.SellPixels(ctx, o.ID, map[int]Style{7: {Color: "#000"}}); err != nil {
			return err
		}
		if err := tx.DeleteOrder(ctx, o.ID); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	got, err := m.GetOrder(ctx, "pix-keepme")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Nil(t, got.PaidAt)
	p := m.Pixel(7)
	assert.Equal(t, PixelReserved, p.Status)
	assert.Nil(t, p.Color)
}

func TestMemoryStore_ListsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.reserve(t, 1)
	b := f.reserve(t, 2) // same timestamp, later insert
	f.clock.Advance(time.Second)
	c := f.reserve(t, 3)
	_, err := f.svc.Settle(ctx, b.OrderID)
	require.NoError(t, err)

	all, err := f.store.ListOrders(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{c.OrderID, b.OrderID, a.OrderID},
		[]string{all[0].ID, all[1].ID, all[2].ID})

	paid, err := f.store.ListOrders(ctx, StatusPaid)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, b.OrderID, paid[0].ID)
}

func TestMemoryStore_ExpiredOrderIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.reserve(t, 1)
	f.clock.Advance(time.Minute)
	second := f.reserve(t, 2)

	start := f.clock.Now()
	ids, err := f.store.ExpiredOrderIDs(ctx, start.Add(20*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{first.OrderID}, ids)

	ids, err = f.store.ExpiredOrderIDs(ctx, start.Add(time.Hour), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{first.OrderID}, ids)

	ids, err = f.store.ExpiredOrderIDs(ctx, start.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{first.OrderID, second.OrderID}, ids)
}
