package orders

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	entries map[string][]byte
	hits    int
}

func (c *mapCache) Get(_ context.Context, key string, dst any) (bool, error) {
	b, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(b, dst)
}

func (c *mapCache) Set(_ context.Context, key string, v any, _ time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.entries[key] = b
	return nil
}

func TestQuery_PixelsAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := &Query{Store: f.store}

	sold := f.reserve(t, 3, 4)
	f.reserve(t, 10)
	_, err := f.svc.Settle(ctx, sold.OrderID)
	require.NoError(t, err)

	all, err := q.Pixels(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{3, 4, 10}, []int{all[0].ID, all[1].ID, all[2].ID})

	reserved, err := q.Pixels(ctx, PixelReserved)
	require.NoError(t, err)
	require.Len(t, reserved, 1)
	assert.Equal(t, 10, reserved[0].ID)
	x, y := reserved[0].Coords()
	assert.Equal(t, [2]int{10, 0}, [2]int{x, y})

	_, err = q.Pixels(ctx, PixelFree)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	st, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Free: TotalPixels - 3, Reserved: 1, Sold: 2}, st)
}

func TestQuery_StatsServedFromCacheWithinTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cache := &mapCache{entries: map[string][]byte{}}
	q := &Query{Store: f.store, Cache: cache, CacheTTL: 5 * time.Second}

	first, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, TotalPixels, first.Free)

	f.reserve(t, 1)
	cached, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, cached, "stale by at most the cache TTL")
	assert.Equal(t, 1, cache.hits)

	// no TTL, no cache
	q.CacheTTL = 0
	fresh, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.Reserved)
}

func TestQuery_Revenue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := &Query{Store: f.store, UnitPrice: decimal.RequireFromString("0.25"), Currency: "USD"}

	a := f.reserve(t, 1, 2, 3)
	b := f.reserve(t, 4, 5)
	f.reserve(t, 6)
	for _, id := range []string{a.OrderID, b.OrderID} {
		_, err := f.svc.Settle(ctx, id)
		require.NoError(t, err)
	}

	rev, err := q.Revenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rev.PaidOrders)
	assert.Equal(t, 5, rev.Units)
	assert.True(t, rev.Total.Equal(decimal.RequireFromString("1.25")), rev.Total.String())
	assert.Equal(t, "USD", rev.Currency)

	orders, err := q.Orders(ctx, StatusPending)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, []int{6}, orders[0].PixelIDs)
}
