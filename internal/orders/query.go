package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-pixel-market.git/internal/monitoring"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	cacheKeyStats  = "stats"
	cacheKeyPixels = "pixels:%s"
)

// Cache is a short-lived read cache for query results. Entries may be stale
// for up to their TTL.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
}

type Stats struct {
	Free     int `json:"free"`
	Reserved int `json:"reserved"`
	Sold     int `json:"sold"`
}

type Revenue struct {
	PaidOrders int             `json:"paid_orders"`
	Units      int             `json:"units"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
}

// Query is the read-only side: pixel map, counts, order listings, revenue.
type Query struct {
	Store    Store
	Cache    Cache         // optional
	CacheTTL time.Duration // zero disables caching
	Monitor  *monitoring.Monitor
	Log      *zap.Logger

	UnitPrice decimal.Decimal
	Currency  string
}

func (q *Query) log() *zap.Logger {
	if q.Log == nil {
		return zap.NewNop()
	}
	return q.Log
}

func (q *Query) cached(ctx context.Context, key string, dst any, load func() error) error {
	if q.Cache == nil || q.CacheTTL <= 0 {
		return load()
	}
	if hit, err := q.Cache.Get(ctx, key, dst); err == nil && hit {
		return nil
	} else if err != nil {
		q.log().Debug("query cache get", zap.String("key", key), zap.Error(err))
	}
	if err := load(); err != nil {
		return err
	}
	if err := q.Cache.Set(ctx, key, dst, q.CacheTTL); err != nil {
		q.log().Debug("query cache set", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// Pixels lists non-free pixels, optionally only those with status.
func (q *Query) Pixels(ctx context.Context, status PixelStatus) ([]Pixel, error) {
	if status == PixelFree {
		return nil, validationf("free pixels are not listed")
	}
	key := fmt.Sprintf(cacheKeyPixels, status)
	if status == "" {
		key = fmt.Sprintf(cacheKeyPixels, "all")
	}
	var out []Pixel
	err := q.cached(ctx, key, &out, func() error {
		var err error
		out, err = q.Store.ListPixels(ctx, status)
		return err
	})
	if err != nil {
		return nil, storeErr("list pixels", err)
	}
	return out, nil
}

// Stats counts pixels by status; the three always sum to TotalPixels.
func (q *Query) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := q.cached(ctx, cacheKeyStats, &st, func() error {
		reserved, sold, err := q.Store.CountPixels(ctx)
		if err != nil {
			return err
		}
		st = Stats{Free: TotalPixels - reserved - sold, Reserved: reserved, Sold: sold}
		return nil
	})
	if err != nil {
		return Stats{}, storeErr("count pixels", err)
	}
	q.Monitor.SetPixelStates(st.Free, st.Reserved, st.Sold)
	return st, nil
}

// Orders lists orders newest first, optionally filtered by status.
func (q *Query) Orders(ctx context.Context, status OrderStatus) ([]Order, error) {
	out, err := q.Store.ListOrders(ctx, status)
	if err != nil {
		return nil, storeErr("list orders", err)
	}
	return out, nil
}

func (q *Query) Revenue(ctx context.Context) (Revenue, error) {
	paid, units, err := q.Store.PaidTotals(ctx)
	if err != nil {
		return Revenue{}, storeErr("paid totals", err)
	}
	price := q.UnitPrice
	if price.IsZero() {
		price = decimal.NewFromInt(1)
	}
	return Revenue{
		PaidOrders: paid,
		Units:      units,
		UnitPrice:  price,
		Total:      price.Mul(decimal.NewFromInt(int64(units))),
		Currency:   q.Currency,
	}, nil
}
