package orders

import (
	"context"
	"strings"
	"time"
)

// Store is the shared, durable state of pixels and orders. All coordination
// between concurrent service instances goes through it: InTx must run fn
// atomically (all writes commit or none do) and isolate it from other
// transactions touching the same pixel or order rows.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetOrder(ctx context.Context, key string) (*Order, error)
	ExpiredOrderIDs(ctx context.Context, now time.Time, limit int) ([]string, error)
	ListOrders(ctx context.Context, status OrderStatus) ([]Order, error)
	ListPixels(ctx context.Context, status PixelStatus) ([]Pixel, error)
	CountPixels(ctx context.Context) (reserved, sold int, err error)
	PaidTotals(ctx context.Context) (orders, units int, err error)
}

// Tx is the set of operations available inside InTx. Lock* methods hold the
// returned rows until the transaction ends.
type Tx interface {
	// LockPixels returns the requested pixels in ascending ID order.
	LockPixels(ctx context.Context, ids []int) ([]Pixel, error)
	ReferenceExists(ctx context.Context, ref string) (bool, error)
	InsertOrder(ctx context.Context, o *Order) error
	ReservePixels(ctx context.Context, ids []int, orderID string) error

	// LockOrder finds an order by ID or reference; ErrNotFound if absent.
	LockOrder(ctx context.Context, key string) (*Order, error)
	// TransitionOrder applies from->to only if the current status is from.
	TransitionOrder(ctx context.Context, orderID string, from, to OrderStatus, at time.Time) (bool, error)
	// ExpireOrder moves a pending order whose deadline is before now to expired.
	ExpireOrder(ctx context.Context, orderID string, now time.Time) (bool, error)
	// SellPixels marks the order's reserved pixels sold with their styles.
	// Pixels already sold are left untouched.
	SellPixels(ctx context.Context, orderID string, styles map[int]Style) (int, error)
	// ReleasePixels frees every pixel that references the order.
	ReleasePixels(ctx context.Context, orderID string) (int, error)
	SetPaymentProof(ctx context.Context, orderID, url, note string, at time.Time) error
	DeleteOrder(ctx context.Context, orderID string) error
}

const ReferencePrefix = "PIX-"

// IsReference tells a human reference apart from an order ID.
func IsReference(key string) bool {
	return strings.HasPrefix(strings.ToUpper(key), ReferencePrefix)
}
