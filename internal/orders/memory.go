package orders

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. Transactions are serialised by one
// mutex and undone from a journal when fn fails. Only non-free pixels are
// kept; an absent pixel is free.
type MemoryStore struct {
	mu     sync.Mutex
	pixels map[int]Pixel
	orders map[string]*memOrder
	byRef  map[string]string
	seq    int64
}

type memOrder struct {
	Order
	seq int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pixels: make(map[int]Pixel),
		orders: make(map[string]*memOrder),
		byRef:  make(map[string]string),
	}
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		m:         m,
		oldPixels: make(map[int]*Pixel),
		oldOrders: make(map[string]*memOrder),
	}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (m *MemoryStore) lookup(key string) (*memOrder, bool) {
	if IsReference(key) {
		id, ok := m.byRef[strings.ToUpper(key)]
		if !ok {
			return nil, false
		}
		key = id
	}
	o, ok := m.orders[key]
	return o, ok
}

func (m *MemoryStore) GetOrder(ctx context.Context, key string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.lookup(key)
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(&o.Order), nil
}

func (m *MemoryStore) ExpiredOrderIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*memOrder
	for _, o := range m.orders {
		if o.Status == StatusPending && o.ExpiresAt.Before(now) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	ids := make([]string, len(out))
	for i, o := range out {
		ids[i] = o.ID
	}
	return ids, nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, status OrderStatus) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*memOrder
	for _, o := range m.orders {
		if status == "" || o.Status == status {
			list = append(list, o)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].seq > list[j].seq
	})
	out := make([]Order, len(list))
	for i, o := range list {
		out[i] = *cloneOrder(&o.Order)
	}
	return out, nil
}

func (m *MemoryStore) ListPixels(ctx context.Context, status PixelStatus) ([]Pixel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Pixel, 0, len(m.pixels))
	for _, p := range m.pixels {
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CountPixels(ctx context.Context) (reserved, sold int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pixels {
		switch p.Status {
		case PixelReserved:
			reserved++
		case PixelSold:
			sold++
		}
	}
	return reserved, sold, nil
}

func (m *MemoryStore) PaidTotals(ctx context.Context) (orders, units int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.Status == StatusPaid {
			orders++
			units += o.Amount
		}
	}
	return orders, units, nil
}

// Pixel returns one pixel's current state.
func (m *MemoryStore) Pixel(id int) Pixel {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pixels[id]; ok {
		return p
	}
	return Pixel{ID: id, Status: PixelFree}
}

type memTx struct {
	m *MemoryStore
	// first-touch snapshots; nil means the row did not exist
	oldPixels map[int]*Pixel
	oldOrders map[string]*memOrder
}

func (tx *memTx) touchPixel(id int) {
	if _, seen := tx.oldPixels[id]; seen {
		return
	}
	if p, ok := tx.m.pixels[id]; ok {
		tx.oldPixels[id] = &p
	} else {
		tx.oldPixels[id] = nil
	}
}

func (tx *memTx) touchOrder(id string) {
	if _, seen := tx.oldOrders[id]; seen {
		return
	}
	if o, ok := tx.m.orders[id]; ok {
		cp := &memOrder{Order: *cloneOrder(&o.Order), seq: o.seq}
		tx.oldOrders[id] = cp
	} else {
		tx.oldOrders[id] = nil
	}
}

func (tx *memTx) rollback() {
	m := tx.m
	for id, p := range tx.oldPixels {
		if p == nil {
			delete(m.pixels, id)
		} else {
			m.pixels[id] = *p
		}
	}
	for id, o := range tx.oldOrders {
		if cur, ok := m.orders[id]; ok {
			delete(m.byRef, cur.Reference)
		}
		if o == nil {
			delete(m.orders, id)
			continue
		}
		m.orders[id] = o
		m.byRef[o.Reference] = id
	}
}

func (tx *memTx) LockPixels(ctx context.Context, ids []int) ([]Pixel, error) {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	out := make([]Pixel, len(sorted))
	for i, id := range sorted {
		if p, ok := tx.m.pixels[id]; ok {
			out[i] = p
		} else {
			out[i] = Pixel{ID: id, Status: PixelFree}
		}
	}
	return out, nil
}

func (tx *memTx) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	_, ok := tx.m.byRef[strings.ToUpper(ref)]
	return ok, nil
}

func (tx *memTx) InsertOrder(ctx context.Context, o *Order) error {
	if _, ok := tx.m.orders[o.ID]; ok {
		return errDuplicate
	}
	if _, ok := tx.m.byRef[o.Reference]; ok {
		return errDuplicate
	}
	tx.touchOrder(o.ID)
	tx.m.seq++
	tx.m.orders[o.ID] = &memOrder{Order: *cloneOrder(o), seq: tx.m.seq}
	tx.m.byRef[o.Reference] = o.ID
	return nil
}

func (tx *memTx) ReservePixels(ctx context.Context, ids []int, orderID string) error {
	for _, id := range ids {
		tx.touchPixel(id)
		oid := orderID
		tx.m.pixels[id] = Pixel{ID: id, Status: PixelReserved, OrderID: &oid}
	}
	return nil
}

func (tx *memTx) LockOrder(ctx context.Context, key string) (*Order, error) {
	o, ok := tx.m.lookup(key)
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(&o.Order), nil
}

func (tx *memTx) TransitionOrder(ctx context.Context, orderID string, from, to OrderStatus, at time.Time) (bool, error) {
	o, ok := tx.m.orders[orderID]
	if !ok || o.Status != from || !CanTransition(from, to) {
		return false, nil
	}
	tx.touchOrder(orderID)
	o.Status = to
	o.UpdatedAt = at
	if to == StatusPaid {
		paid := at
		o.PaidAt = &paid
	}
	return true, nil
}

func (tx *memTx) ExpireOrder(ctx context.Context, orderID string, now time.Time) (bool, error) {
	o, ok := tx.m.orders[orderID]
	if !ok || o.Status != StatusPending || !o.ExpiresAt.Before(now) {
		return false, nil
	}
	return tx.TransitionOrder(ctx, orderID, StatusPending, StatusExpired, now)
}

func (tx *memTx) SellPixels(ctx context.Context, orderID string, styles map[int]Style) (int, error) {
	n := 0
	for id, st := range styles {
		p, ok := tx.m.pixels[id]
		if !ok || p.Status != PixelReserved || p.OrderID == nil || *p.OrderID != orderID {
			continue
		}
		tx.touchPixel(id)
		p.Status = PixelSold
		p.Color = strPtr(st.Color)
		p.Link = nil
		if st.Link != "" {
			p.Link = strPtr(st.Link)
		}
		tx.m.pixels[id] = p
		n++
	}
	return n, nil
}

func (tx *memTx) ReleasePixels(ctx context.Context, orderID string) (int, error) {
	n := 0
	for id, p := range tx.m.pixels {
		if p.OrderID == nil || *p.OrderID != orderID {
			continue
		}
		tx.touchPixel(id)
		delete(tx.m.pixels, id)
		n++
	}
	return n, nil
}

func (tx *memTx) SetPaymentProof(ctx context.Context, orderID, url, note string, at time.Time) error {
	o, ok := tx.m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	tx.touchOrder(orderID)
	o.PaymentProofURL = url
	o.PaymentNote = note
	o.UpdatedAt = at
	return nil
}

func (tx *memTx) DeleteOrder(ctx context.Context, orderID string) error {
	o, ok := tx.m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	tx.touchOrder(orderID)
	delete(tx.m.byRef, o.Reference)
	delete(tx.m.orders, orderID)
	return nil
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.PixelIDs = append([]int(nil), o.PixelIDs...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		cp.PaidAt = &t
	}
	return &cp
}
