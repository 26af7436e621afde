package orders

type OrderStatus string

const (
	StatusPending OrderStatus = "pending"
	StatusPaid    OrderStatus = "paid"
	StatusExpired OrderStatus = "expired"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusPending: {StatusPaid: true, StatusExpired: true},
	StatusPaid:    {},
	StatusExpired: {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

func (s OrderStatus) Terminal() bool {
	return s == StatusPaid || s == StatusExpired
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	_, ok := validNext[st]
	return st, ok
}

type PixelStatus string

const (
	PixelFree     PixelStatus = "free"
	PixelReserved PixelStatus = "reserved"
	PixelSold     PixelStatus = "sold"
)

func ParsePixelStatus(s string) (PixelStatus, bool) {
	switch st := PixelStatus(s); st {
	case PixelFree, PixelReserved, PixelSold:
		return st, true
	}
	return "", false
}
