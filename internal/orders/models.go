package orders

import "time"

const (
	// GridWidth x GridHeight pixels exist from initialization, all free.
	GridWidth   = 1000
	GridHeight  = 1000
	TotalPixels = GridWidth * GridHeight
)

type Pixel struct {
	ID      int         `json:"id"`
	Status  PixelStatus `json:"status"`
	Color   *string     `json:"color,omitempty"`
	Link    *string     `json:"link,omitempty"`
	OrderID *string     `json:"order_id,omitempty"`
}

// Coords returns the grid position of the pixel.
func (p Pixel) Coords() (x, y int) { return p.ID % GridWidth, p.ID / GridWidth }

type Order struct {
	ID              string      `json:"id"`
	Reference       string      `json:"reference"`
	PixelIDs        []int       `json:"pixel_ids"`
	Amount          int         `json:"amount"`
	Status          OrderStatus `json:"status"`
	Appearance      Appearance  `json:"-"`
	PaymentProofURL string      `json:"payment_proof_url,omitempty"`
	PaymentNote     string      `json:"payment_note,omitempty"`
	ExpiresAt       time.Time   `json:"expires_at"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	PaidAt          *time.Time  `json:"paid_at,omitempty"`
}

// Reservation is what a buyer gets back from CreateOrder.
type Reservation struct {
	OrderID   string    `json:"order_id"`
	Reference string    `json:"reference"`
	Amount    int       `json:"amount"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Settlement struct {
	Order       *Order `json:"order"`
	AlreadyPaid bool   `json:"already_paid"`
}
