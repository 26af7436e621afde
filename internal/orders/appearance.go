package orders

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Style is the color/link a sold pixel is rendered with.
type Style struct {
	Color string `json:"color" validate:"required,hexcolor"`
	Link  string `json:"link,omitempty" validate:"omitempty,http_url"`
}

// Appearance is either Uniform or PerPixel. Settlement switches on the
// concrete type; there is no third mode.
type Appearance interface {
	StyleFor(pixelID int) (Style, bool)
	isAppearance()
}

// Uniform applies one style to every pixel of the order.
type Uniform struct {
	Style
}

func (u Uniform) StyleFor(int) (Style, bool) { return u.Style, true }
func (Uniform) isAppearance() {}

// PerPixel carries one style per pixel ID and must cover the order exactly.
type PerPixel map[int]Style

func (p PerPixel) StyleFor(id int) (Style, bool) {
	s, ok := p[id]
	return s, ok
}
func (PerPixel) isAppearance() {}

// appearanceJSON is the wire/storage shape: color+link or individual_data.
type appearanceJSON struct {
	Color          *string          `json:"color,omitempty"`
	Link           *string          `json:"link,omitempty"`
	IndividualData map[string]Style `json:"individual_data,omitempty"`
}

func toAppearanceJSON(a Appearance) appearanceJSON {
	switch v := a.(type) {
	case Uniform:
		out := appearanceJSON{Color: strPtr(v.Color)}
		if v.Link != "" {
			out.Link = strPtr(v.Link)
		}
		return out
	case PerPixel:
		m := make(map[string]Style, len(v))
		for id, s := range v {
			m[strconv.Itoa(id)] = s
		}
		return appearanceJSON{IndividualData: m}
	}
	return appearanceJSON{}
}

// AppearanceColumns splits an appearance into the nullable color/link
// columns and the serialized individual_data column.
func AppearanceColumns(a Appearance) (color, link *string, individual []byte, err error) {
	j := toAppearanceJSON(a)
	if j.IndividualData != nil {
		individual, err = json.Marshal(j.IndividualData)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("encode individual_data: %w", err)
		}
		return nil, nil, individual, nil
	}
	return j.Color, j.Link, nil, nil
}

// AppearanceFromColumns is the inverse of AppearanceColumns.
func AppearanceFromColumns(color, link *string, individual []byte) (Appearance, error) {
	if len(individual) > 0 && string(individual) != "null" {
		var raw map[string]Style
		if err := json.Unmarshal(individual, &raw); err != nil {
			return nil, fmt.Errorf("decode individual_data: %w", err)
		}
		return perPixelFromKeys(raw)
	}
	u := Uniform{}
	if color != nil {
		u.Color = *color
	}
	if link != nil {
		u.Link = *link
	}
	return u, nil
}

func perPixelFromKeys(raw map[string]Style) (PerPixel, error) {
	pp := make(PerPixel, len(raw))
	for k, s := range raw {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("individual_data key %q: %w", k, err)
		}
		pp[id] = s
	}
	return pp, nil
}

// DecodeAppearance builds an Appearance from request fields. Exactly one
// of uniform (color/link) or individual must be present.
func DecodeAppearance(color, link string, individual map[string]Style) (Appearance, error) {
	if len(individual) > 0 {
		if color != "" || link != "" {
			return nil, validationf("appearance: color/link and individual_data are mutually exclusive")
		}
		pp, err := perPixelFromKeys(individual)
		if err != nil {
			return nil, validationf("appearance: %v", err)
		}
		return pp, nil
	}
	if color == "" {
		return nil, validationf("appearance: color is required")
	}
	return Uniform{Style{Color: color, Link: link}}, nil
}

type orderJSON struct {
	ID        string      `json:"id"`
	Reference string      `json:"reference"`
	PixelIDs  []int       `json:"pixel_ids"`
	Amount    int         `json:"amount"`
	Status    OrderStatus `json:"status"`
	appearanceJSON
	PaymentProofURL string     `json:"payment_proof_url,omitempty"`
	PaymentNote     string     `json:"payment_note,omitempty"`
	ExpiresAt       time.Time  `json:"expires_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
}

// MarshalJSON flattens the appearance into color/link or individual_data.
func (o Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(orderJSON{
		ID:              o.ID,
		Reference:       o.Reference,
		PixelIDs:        o.PixelIDs,
		Amount:          o.Amount,
		Status:          o.Status,
		appearanceJSON:  toAppearanceJSON(o.Appearance),
		PaymentProofURL: o.PaymentProofURL,
		PaymentNote:     o.PaymentNote,
		ExpiresAt:       o.ExpiresAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		PaidAt:          o.PaidAt,
	})
}

func sortedIDs(p PerPixel) []int {
	ids := make([]int, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func strPtr(s string) *string { return &s }
