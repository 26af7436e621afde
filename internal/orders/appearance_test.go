package orders

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppearanceColumns_Uniform(t *testing.T) {
	color, link, individual, err := AppearanceColumns(Uniform{Style{Color: "#abc"}})
	require.NoError(t, err)
	require.NotNil(t, color)
	assert.Equal(t, "#abc", *color)
	assert.Nil(t, link, "empty link is stored as NULL")
	assert.Nil(t, individual)

	back, err := AppearanceFromColumns(color, link, individual)
	require.NoError(t, err)
	assert.Equal(t, Uniform{Style{Color: "#abc"}}, back)
}

func TestAppearanceColumns_PerPixel(t *testing.T) {
	in := PerPixel{
		3: {Color: "#111111", Link: "https://x.io"},
		4: {Color: "#222222"},
	}
	color, link, individual, err := AppearanceColumns(in)
	require.NoError(t, err)
	assert.Nil(t, color)
	assert.Nil(t, link)
	assert.JSONEq(t, `{"3":{"color":"#111111","link":"https://x.io"},"4":{"color":"#222222"}}`, string(individual))

	back, err := AppearanceFromColumns(nil, nil, individual)
	require.NoError(t, err)
	assert.Equal(t, in, back)
}

func TestDecodeAppearance(t *testing.T) {
	var ve *ValidationError

	_, err := DecodeAppearance("#fff", "", map[string]Style{"1": {Color: "#000"}})
	assert.ErrorAs(t, err, &ve, "both modes at once")

	_, err = DecodeAppearance("", "https://a.com", nil)
	assert.ErrorAs(t, err, &ve, "link without color")

	_, err = DecodeAppearance("", "", map[string]Style{"one": {Color: "#000"}})
	assert.ErrorAs(t, err, &ve, "non-numeric pixel key")

	a, err := DecodeAppearance("", "", map[string]Style{"12": {Color: "#000"}})
	require.NoError(t, err)
	assert.Equal(t, PerPixel{12: {Color: "#000"}}, a)
}

func TestOrderJSON_FlattensAppearance(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	o := Order{
		ID: "o-1", Reference: "PIX-ABCDEF", PixelIDs: []int{5}, Amount: 1, Status: StatusPending,
		Appearance: PerPixel{5: {Color: "#fff"}},
		ExpiresAt:  at.Add(20 * time.Minute), CreatedAt: at, UpdatedAt: at,
	}
	b, err := json.Marshal(o)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, map[string]any{"5": map[string]any{"color": "#fff"}}, got["individual_data"])
	assert.NotContains(t, got, "color")
	assert.NotContains(t, got, "paid_at")
	assert.Equal(t, "pending", got["status"])
}

func TestNewReference(t *testing.T) {
	re := regexp.MustCompile(`^PIX-[A-HJ-NP-Z2-9]{6}$`)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		ref, err := NewReference()
		require.NoError(t, err)
		assert.Regexp(t, re, ref)
		assert.True(t, IsReference(ref))
		seen[ref] = true
	}
	assert.Greater(t, len(seen), 190)
	assert.False(t, IsReference("0b5f6c3e-1111-4d8e-9a70-5d1cbd0ea3f0"))
}

func TestOrderStatusTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusPaid))
	assert.True(t, CanTransition(StatusPending, StatusExpired))
	assert.False(t, CanTransition(StatusPaid, StatusExpired))
	assert.False(t, CanTransition(StatusExpired, StatusPaid))
	assert.False(t, CanTransition(StatusPaid, StatusPending))

	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusPaid.Terminal())
	assert.True(t, StatusExpired.Terminal())
}
