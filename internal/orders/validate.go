package orders

import (
	"errors"
	"sort"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// normalizeRequest checks the pixel set and appearance and returns the IDs
// sorted ascending.
func normalizeRequest(ids []int, a Appearance, maxPixels int) ([]int, error) {
	if len(ids) == 0 {
		return nil, validationf("pixel_ids must not be empty")
	}
	if maxPixels > 0 && len(ids) > maxPixels {
		return nil, validationf("at most %d pixels per order, got %d", maxPixels, len(ids))
	}
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id < 0 || id >= TotalPixels {
			return nil, validationf("pixel id %d out of range [0, %d)", id, TotalPixels)
		}
		if _, dup := seen[id]; dup {
			return nil, validationf("duplicate pixel id %d", id)
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Ints(out)

	switch v := a.(type) {
	case Uniform:
		if err := validateStyle(v.Style); err != nil {
			return nil, err
		}
	case PerPixel:
		if len(v) != len(out) {
			return nil, validationf("individual_data must cover exactly the requested pixels")
		}
		for _, id := range sortedIDs(v) {
			if _, ok := seen[id]; !ok {
				return nil, validationf("individual_data has pixel %d which is not requested", id)
			}
			if err := validateStyle(v[id]); err != nil {
				return nil, err
			}
		}
	default:
		return nil, validationf("appearance is required")
	}
	return out, nil
}

func validateStyle(s Style) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return validationf("appearance: %v", err)
	}
	switch f := fields[0]; f.Field() {
	case "Color":
		return validationf("invalid color %q", s.Color)
	case "Link":
		return validationf("invalid link %q", s.Link)
	default:
		return validationf("appearance: %s failed %s", f.Field(), f.Tag())
	}
}
