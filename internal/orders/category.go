package orders

import (
	"fmt"

	"github.com/fleetline/fleetline/internal/shared"
)

// Order categories. Q, H and Oz map each ordered unit to a fixed number of
// inventory units; CategoryPieces deducts the raw count.
const (
	CategoryQ      = "Q"
	CategoryH      = "H"
	CategoryOz     = "Oz"
	CategoryPieces = "Quantity by pcs"
)

var categoryUnits = map[string]int64{
	CategoryQ:  1,
	CategoryH:  2,
	CategoryOz: 4,
}

// ResolveUnits converts an ordered (category, quantity) pair into the number
// of inventory units it consumes.
func ResolveUnits(category string, quantity int64) (int64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if category == CategoryPieces {
		return quantity, nil
	}
	units, ok := categoryUnits[category]
	if !ok {
		return 0, fmt.Errorf("%w: unknown category %q", shared.ErrValidation, category)
	}
	return units * quantity, nil
}
