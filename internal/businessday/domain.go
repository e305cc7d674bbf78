package businessday

import (
	"fmt"
	"time"

	"github.com/fleetline/fleetline/internal/shared"
)

// BusinessDay is an explicit open/close session orders are tagged with, so a
// shift running past midnight still reports as a single day.
type BusinessDay struct {
	ID           int64      `json:"id"`
	Date         time.Time  `json:"date"`
	OpenedAt     time.Time  `json:"opened_at"`
	OpenedByName string     `json:"opened_by_name"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

// IsOpen reports whether the day is still active.
func (d BusinessDay) IsOpen() bool {
	return d.ClosedAt == nil
}

// OpenInput carries the fields needed to open a new day.
type OpenInput struct {
	Date         time.Time
	OpenedByName string
}

// ErrDayAlreadyOpen occurs when opening while another day is active. At most
// one business day may be open system-wide.
var ErrDayAlreadyOpen = fmt.Errorf("%w: a business day is already open", shared.ErrInvalidState)

// ErrDayAlreadyClosed occurs when closing a day twice.
var ErrDayAlreadyClosed = fmt.Errorf("%w: business day is already closed", shared.ErrInvalidState)
