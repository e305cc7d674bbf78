package inventory

import (
	"fmt"
	"time"

	"github.com/fleetline/fleetline/internal/shared"
)

// Assignment sources.
const (
	SourceDirect   = "direct"
	SourceTransfer = "transfer"
)

// Transfer types. A collect moves stock back to the main pool.
const (
	TransferTypeTransfer = "transfer"
	TransferTypeCollect  = "collect"
)

// Assignment is a quantity of a product handed to a driver, either from the
// main pool or from another driver.
type Assignment struct {
	ID        int64     `json:"id"`
	DriverID  int64     `json:"driver_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int64     `json:"quantity"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// StockTransfer records stock leaving a driver. ToDriverID is nil when the
// stock is collected back into the main pool.
type StockTransfer struct {
	ID           int64     `json:"id"`
	FromDriverID int64     `json:"from_driver_id"`
	ToDriverID   *int64    `json:"to_driver_id,omitempty"`
	ProductID    int64     `json:"product_id"`
	Quantity     int64     `json:"quantity"`
	TransferType string    `json:"transfer_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// Line is one row of a driver's derived inventory ledger.
// Remaining = Assigned - Sold - Transferred.
type Line struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Assigned    int64  `json:"assigned"`
	Sold        int64  `json:"sold"`
	Transferred int64  `json:"transferred"`
	Remaining   int64  `json:"remaining"`
}

// AssignInput moves stock from the main pool to a driver.
type AssignInput struct {
	DriverID  int64
	ProductID int64
	Quantity  int64
}

// TransferInput moves stock from one driver to another, or back to the main
// pool when ToDriverID is nil.
type TransferInput struct {
	FromDriverID int64
	ToDriverID   *int64
	ProductID    int64
	Quantity     int64
}

// InsufficientError reports a stock movement that would overdraw a ledger.
type InsufficientError struct {
	ProductID int64
	Requested int64
	Remaining int64
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient inventory: product %d has %d remaining, requested %d",
		e.ProductID, e.Remaining, e.Requested)
}

func (e *InsufficientError) Unwrap() error { return shared.ErrInsufficientInventory }
