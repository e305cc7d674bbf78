package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanEdit reports whether the order contents may still change.
func (s Status) CanEdit() bool { return s == StatusPending }

// CanCancel reports whether the order may transition to CANCELLED. Completed
// and cancelled orders are terminal; only deletion removes them.
func (s Status) CanCancel() bool { return s == StatusPending }

// Delivery methods. Paid and Delivery earn the driver a salary; Free and
// Pick up do not.
const (
	MethodPaid     = "Paid"
	MethodDelivery = "Delivery"
	MethodFree     = "Free"
	MethodPickUp   = "Pick up"
)

// ValidMethod reports whether m is a known delivery method.
func ValidMethod(m string) bool {
	switch m {
	case MethodPaid, MethodDelivery, MethodFree, MethodPickUp:
		return true
	}
	return false
}

// MethodPaysDriver reports whether the delivery method earns the driver a
// per-order salary once the order settles.
func MethodPaysDriver(m string) bool {
	return m == MethodPaid || m == MethodDelivery
}

// DefaultDriverSalary applies when an order carries no explicit salary.
var DefaultDriverSalary = decimal.NewFromInt(30)

// Order is a customer order assigned to one driver within a business day.
type Order struct {
	ID             int64           `json:"id"`
	DriverID       int64           `json:"driver_id"`
	SalesRepID     int64           `json:"sales_rep_id,omitempty"`
	BusinessDayID  int64           `json:"business_day_id"`
	CustomerName   string          `json:"customer_name"`
	CustomerPhone  string          `json:"customer_phone"`
	Address        string          `json:"address"`
	Description    string          `json:"description,omitempty"`
	DeliveryMethod string          `json:"delivery_method"`
	Status         Status          `json:"status"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	DriverSalary   decimal.Decimal `json:"driver_salary"`
	Note           string          `json:"note,omitempty"`
	RequestID      *uuid.UUID      `json:"request_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	LineItems      []LineItem      `json:"line_items"`
}

// LineItem is one product position on an order. Quantity is what the
// customer ordered in the given category; ActualQuantity is the derived
// inventory unit count deducted from the driver's ledger. Free gifts carry
// no price but still consume inventory.
type LineItem struct {
	ID             int64  `json:"id"`
	OrderID        int64  `json:"order_id"`
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name"`
	Category       string `json:"category"`
	Quantity       int64  `json:"quantity"`
	ActualQuantity int64  `json:"actual_quantity"`
	IsFreeGift     bool   `json:"is_free_gift"`
}
