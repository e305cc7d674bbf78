package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItemInput is one product position on an incoming order.
type LineItemInput struct {
	ProductID  int64
	Category   string
	Quantity   int64
	IsFreeGift bool
}

// CreateOrderInput carries the fields needed to place an order. RequestID is
// an optional client-supplied idempotency token.
type CreateOrderInput struct {
	DriverID       int64
	SalesRepID     int64
	CustomerName   string
	CustomerPhone  string
	Address        string
	Description    string
	DeliveryMethod string
	TotalPrice     decimal.Decimal
	DriverSalary   *decimal.Decimal
	Note           string
	RequestID      *uuid.UUID
	Items          []LineItemInput
}

// UpdateOrderInput edits a pending order. A non-nil Status that differs from
// the stored status is rejected; status moves go through Complete and Cancel.
type UpdateOrderInput struct {
	DriverID       int64
	CustomerName   string
	CustomerPhone  string
	Address        string
	Description    string
	DeliveryMethod string
	TotalPrice     decimal.Decimal
	DriverSalary   *decimal.Decimal
	Note           string
	Status         *Status
	Items          []LineItemInput
}

// Filter narrows order listings.
type Filter struct {
	DriverID      *int64
	SalesRepID    *int64
	BusinessDayID *int64
	Status        *Status
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}
