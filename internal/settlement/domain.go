package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the boss payment workflow state.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentApproved  PaymentStatus = "APPROVED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentApproved, PaymentCancelled:
		return true
	}
	return false
}

// DirectPayment is a signed adjustment to a driver's earnings outside the
// per-order salary: bonuses, deductions for damages, fuel advances. Positive
// amounts pay the driver, negative amounts deduct.
type DirectPayment struct {
	ID          int64           `json:"id"`
	DriverID    int64           `json:"driver_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentType string          `json:"payment_type,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	CreatedBy   int64           `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// BossPayment is a driver's remittance of collected cash to the owner. Only
// approved payments reduce the driver's holding amount.
type BossPayment struct {
	ID         int64           `json:"id"`
	DriverID   int64           `json:"driver_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	Status     PaymentStatus   `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	ApprovedAt *time.Time      `json:"approved_at,omitempty"`
}

// EarningsSummary is the settlement picture for one driver. Scope describes
// the window the sales figures cover; HoldingAmount is always the all-time
// figure because cash on hand does not reset with reporting periods.
type EarningsSummary struct {
	DriverID             int64           `json:"driver_id"`
	Scope                string          `json:"scope"`
	TotalSales           decimal.Decimal `json:"total_sales"`
	PaidOrders           int             `json:"paid_orders"`
	Salary               decimal.Decimal `json:"salary"`
	DirectPayments       decimal.Decimal `json:"direct_payments"`
	TotalDriverEarnings  decimal.Decimal `json:"total_driver_earnings"`
	BossCollection       decimal.Decimal `json:"boss_collection"`
	ApprovedBossPayments decimal.Decimal `json:"approved_boss_payments"`
	HoldingAmount        decimal.Decimal `json:"holding_amount"`
	GeneratedAt          time.Time       `json:"generated_at"`
}

// ScopeAllTime marks a summary covering the driver's full history.
const ScopeAllTime = "all"
