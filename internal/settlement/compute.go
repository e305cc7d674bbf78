package settlement

import "github.com/shopspring/decimal"

// Order statuses and delivery methods as they appear on order facts. Kept as
// plain strings so this package stays decoupled from the orders module.
const (
	factCompleted = "COMPLETED"
	factCancelled = "CANCELLED"

	methodPaid     = "Paid"
	methodDelivery = "Delivery"
)

// OrderFact is the slice of an order that settlement math needs.
type OrderFact struct {
	Status         string
	DeliveryMethod string
	TotalPrice     decimal.Decimal
	DriverSalary   decimal.Decimal
}

// paysDriver reports whether the fact earns the driver its salary. Cancelled
// orders keep paying unless their method was coerced to Free at cancel time.
func (f OrderFact) paysDriver() bool {
	if f.Status != factCompleted && f.Status != factCancelled {
		return false
	}
	return f.DeliveryMethod == methodPaid || f.DeliveryMethod == methodDelivery
}

// ComputeEarnings derives the settlement figures from order facts and the
// aggregate payment sums.
//
//	TotalSales          = sum of completed order prices
//	Salary              = sum of per-order salaries over paying orders
//	TotalDriverEarnings = Salary + DirectPayments (signed)
//	BossCollection      = TotalSales - TotalDriverEarnings
//	HoldingAmount       = BossCollection - ApprovedBossPayments
func ComputeEarnings(facts []OrderFact, directPayments, approvedBossPayments decimal.Decimal) EarningsSummary {
	var summary EarningsSummary
	summary.DirectPayments = directPayments
	summary.ApprovedBossPayments = approvedBossPayments

	for _, fact := range facts {
		if fact.Status == factCompleted {
			summary.TotalSales = summary.TotalSales.Add(fact.TotalPrice)
		}
		if fact.paysDriver() {
			summary.PaidOrders++
			summary.Salary = summary.Salary.Add(fact.DriverSalary)
		}
	}

	summary.TotalDriverEarnings = summary.Salary.Add(directPayments)
	summary.BossCollection = summary.TotalSales.Sub(summary.TotalDriverEarnings)
	summary.HoldingAmount = summary.BossCollection.Sub(approvedBossPayments)
	return summary
}
