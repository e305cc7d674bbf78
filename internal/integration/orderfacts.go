// Package integration holds the thin adapters that connect modules without
// letting their domain packages import each other.
package integration

import (
	"context"
	"time"

	"github.com/fleetline/fleetline/internal/orders"
	"github.com/fleetline/fleetline/internal/settlement"
)

// OrderFactSource feeds settlement math from the orders repository. It
// implements settlement.OrderSource.
type OrderFactSource struct {
	repo orders.RepositoryPort
}

func NewOrderFactSource(repo orders.RepositoryPort) *OrderFactSource {
	return &OrderFactSource{repo: repo}
}

func (s *OrderFactSource) FactsByDriver(ctx context.Context, driverID int64, from, to *time.Time) ([]settlement.OrderFact, error) {
	list, err := s.repo.List(ctx, orders.Filter{DriverID: &driverID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	facts := make([]settlement.OrderFact, 0, len(list))
	for _, o := range list {
		facts = append(facts, settlement.OrderFact{
			Status:         string(o.Status),
			DeliveryMethod: o.DeliveryMethod,
			TotalPrice:     o.TotalPrice,
			DriverSalary:   o.DriverSalary,
		})
	}
	return facts, nil
}
