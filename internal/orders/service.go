package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleetline/fleetline/internal/businessday"
	"github.com/fleetline/fleetline/internal/inventory"
	"github.com/fleetline/fleetline/internal/observability"
	"github.com/fleetline/fleetline/internal/shared"
)

// InventorySnapshot supplies the driver's derived ledger for availability
// checks. Implemented by the inventory service.
type InventorySnapshot interface {
	GetDriverInventory(ctx context.Context, driverID int64) ([]inventory.Line, error)
}

// DaySource reports the currently open business day.
type DaySource interface {
	Active(ctx context.Context) (*businessday.BusinessDay, error)
}

// EarningsInvalidator drops cached settlement figures for a driver after a
// mutation that moves money. Implemented by the settlement cache.
type EarningsInvalidator interface {
	InvalidateDriver(ctx context.Context, driverID int64) error
}

// IdempotencyChecker deduplicates client-supplied request tokens. Satisfied
// by shared.IdempotencyStore.
type IdempotencyChecker interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service runs the order lifecycle: placement against the driver's ledger,
// pending-only edits, completion, cancellation and deletion.
type Service struct {
	repo        RepositoryPort
	inventory   InventorySnapshot
	days        DaySource
	idempotency IdempotencyChecker
	earnings    EarningsInvalidator
	metrics     *observability.Metrics
}

func NewService(
	repo RepositoryPort,
	inv InventorySnapshot,
	days DaySource,
	idempotency IdempotencyChecker,
	earnings EarningsInvalidator,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		repo:        repo,
		inventory:   inv,
		days:        days,
		idempotency: idempotency,
		earnings:    earnings,
		metrics:     metrics,
	}
}

const idempotencyModule = "orders"

// Create places an order. It requires an open business day, holds the
// driver's advisory lock while checking the ledger, and rejects orders whose
// aggregated line items exceed any product's remaining quantity.
func (s *Service) Create(ctx context.Context, input CreateOrderInput) (Order, error) {
	if err := validateOrderFields(input.DriverID, input.CustomerName, input.DeliveryMethod, input.TotalPrice, input.Items); err != nil {
		return Order{}, err
	}

	day, err := s.days.Active(ctx)
	if err != nil {
		return Order{}, err
	}
	if day == nil {
		return Order{}, fmt.Errorf("%w: no business day is open", shared.ErrInvalidState)
	}

	items, required, err := resolveItems(input.Items)
	if err != nil {
		return Order{}, err
	}

	if input.RequestID != nil && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.RequestID.String(), idempotencyModule); err != nil {
			return Order{}, err
		}
	}

	salary := DefaultDriverSalary
	if input.DriverSalary != nil {
		salary = *input.DriverSalary
	}

	var order Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockDriver(ctx, input.DriverID); err != nil {
			return err
		}
		if err := s.checkAvailability(ctx, input.DriverID, required, nil); err != nil {
			return err
		}
		order, err = tx.Insert(ctx, Order{
			DriverID:       input.DriverID,
			SalesRepID:     input.SalesRepID,
			BusinessDayID:  day.ID,
			CustomerName:   strings.TrimSpace(input.CustomerName),
			CustomerPhone:  strings.TrimSpace(input.CustomerPhone),
			Address:        strings.TrimSpace(input.Address),
			Description:    strings.TrimSpace(input.Description),
			DeliveryMethod: input.DeliveryMethod,
			Status:         StatusPending,
			TotalPrice:     input.TotalPrice,
			DriverSalary:   salary,
			Note:           input.Note,
			RequestID:      input.RequestID,
			LineItems:      items,
		})
		return err
	})
	if err != nil {
		// release the key so the client can retry after a transient failure
		if input.RequestID != nil && s.idempotency != nil && !errors.Is(err, shared.ErrIdempotencyConflict) {
			_ = s.idempotency.Delete(ctx, input.RequestID.String())
		}
		return Order{}, err
	}

	if s.metrics != nil {
		s.metrics.OrderCreated()
	}
	s.invalidate(ctx, order.DriverID)
	return order, nil
}

// Update edits a pending order. Changing the driver re-validates the full
// requirement against the new driver's ledger; keeping the driver validates
// only the net increase per product.
func (s *Service) Update(ctx context.Context, id int64, input UpdateOrderInput) (Order, error) {
	if err := validateOrderFields(input.DriverID, input.CustomerName, input.DeliveryMethod, input.TotalPrice, input.Items); err != nil {
		return Order{}, err
	}

	items, required, err := resolveItems(input.Items)
	if err != nil {
		return Order{}, err
	}

	salary := DefaultDriverSalary
	if input.DriverSalary != nil {
		salary = *input.DriverSalary
	}

	var order Order
	var previousDriverID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		previousDriverID = current.DriverID
		if !current.Status.CanEdit() {
			return fmt.Errorf("%w: order %d is %s", shared.ErrInvalidState, id, current.Status)
		}
		if input.Status != nil && *input.Status != current.Status {
			return fmt.Errorf("%w: use the complete or cancel endpoints", shared.ErrInvalidTransition)
		}

		// lock in ascending id order to avoid lock-order deadlocks
		for _, driverID := range lockOrder(current.DriverID, input.DriverID) {
			if err := tx.LockDriver(ctx, driverID); err != nil {
				return err
			}
		}

		if input.DriverID == current.DriverID {
			// the order's own items already count as sold, so the net
			// increase is what must fit in the remaining quantity
			previous := map[int64]int64{}
			for _, item := range current.LineItems {
				previous[item.ProductID] += item.ActualQuantity
			}
			if err := s.checkAvailability(ctx, input.DriverID, required, previous); err != nil {
				return err
			}
		} else {
			if err := s.checkAvailability(ctx, input.DriverID, required, nil); err != nil {
				return err
			}
		}

		order = current
		order.DriverID = input.DriverID
		order.CustomerName = strings.TrimSpace(input.CustomerName)
		order.CustomerPhone = strings.TrimSpace(input.CustomerPhone)
		order.Address = strings.TrimSpace(input.Address)
		order.Description = strings.TrimSpace(input.Description)
		order.DeliveryMethod = input.DeliveryMethod
		order.TotalPrice = input.TotalPrice
		order.DriverSalary = salary
		order.Note = input.Note
		if err := tx.UpdateHeader(ctx, order); err != nil {
			return err
		}
		order.LineItems, err = tx.ReplaceLineItems(ctx, order.ID, items)
		return err
	})
	if err != nil {
		return Order{}, err
	}

	// a driver change moves the order's sales and salary out of the old
	// driver's history, so both caches must be dropped
	s.invalidate(ctx, previousDriverID)
	s.invalidate(ctx, input.DriverID)
	return order, nil
}

// Complete moves a pending order to COMPLETED.
func (s *Service) Complete(ctx context.Context, id int64) (Order, error) {
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return fmt.Errorf("%w: order %d is %s", shared.ErrInvalidTransition, id, current.Status)
		}
		at, err := tx.UpdateStatus(ctx, id, StatusCompleted, current.DeliveryMethod)
		if err != nil {
			return err
		}
		current.Status = StatusCompleted
		current.CompletedAt = &at
		current.UpdatedAt = at
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.invalidate(ctx, order.DriverID)
	return order, nil
}

// Cancel moves a pending order to CANCELLED. With payDriver false the
// delivery method is coerced to Free so the driver earns no salary for it;
// the consumed stock returns to the ledger either way because cancelled
// orders no longer count as sold. Completed orders cannot be cancelled, only
// deleted.
func (s *Service) Cancel(ctx context.Context, id int64, payDriver bool) (Order, error) {
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanCancel() {
			return fmt.Errorf("%w: only pending orders can be cancelled, order %d is %s", shared.ErrInvalidState, id, current.Status)
		}
		method := current.DeliveryMethod
		if !payDriver {
			method = MethodFree
		}
		at, err := tx.UpdateStatus(ctx, id, StatusCancelled, method)
		if err != nil {
			return err
		}
		current.Status = StatusCancelled
		current.DeliveryMethod = method
		current.CancelledAt = &at
		current.UpdatedAt = at
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if s.metrics != nil {
		s.metrics.OrderCancelled()
	}
	s.invalidate(ctx, order.DriverID)
	return order, nil
}

// Delete removes an order and its line items. The ledger and settlement
// figures recompute without it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var driverID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		driverID = current.DriverID
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, driverID)
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter Filter) ([]Order, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, *filter.Status)
	}
	return s.repo.List(ctx, filter)
}

// ListByPeriod lists orders created inside the period containing date.
func (s *Service) ListByPeriod(ctx context.Context, filter Filter, period string, date time.Time) ([]Order, error) {
	from, to, err := shared.PeriodRange(period, date)
	if err != nil {
		return nil, err
	}
	filter.From = &from
	filter.To = &to
	return s.List(ctx, filter)
}

// checkAvailability verifies that every required product fits within the
// driver's remaining quantity. The credit map restores quantities already
// consumed by the order being edited.
func (s *Service) checkAvailability(ctx context.Context, driverID int64, required, credit map[int64]int64) error {
	if len(required) == 0 {
		return nil
	}
	lines, err := s.inventory.GetDriverInventory(ctx, driverID)
	if err != nil {
		return err
	}
	remaining := map[int64]int64{}
	for _, line := range lines {
		remaining[line.ProductID] = line.Remaining
	}
	for productID, qty := range required {
		available := remaining[productID] + credit[productID]
		if qty > available {
			return &inventory.InsufficientError{ProductID: productID, Requested: qty, Remaining: available}
		}
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, driverID int64) {
	if s.earnings == nil || driverID <= 0 {
		return
	}
	_ = s.earnings.InvalidateDriver(ctx, driverID)
}

// resolveItems derives actual quantities and the per-product requirement.
// Duplicate products across line items aggregate before the availability
// check.
func resolveItems(inputs []LineItemInput) ([]LineItem, map[int64]int64, error) {
	items := make([]LineItem, 0, len(inputs))
	required := map[int64]int64{}
	for _, in := range inputs {
		if in.ProductID <= 0 {
			return nil, nil, fmt.Errorf("%w: line item product is required", shared.ErrValidation)
		}
		units, err := ResolveUnits(in.Category, in.Quantity)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, LineItem{
			ProductID:      in.ProductID,
			Category:       in.Category,
			Quantity:       in.Quantity,
			ActualQuantity: units,
			IsFreeGift:     in.IsFreeGift,
		})
		required[in.ProductID] += units
	}
	return items, required, nil
}

func validateOrderFields(driverID int64, customerName, method string, totalPrice decimal.Decimal, items []LineItemInput) error {
	if driverID <= 0 {
		return fmt.Errorf("%w: driver is required", shared.ErrValidation)
	}
	if strings.TrimSpace(customerName) == "" {
		return fmt.Errorf("%w: customer name is required", shared.ErrValidation)
	}
	if !ValidMethod(method) {
		return fmt.Errorf("%w: unknown delivery method %q", shared.ErrValidation, method)
	}
	if totalPrice.IsNegative() {
		return fmt.Errorf("%w: total price cannot be negative", shared.ErrValidation)
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one line item is required", shared.ErrValidation)
	}
	return nil
}

func lockOrder(a, b int64) []int64 {
	if a == b {
		return []int64{a}
	}
	if a < b {
		return []int64{a, b}
	}
	return []int64{b, a}
}
