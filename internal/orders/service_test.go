package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fleetline/fleetline/internal/businessday"
	"github.com/fleetline/fleetline/internal/inventory"
	"github.com/fleetline/fleetline/internal/settlement"
	"github.com/fleetline/fleetline/internal/shared"
)

type memoryRepo struct {
	orders map[int64]*Order
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: map[int64]*Order{}, nextID: 1}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (Order, error) {
	return m.GetForUpdate(ctx, id)
}

func (m *memoryRepo) List(_ context.Context, filter Filter) ([]Order, error) {
	out := []Order{}
	for _, o := range m.orders {
		if filter.DriverID != nil && o.DriverID != *filter.DriverID {
			continue
		}
		if filter.SalesRepID != nil && o.SalesRepID != *filter.SalesRepID {
			continue
		}
		if filter.BusinessDayID != nil && o.BusinessDayID != *filter.BusinessDayID {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		if filter.From != nil && o.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !o.CreatedAt.Before(*filter.To) {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (m *memoryRepo) SoldByDriver(_ context.Context, driverID int64) (map[int64]int64, error) {
	out := map[int64]int64{}
	for _, o := range m.orders {
		if o.DriverID != driverID || o.Status == StatusCancelled {
			continue
		}
		for _, item := range o.LineItems {
			out[item.ProductID] += item.ActualQuantity
		}
	}
	return out, nil
}

func (m *memoryRepo) LockDriver(context.Context, int64) error { return nil }

func (m *memoryRepo) GetForUpdate(_ context.Context, id int64) (Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
	}
	return *o, nil
}

func (m *memoryRepo) Insert(_ context.Context, order Order) (Order, error) {
	order.ID = m.nextID
	m.nextID++
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	for i := range order.LineItems {
		order.LineItems[i].OrderID = order.ID
	}
	stored := order
	m.orders[order.ID] = &stored
	return order, nil
}

func (m *memoryRepo) UpdateHeader(_ context.Context, order Order) error {
	o, ok := m.orders[order.ID]
	if !ok {
		return fmt.Errorf("%w: order %d", shared.ErrNotFound, order.ID)
	}
	items := o.LineItems
	*o = order
	o.LineItems = items
	return nil
}

func (m *memoryRepo) UpdateStatus(_ context.Context, id int64, status Status, deliveryMethod string) (time.Time, error) {
	o, ok := m.orders[id]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
	}
	at := time.Now()
	o.Status = status
	o.DeliveryMethod = deliveryMethod
	o.UpdatedAt = at
	switch status {
	case StatusCompleted:
		o.CompletedAt = &at
	case StatusCancelled:
		o.CancelledAt = &at
	}
	return at, nil
}

func (m *memoryRepo) ReplaceLineItems(_ context.Context, orderID int64, items []LineItem) ([]LineItem, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", shared.ErrNotFound, orderID)
	}
	for i := range items {
		items[i].OrderID = orderID
	}
	o.LineItems = items
	return items, nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.orders[id]; !ok {
		return fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
	}
	delete(m.orders, id)
	return nil
}

// ledgerFake derives driver inventory from static assignments and the order
// repo's live usage, mirroring how the real ledger composes.
type ledgerFake struct {
	repo     *memoryRepo
	assigned map[int64]map[int64]int64 // driver -> product -> qty
}

func (f *ledgerFake) GetDriverInventory(ctx context.Context, driverID int64) ([]inventory.Line, error) {
	sold, err := f.repo.SoldByDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	lines := []inventory.Line{}
	for productID, qty := range f.assigned[driverID] {
		lines = append(lines, inventory.Line{
			ProductID: productID,
			Assigned:  qty,
			Sold:      sold[productID],
			Remaining: qty - sold[productID],
		})
	}
	return lines, nil
}

type dayFake struct {
	open *businessday.BusinessDay
}

func (f *dayFake) Active(context.Context) (*businessday.BusinessDay, error) {
	return f.open, nil
}

type idempotencyFake struct {
	keys map[string]bool
}

func (f *idempotencyFake) CheckAndInsert(_ context.Context, key, _ string) error {
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *idempotencyFake) Delete(_ context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

type invalidatorFake struct {
	drivers []int64
}

func (f *invalidatorFake) InvalidateDriver(_ context.Context, driverID int64) error {
	f.drivers = append(f.drivers, driverID)
	return nil
}

type fixture struct {
	repo        *memoryRepo
	ledger      *ledgerFake
	day         *dayFake
	idempotency *idempotencyFake
	invalidator *invalidatorFake
	svc         *Service
}

func newFixture() *fixture {
	repo := newMemoryRepo()
	ledger := &ledgerFake{repo: repo, assigned: map[int64]map[int64]int64{}}
	day := &dayFake{open: &businessday.BusinessDay{ID: 1, OpenedAt: time.Now()}}
	idem := &idempotencyFake{keys: map[string]bool{}}
	inval := &invalidatorFake{}
	return &fixture{
		repo:        repo,
		ledger:      ledger,
		day:         day,
		idempotency: idem,
		invalidator: inval,
		svc:         NewService(repo, ledger, day, idem, inval, nil),
	}
}

func (f *fixture) assign(driverID, productID, qty int64) {
	if f.ledger.assigned[driverID] == nil {
		f.ledger.assigned[driverID] = map[int64]int64{}
	}
	f.ledger.assigned[driverID][productID] += qty
}

func validInput(driverID int64, items ...LineItemInput) CreateOrderInput {
	return CreateOrderInput{
		DriverID:       driverID,
		CustomerName:   "Sam",
		CustomerPhone:  "555-0101",
		Address:        "12 Elm St",
		DeliveryMethod: MethodPaid,
		TotalPrice:     decimal.NewFromInt(120),
		Items:          items,
	}
}

func TestCreateDeductsByCategory(t *testing.T) {
	f := newFixture()
	f.assign(7, 1, 20)

	// 2xQ (2 units) + 1xH (2 units) + 1xOz (4 units) = 8 units
	order, err := f.svc.Create(context.Background(), validInput(7,
		LineItemInput{ProductID: 1, Category: CategoryQ, Quantity: 2},
		LineItemInput{ProductID: 1, Category: CategoryH, Quantity: 1},
		LineItemInput{ProductID: 1, Category: CategoryOz, Quantity: 1},
	))
	require.NoError(t, err)
	require.Equal(t, StatusPending, order.Status)
	require.Equal(t, int64(1), order.BusinessDayID)
	require.True(t, order.DriverSalary.Equal(DefaultDriverSalary))

	lines, err := f.ledger.GetDriverInventory(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, int64(8), lines[0].Sold)
	require.Equal(t, int64(12), lines[0].Remaining)
}

func TestCreatePiecesCategory(t *testing.T) {
	f := newFixture()
	f.assign(7, 1, 10)

	_, err := f.svc.Create(context.Background(), validInput(7,
		LineItemInput{ProductID: 1, Category: CategoryPieces, Quantity: 7},
	))
	require.NoError(t, err)

	lines, _ := f.ledger.GetDriverInventory(context.Background(), 7)
	require.Equal(t, int64(3), lines[0].Remaining)
}

func TestCreateAggregatesDuplicateProducts(t *testing.T) {
	f := newFixture()
	f.assign(7, 1, 5)

	// each item alone fits, together they need 6 of 5
	_, err := f.svc.Create(context.Background(), validInput(7,
		LineItemInput{ProductID: 1, Category: CategoryH, Quantity: 1},
		LineItemInput{ProductID: 1, Category: CategoryOz, Quantity: 1},
	))
	require.ErrorIs(t, err, shared.ErrInsufficientInventory)
	require.Empty(t, f.repo.orders)
}

func TestCreateRequiresOpenDay(t *testing.T) {
	f := newFixture()
	f.day.open = nil
	f.assign(7, 1, 10)

	_, err := f.svc.Create(context.Background(), validInput(7,
		LineItemInput{ProductID: 1, Category: CategoryQ, Quantity: 1},
	))
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCreateIdempotency(t *testing.T) {
	f := newFixture()
	f.assign(7, 1, 10)
	requestID := uuid.New()

	input := validInput(7, LineItemInput{ProductID: 1, Category: CategoryQ, Quantity: 1})
	input.RequestID = &requestID

	_, err := f.svc.Create(context.Background(), input)
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, f.repo.orders, 1)
}

func TestCreateReleasesKeyOnFailure(t *testing.T) {
	f := newFixture()
	f.assign(7, 1, 1)
	requestID := uuid.New()

	input := validInput(7, LineItemInput{ProductID: 1, Category: CategoryOz, Quantity: 1})
	input.RequestID = &requestID

	_, err := f.svc.Create(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrInsufficientInventory)
	require.False(t, f.idempotency.keys[requestID.String()], "failed create must not burn the key")
}

func TestUpdateSameDriverDelta(t *testing.T) {
	f := newFixture()
	f.assign(7, 1, 10)

	order, err := f.svc.Create(context.Background(), validInput(7,
		LineItemInput{ProductID: 1, Category: CategoryOz, Quantity: 2}, // 8 units
	))
	require.NoError(t, err)

	// growing to 10 units fits because the old 8 come back first
	updated, err := f.svc.Update(context.Background(), order.ID, UpdateOrderInput{
		DriverID:       7,
		CustomerName:   "Sam",
		DeliveryMethod: MethodPaid,
		TotalPrice:     decimal.NewFromInt(150),
		Items:          []LineItemInput{{ProductID: 1, Category: CategoryPieces, Quantity: 10}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(10), updated.LineItems[0].ActualQuantity)

	// 11 units would overdraw
	_, err = f.svc.Update(context.Background(), order.ID, UpdateOrderInput{
		DriverID:       7,
		CustomerName:   "Sam",
		DeliveryMethod: MethodPaid,
		TotalPrice:     decimal.NewFromInt(150),
		Items:          []LineItemInput{{ProductID: 1, Category: CategoryPieces, Quantity: 11}},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientInventory)
}

func TestUpdateDriverChangeCleanSlate(t *testing.T) {
	f := newFixture()
	f.assign(7, 1, 10)
	f.assign(8, 1, 3)

	order, err := f.svc.Create(context.Background(), validInput(7,
		LineItemInput{ProductID: 1, Category: CategoryPieces, Quantity: 5},
	))
	require.NoError(t, err)

	// the new driver only has 3; the old driver's credit does not carry over
	_, err = f.svc.Update(context.Background(), order.ID, UpdateOrderInput{
		DriverID:       8,
		CustomerName:   "Sam",
		DeliveryMethod: MethodPaid,
		TotalPrice:     decimal.NewFromInt(120),
		Items:          []LineItemInput{{ProductID: 1, Category: CategoryPieces, Quantity: 5}},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientInventory)

	updated, err := f.svc.Update(context.Background(), order.ID, UpdateOrderInput{
		DriverID:       8,
		CustomerName:   "Sam",
		DeliveryMethod: MethodPaid,
		TotalPrice:     decimal.NewFromInt(120),
		Items:          []LineItemInput{{ProductID: 1, Category: CategoryPieces, Quantity: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(8), updated.DriverID)

	// usage moved to the new driver's ledger
	lines, _ := f.ledger.GetDriverInventory(context.Background(), 7)
	require.Equal(t, int64(0), lines[0].Sold)
}

func TestUpdateDriverChangeInvalidatesBothDrivers(t *testing.T) {
	f := newFixture()
	f.assign(7, 1, 10)
	f.assign(8, 1, 10)

	order, err := f.svc.Create(context.Background(), validInput(7,
		LineItemInput{ProductID: 1, Category: CategoryPieces, Quantity: 5},
	))
	require.NoError(t, err)

	f.invalidator.drivers = nil
	_, err = f.svc.Update(context.Background(), order.ID, UpdateOrderInput{
		DriverID:       8,
		CustomerName:   "Sam",
		DeliveryMethod: MethodPaid,
		TotalPrice:     decimal.NewFromInt(120),
		Items:          []LineItemInput{{ProductID: 1, Category: CategoryPieces, Quantity: 5}},
	})
	require.NoError(t, err)

	// the order's sales left driver 7's history, so both caches drop
	require.Contains(t, f.invalidator.drivers, int64(7))
	require.Contains(t, f.invalidator.drivers, int64(8))
}

func TestUpdateStatusFieldRejected(t *testing.T) {
	f := newFixture()
	f.assign(7, 1, 10)

	order, err := f.svc.Create(context.Background(), validInput(7,
		LineItemInput{ProductID: 1, Category: CategoryQ, Quantity: 1},
	))
	require.NoError(t, err)

	completed := StatusCompleted
	_, err = f.svc.Update(context.Background(), order.ID, UpdateOrderInput{
		DriverID:       7,
		CustomerName:   "Sam",
		DeliveryMethod: MethodPaid,
		TotalPrice:     decimal.NewFromInt(120),
		Status:         &completed,
		Items:          []LineItemInput{{ProductID: 1, Category: CategoryQ, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestEditCompletedOrderRejected(t *testing.T) {
	f := newFixture()
	f.assign(7, 1, 10)

	order, err := f.svc.Create(context.Background(), validInput(7,
		LineItemInput{ProductID: 1, Category: CategoryQ, Quantity: 1},
	))
	require.NoError(t, err)
	_, err = f.svc.Complete(context.Background(), order.ID)
	require.NoError(t, err)

	_, err = f.svc.Update(context.Background(), order.ID, UpdateOrderInput{
		DriverID:       7,
		CustomerName:   "Sam",
		DeliveryMethod: MethodPaid,
		TotalPrice:     decimal.NewFromInt(120),
		Items:          []LineItemInput{{ProductID: 1, Category: CategoryQ, Quantity: 2}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCancelRestoresInventory(t *testing.T) {
	f := newFixture()
	f.assign(7, 1, 10)

	order, err := f.svc.Create(context.Background(), validInput(7,
		LineItemInput{ProductID: 1, Category: CategoryOz, Quantity: 2},
	))
	require.NoError(t, err)

	lines, _ := f.ledger.GetDriverInventory(context.Background(), 7)
	require.Equal(t, int64(2), lines[0].Remaining)

	cancelled, err := f.svc.Cancel(context.Background(), order.ID, true)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, MethodPaid, cancelled.DeliveryMethod, "payDriver keeps the method")

	lines, _ = f.ledger.GetDriverInventory(context.Background(), 7)
	require.Equal(t, int64(10), lines[0].Remaining)
}

func TestCancelWithoutPayCoercesMethod(t *testing.T) {
	f := newFixture()
	f.assign(7, 1, 10)

	order, err := f.svc.Create(context.Background(), validInput(7,
		LineItemInput{ProductID: 1, Category: CategoryQ, Quantity: 1},
	))
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(context.Background(), order.ID, false)
	require.NoError(t, err)
	require.Equal(t, MethodFree, cancelled.DeliveryMethod)

	_, err = f.svc.Cancel(context.Background(), order.ID, true)
	require.ErrorIs(t, err, shared.ErrInvalidState, "cancelled is terminal")
}

func TestCancelCompletedOrderRejected(t *testing.T) {
	f := newFixture()
	f.assign(7, 1, 10)

	order, err := f.svc.Create(context.Background(), validInput(7,
		LineItemInput{ProductID: 1, Category: CategoryQ, Quantity: 1},
	))
	require.NoError(t, err)
	_, err = f.svc.Complete(context.Background(), order.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), order.ID, true)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	// the delivered order keeps its status and stays on the ledger
	stored, err := f.svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, stored.Status)

	lines, _ := f.ledger.GetDriverInventory(context.Background(), 7)
	require.Equal(t, int64(9), lines[0].Remaining)
}

func TestStatusTimestampsMatchStore(t *testing.T) {
	f := newFixture()
	f.assign(7, 1, 10)

	first, err := f.svc.Create(context.Background(), validInput(7,
		LineItemInput{ProductID: 1, Category: CategoryQ, Quantity: 1},
	))
	require.NoError(t, err)
	completed, err := f.svc.Complete(context.Background(), first.ID)
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)

	stored, err := f.svc.Get(context.Background(), first.ID)
	require.NoError(t, err)
	require.Equal(t, completed.CompletedAt, stored.CompletedAt)
	require.Equal(t, completed.UpdatedAt, stored.UpdatedAt)

	second, err := f.svc.Create(context.Background(), validInput(7,
		LineItemInput{ProductID: 1, Category: CategoryQ, Quantity: 1},
	))
	require.NoError(t, err)
	cancelled, err := f.svc.Cancel(context.Background(), second.ID, false)
	require.NoError(t, err)
	require.NotNil(t, cancelled.CancelledAt)

	stored, err = f.svc.Get(context.Background(), second.ID)
	require.NoError(t, err)
	require.Equal(t, cancelled.CancelledAt, stored.CancelledAt)
}

func TestCompleteIsPendingOnly(t *testing.T) {
	f := newFixture()
	f.assign(7, 1, 10)

	order, err := f.svc.Create(context.Background(), validInput(7,
		LineItemInput{ProductID: 1, Category: CategoryQ, Quantity: 1},
	))
	require.NoError(t, err)
	_, err = f.svc.Cancel(context.Background(), order.ID, true)
	require.NoError(t, err)

	_, err = f.svc.Complete(context.Background(), order.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestDeleteRemovesUsage(t *testing.T) {
	f := newFixture()
	f.assign(7, 1, 10)

	order, err := f.svc.Create(context.Background(), validInput(7,
		LineItemInput{ProductID: 1, Category: CategoryOz, Quantity: 1},
	))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), order.ID))

	lines, _ := f.ledger.GetDriverInventory(context.Background(), 7)
	require.Equal(t, int64(10), lines[0].Remaining)
	require.Contains(t, f.invalidator.drivers, int64(7))
}

func TestMutationsInvalidateEarnings(t *testing.T) {
	f := newFixture()
	f.assign(7, 1, 10)

	order, err := f.svc.Create(context.Background(), validInput(7,
		LineItemInput{ProductID: 1, Category: CategoryQ, Quantity: 1},
	))
	require.NoError(t, err)
	before := len(f.invalidator.drivers)

	_, err = f.svc.Complete(context.Background(), order.ID)
	require.NoError(t, err)
	require.Greater(t, len(f.invalidator.drivers), before)
}

func TestResolveUnitsRejectsUnknownCategory(t *testing.T) {
	_, err := ResolveUnits("Gram", 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = ResolveUnits(CategoryQ, 0)
	require.ErrorIs(t, err, shared.ErrValidation)
}

// driverFacts projects the fake repo's orders into settlement facts the way
// the integration adapter does in production.
func driverFacts(t *testing.T, repo *memoryRepo, driverID int64) []settlement.OrderFact {
	t.Helper()
	list, err := repo.List(context.Background(), Filter{DriverID: &driverID})
	require.NoError(t, err)
	facts := make([]settlement.OrderFact, 0, len(list))
	for _, o := range list {
		facts = append(facts, settlement.OrderFact{
			Status:         string(o.Status),
			DeliveryMethod: o.DeliveryMethod,
			TotalPrice:     o.TotalPrice,
			DriverSalary:   o.DriverSalary,
		})
	}
	return facts
}

func TestSingleOrderLedgerAndSettlement(t *testing.T) {
	input := validInput(7, LineItemInput{ProductID: 1, Category: CategoryQ, Quantity: 1})
	input.TotalPrice = decimal.NewFromInt(50)
	zero := decimal.Zero

	t.Run("completed", func(t *testing.T) {
		f := newFixture()
		f.assign(7, 1, 10)

		order, err := f.svc.Create(context.Background(), input)
		require.NoError(t, err)

		lines, err := f.ledger.GetDriverInventory(context.Background(), 7)
		require.NoError(t, err)
		require.Equal(t, int64(10), lines[0].Assigned)
		require.Equal(t, int64(1), lines[0].Sold)
		require.Equal(t, int64(9), lines[0].Remaining)

		_, err = f.svc.Complete(context.Background(), order.ID)
		require.NoError(t, err)

		summary := settlement.ComputeEarnings(driverFacts(t, f.repo, 7), zero, zero)
		require.True(t, summary.TotalSales.Equal(decimal.NewFromInt(50)))
		require.True(t, summary.Salary.Equal(decimal.NewFromInt(30)))
		require.True(t, summary.BossCollection.Equal(decimal.NewFromInt(20)))
	})

	t.Run("cancelled with pay", func(t *testing.T) {
		f := newFixture()
		f.assign(7, 1, 10)

		order, err := f.svc.Create(context.Background(), input)
		require.NoError(t, err)
		_, err = f.svc.Cancel(context.Background(), order.ID, true)
		require.NoError(t, err)

		lines, err := f.ledger.GetDriverInventory(context.Background(), 7)
		require.NoError(t, err)
		require.Equal(t, int64(10), lines[0].Remaining)

		// the driver is still owed the salary for a paid cancellation
		summary := settlement.ComputeEarnings(driverFacts(t, f.repo, 7), zero, zero)
		require.True(t, summary.TotalSales.IsZero())
		require.True(t, summary.Salary.Equal(decimal.NewFromInt(30)))
		require.True(t, summary.BossCollection.Equal(decimal.NewFromInt(-30)))
	})
}
