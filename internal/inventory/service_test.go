package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetline/fleetline/internal/catalog"
	"github.com/fleetline/fleetline/internal/shared"
)

type memoryStore struct {
	products    map[int64]*catalog.Product
	drivers     map[int64]bool
	assignments []Assignment
	transfers   []StockTransfer
	sold        map[int64]map[int64]int64 // driver -> product -> qty
	nextID      int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		products: map[int64]*catalog.Product{},
		drivers:  map[int64]bool{},
		sold:     map[int64]map[int64]int64{},
		nextID:   1,
	}
}

func (m *memoryStore) addProduct(id int64, name string, pool int64) {
	m.products[id] = &catalog.Product{ID: id, Name: name, TotalQuantity: pool}
}

func (m *memoryStore) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

// RepositoryPort

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryStore) AssignedByDriver(_ context.Context, driverID int64) (map[int64]int64, error) {
	out := map[int64]int64{}
	for _, a := range m.assignments {
		if a.DriverID == driverID {
			out[a.ProductID] += a.Quantity
		}
	}
	return out, nil
}

func (m *memoryStore) TransferredByDriver(_ context.Context, driverID int64) (map[int64]int64, error) {
	out := map[int64]int64{}
	for _, t := range m.transfers {
		if t.FromDriverID == driverID {
			out[t.ProductID] += t.Quantity
		}
	}
	return out, nil
}

func (m *memoryStore) ListAssignments(_ context.Context, driverID int64) ([]Assignment, error) {
	out := []Assignment{}
	for _, a := range m.assignments {
		if a.DriverID == driverID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryStore) ListTransfers(_ context.Context, driverID int64) ([]StockTransfer, error) {
	out := []StockTransfer{}
	for _, t := range m.transfers {
		if t.FromDriverID == driverID || (t.ToDriverID != nil && *t.ToDriverID == driverID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryStore) NegativeLineCount(ctx context.Context) (int64, error) {
	var count int64
	for driverID := range m.drivers {
		assigned, _ := m.AssignedByDriver(ctx, driverID)
		moved, _ := m.TransferredByDriver(ctx, driverID)
		for productID, qty := range assigned {
			if qty-m.sold[driverID][productID]-moved[productID] < 0 {
				count++
			}
		}
	}
	return count, nil
}

// TxRepository

func (m *memoryStore) LockDriver(context.Context, int64) error  { return nil }
func (m *memoryStore) LockProduct(context.Context, int64) error { return nil }

func (m *memoryStore) DriverExists(_ context.Context, driverID int64) (bool, error) {
	return m.drivers[driverID], nil
}

func (m *memoryStore) PoolQuantityForUpdate(_ context.Context, productID int64) (int64, error) {
	p, ok := m.products[productID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return p.TotalQuantity, nil
}

func (m *memoryStore) AdjustPool(_ context.Context, productID, delta int64) error {
	p, ok := m.products[productID]
	if !ok {
		return shared.ErrNotFound
	}
	p.TotalQuantity += delta
	return nil
}

func (m *memoryStore) InsertAssignment(_ context.Context, a Assignment) (Assignment, error) {
	a.ID = m.id()
	a.CreatedAt = time.Now()
	m.assignments = append(m.assignments, a)
	return a, nil
}

func (m *memoryStore) InsertTransfer(_ context.Context, t StockTransfer) (StockTransfer, error) {
	t.ID = m.id()
	t.CreatedAt = time.Now()
	m.transfers = append(m.transfers, t)
	return t, nil
}

func (m *memoryStore) RemainingForDriver(ctx context.Context, driverID, productID int64) (int64, error) {
	assigned, _ := m.AssignedByDriver(ctx, driverID)
	moved, _ := m.TransferredByDriver(ctx, driverID)
	return assigned[productID] - m.sold[driverID][productID] - moved[productID], nil
}

// ProductSource

func (m *memoryStore) List(_ context.Context) ([]catalog.Product, error) {
	out := []catalog.Product{}
	for _, p := range m.products {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memoryStore) Get(_ context.Context, id int64) (catalog.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return catalog.Product{}, shared.ErrNotFound
	}
	return *p, nil
}

// OrderUsage

func (m *memoryStore) SoldByDriver(_ context.Context, driverID int64) (map[int64]int64, error) {
	out := map[int64]int64{}
	for productID, qty := range m.sold[driverID] {
		out[productID] = qty
	}
	return out, nil
}

func newTestService(store *memoryStore) *Service {
	return NewService(store, store, store)
}

func TestLedgerDerivation(t *testing.T) {
	store := newMemoryStore()
	store.addProduct(1, "Blue", 100)
	store.addProduct(2, "Green", 50)
	store.drivers[7] = true
	svc := newTestService(store)

	_, err := svc.AssignStock(context.Background(), AssignInput{DriverID: 7, ProductID: 1, Quantity: 10})
	require.NoError(t, err)
	store.sold[7] = map[int64]int64{1: 3}
	to := int64(8)
	store.drivers[8] = true
	_, err = svc.TransferStock(context.Background(), TransferInput{FromDriverID: 7, ToDriverID: &to, ProductID: 1, Quantity: 2})
	require.NoError(t, err)

	lines, err := svc.GetDriverInventory(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, lines, 1, "products never assigned are omitted")
	require.Equal(t, int64(1), lines[0].ProductID)
	require.Equal(t, int64(10), lines[0].Assigned)
	require.Equal(t, int64(3), lines[0].Sold)
	require.Equal(t, int64(2), lines[0].Transferred)
	require.Equal(t, int64(5), lines[0].Remaining)

	// transfer-in counts as assigned for the recipient
	recipient, err := svc.GetDriverInventory(context.Background(), 8)
	require.NoError(t, err)
	require.Len(t, recipient, 1)
	require.Equal(t, int64(2), recipient[0].Assigned)
	require.Equal(t, int64(2), recipient[0].Remaining)
}

func TestAssignDecrementsPool(t *testing.T) {
	store := newMemoryStore()
	store.addProduct(1, "Blue", 10)
	store.drivers[7] = true
	svc := newTestService(store)

	a, err := svc.AssignStock(context.Background(), AssignInput{DriverID: 7, ProductID: 1, Quantity: 4})
	require.NoError(t, err)
	require.Equal(t, SourceDirect, a.Source)
	require.Equal(t, int64(6), store.products[1].TotalQuantity)
}

func TestAssignInsufficientPool(t *testing.T) {
	store := newMemoryStore()
	store.addProduct(1, "Blue", 3)
	store.drivers[7] = true
	svc := newTestService(store)

	_, err := svc.AssignStock(context.Background(), AssignInput{DriverID: 7, ProductID: 1, Quantity: 4})
	require.ErrorIs(t, err, shared.ErrInsufficientInventory)

	var insufficient *InsufficientError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(3), insufficient.Remaining)
	require.Equal(t, int64(3), store.products[1].TotalQuantity, "pool untouched on failure")
}

func TestAssignUnknownDriver(t *testing.T) {
	store := newMemoryStore()
	store.addProduct(1, "Blue", 10)
	svc := newTestService(store)

	_, err := svc.AssignStock(context.Background(), AssignInput{DriverID: 99, ProductID: 1, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCollectReturnsToPool(t *testing.T) {
	store := newMemoryStore()
	store.addProduct(1, "Blue", 10)
	store.drivers[7] = true
	svc := newTestService(store)

	_, err := svc.AssignStock(context.Background(), AssignInput{DriverID: 7, ProductID: 1, Quantity: 6})
	require.NoError(t, err)
	require.Equal(t, int64(4), store.products[1].TotalQuantity)

	tr, err := svc.TransferStock(context.Background(), TransferInput{FromDriverID: 7, ProductID: 1, Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, TransferTypeCollect, tr.TransferType)
	require.Nil(t, tr.ToDriverID)
	require.Equal(t, int64(6), store.products[1].TotalQuantity)

	lines, err := svc.GetDriverInventory(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, int64(4), lines[0].Remaining)
}

func TestTransferOverdraw(t *testing.T) {
	store := newMemoryStore()
	store.addProduct(1, "Blue", 10)
	store.drivers[7] = true
	store.drivers[8] = true
	svc := newTestService(store)

	_, err := svc.AssignStock(context.Background(), AssignInput{DriverID: 7, ProductID: 1, Quantity: 5})
	require.NoError(t, err)
	store.sold[7] = map[int64]int64{1: 4}

	to := int64(8)
	_, err = svc.TransferStock(context.Background(), TransferInput{FromDriverID: 7, ToDriverID: &to, ProductID: 1, Quantity: 2})
	require.ErrorIs(t, err, shared.ErrInsufficientInventory)
}

func TestTransferToSelf(t *testing.T) {
	store := newMemoryStore()
	store.drivers[7] = true
	svc := newTestService(store)

	to := int64(7)
	_, err := svc.TransferStock(context.Background(), TransferInput{FromDriverID: 7, ToDriverID: &to, ProductID: 1, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDriverHoldsStock(t *testing.T) {
	store := newMemoryStore()
	store.addProduct(1, "Blue", 10)
	store.drivers[7] = true
	svc := newTestService(store)

	holds, err := svc.DriverHoldsStock(context.Background(), 7)
	require.NoError(t, err)
	require.False(t, holds)

	_, err = svc.AssignStock(context.Background(), AssignInput{DriverID: 7, ProductID: 1, Quantity: 2})
	require.NoError(t, err)

	holds, err = svc.DriverHoldsStock(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, holds)

	store.sold[7] = map[int64]int64{1: 2}
	holds, err = svc.DriverHoldsStock(context.Background(), 7)
	require.NoError(t, err)
	require.False(t, holds, "fully sold ledger lines hold nothing")
}
