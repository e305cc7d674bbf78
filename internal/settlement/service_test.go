package settlement

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fleetline/fleetline/internal/shared"
)

type factRecord struct {
	fact      OrderFact
	createdAt time.Time
}

type memoryStore struct {
	facts          map[int64][]factRecord
	directPayments map[int64]*DirectPayment
	bossPayments   map[int64]*BossPayment
	lockedDrivers  []int64
	nextID         int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		facts:          map[int64][]factRecord{},
		directPayments: map[int64]*DirectPayment{},
		bossPayments:   map[int64]*BossPayment{},
		nextID:         1,
	}
}

func (m *memoryStore) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *memoryStore) addFact(driverID int64, fact OrderFact, at time.Time) {
	m.facts[driverID] = append(m.facts[driverID], factRecord{fact: fact, createdAt: at})
}

// OrderSource

func (m *memoryStore) FactsByDriver(_ context.Context, driverID int64, from, to *time.Time) ([]OrderFact, error) {
	out := []OrderFact{}
	for _, rec := range m.facts[driverID] {
		if from != nil && rec.createdAt.Before(*from) {
			continue
		}
		if to != nil && !rec.createdAt.Before(*to) {
			continue
		}
		out = append(out, rec.fact)
	}
	return out, nil
}

// RepositoryPort

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryStore) DirectPaymentSum(_ context.Context, driverID int64, from, to *time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, p := range m.directPayments {
		if p.DriverID != driverID {
			continue
		}
		if from != nil && p.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && !p.CreatedAt.Before(*to) {
			continue
		}
		sum = sum.Add(p.Amount)
	}
	return sum, nil
}

func (m *memoryStore) ApprovedBossPaymentSum(_ context.Context, driverID int64) (decimal.Decimal, error) {
	return m.bossSum(driverID, PaymentApproved), nil
}

func (m *memoryStore) PendingBossPaymentSum(_ context.Context, driverID int64) (decimal.Decimal, error) {
	return m.bossSum(driverID, PaymentPending), nil
}

func (m *memoryStore) bossSum(driverID int64, status PaymentStatus) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range m.bossPayments {
		if p.DriverID == driverID && p.Status == status {
			sum = sum.Add(p.Amount)
		}
	}
	return sum
}

func (m *memoryStore) InsertDirectPayment(_ context.Context, p DirectPayment) (DirectPayment, error) {
	p.ID = m.id()
	p.CreatedAt = time.Now()
	stored := p
	m.directPayments[p.ID] = &stored
	return p, nil
}

func (m *memoryStore) ListDirectPayments(_ context.Context, driverID int64, from, to *time.Time) ([]DirectPayment, error) {
	out := []DirectPayment{}
	for _, p := range m.directPayments {
		if p.DriverID != driverID {
			continue
		}
		if from != nil && p.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && !p.CreatedAt.Before(*to) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (m *memoryStore) DeleteDirectPayment(_ context.Context, id int64) (DirectPayment, error) {
	p, ok := m.directPayments[id]
	if !ok {
		return DirectPayment{}, fmt.Errorf("%w: direct payment %d", shared.ErrNotFound, id)
	}
	delete(m.directPayments, id)
	return *p, nil
}

func (m *memoryStore) GetBossPayment(ctx context.Context, id int64) (BossPayment, error) {
	return m.GetBossPaymentForUpdate(ctx, id)
}

func (m *memoryStore) ListBossPayments(_ context.Context, filter BossPaymentFilter) ([]BossPayment, error) {
	out := []BossPayment{}
	for _, p := range m.bossPayments {
		if filter.DriverID != nil && p.DriverID != *filter.DriverID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.From != nil && p.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !p.CreatedAt.Before(*filter.To) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

// TxRepository

func (m *memoryStore) LockDriver(_ context.Context, driverID int64) error {
	m.lockedDrivers = append(m.lockedDrivers, driverID)
	return nil
}

func (m *memoryStore) InsertBossPayment(_ context.Context, p BossPayment) (BossPayment, error) {
	p.ID = m.id()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	stored := p
	m.bossPayments[p.ID] = &stored
	return p, nil
}

func (m *memoryStore) GetBossPaymentForUpdate(_ context.Context, id int64) (BossPayment, error) {
	p, ok := m.bossPayments[id]
	if !ok {
		return BossPayment{}, fmt.Errorf("%w: boss payment %d", shared.ErrNotFound, id)
	}
	return *p, nil
}

func (m *memoryStore) UpdateBossPaymentStatus(_ context.Context, id int64, status PaymentStatus) error {
	p, ok := m.bossPayments[id]
	if !ok {
		return fmt.Errorf("%w: boss payment %d", shared.ErrNotFound, id)
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	return nil
}

type cacheFake struct {
	entries       map[string]EarningsSummary
	invalidations int
}

func newCacheFake() *cacheFake {
	return &cacheFake{entries: map[string]EarningsSummary{}}
}

func (c *cacheFake) key(driverID int64, scope string) string {
	return fmt.Sprintf("%d:%s", driverID, scope)
}

func (c *cacheFake) Get(_ context.Context, driverID int64, scope string) (*EarningsSummary, error) {
	if s, ok := c.entries[c.key(driverID, scope)]; ok {
		return &s, nil
	}
	return nil, nil
}

func (c *cacheFake) Set(_ context.Context, driverID int64, scope string, summary EarningsSummary) error {
	c.entries[c.key(driverID, scope)] = summary
	return nil
}

func (c *cacheFake) InvalidateDriver(context.Context, int64) error {
	c.entries = map[string]EarningsSummary{}
	c.invalidations++
	return nil
}

func newTestService(store *memoryStore, cache SummaryCache) *Service {
	return NewService(store, store, cache, nil, nil, nil).
		WithNow(func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) })
}

func paidFact(price, salary int64) OrderFact {
	return OrderFact{Status: "COMPLETED", DeliveryMethod: "Paid", TotalPrice: d(price), DriverSalary: d(salary)}
}

func TestDriverEarningsAllTime(t *testing.T) {
	store := newMemoryStore()
	store.addFact(7, paidFact(200, 30), time.Now())
	store.addFact(7, paidFact(100, 30), time.Now())
	svc := newTestService(store, nil)

	_, err := svc.AddDirectPayment(context.Background(), 1, 7, d(15), "bonus", "fuel")
	require.NoError(t, err)

	summary, err := svc.DriverEarnings(context.Background(), 7, "", time.Now())
	require.NoError(t, err)
	require.Equal(t, ScopeAllTime, summary.Scope)
	require.True(t, summary.TotalSales.Equal(d(300)))
	require.True(t, summary.Salary.Equal(d(60)))
	require.True(t, summary.TotalDriverEarnings.Equal(d(75)))
	require.True(t, summary.BossCollection.Equal(d(225)))
	require.True(t, summary.HoldingAmount.Equal(d(225)))
}

func TestPeriodHoldingStaysAllTime(t *testing.T) {
	store := newMemoryStore()
	today := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	lastMonth := today.AddDate(0, -1, 0)
	store.addFact(7, paidFact(500, 30), lastMonth)
	store.addFact(7, paidFact(100, 30), today)
	svc := newTestService(store, nil)

	summary, err := svc.DriverEarnings(context.Background(), 7, shared.PeriodDay, today)
	require.NoError(t, err)

	// sales scoped to the day, holding still covers all history
	require.True(t, summary.TotalSales.Equal(d(100)))
	require.True(t, summary.Salary.Equal(d(30)))
	require.True(t, summary.HoldingAmount.Equal(d(540)), "holding %s", summary.HoldingAmount)
}

func TestDriverEarningsUnknownPeriod(t *testing.T) {
	svc := newTestService(newMemoryStore(), nil)

	_, err := svc.DriverEarnings(context.Background(), 7, "year", time.Now())
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDriverEarningsUsesCache(t *testing.T) {
	store := newMemoryStore()
	store.addFact(7, paidFact(200, 30), time.Now())
	cache := newCacheFake()
	svc := newTestService(store, cache)

	first, err := svc.DriverEarnings(context.Background(), 7, "", time.Now())
	require.NoError(t, err)

	// new facts are invisible until invalidation
	store.addFact(7, paidFact(900, 30), time.Now())
	second, err := svc.DriverEarnings(context.Background(), 7, "", time.Now())
	require.NoError(t, err)
	require.True(t, second.TotalSales.Equal(first.TotalSales))

	require.NoError(t, svc.InvalidateDriver(context.Background(), 7))
	third, err := svc.DriverEarnings(context.Background(), 7, "", time.Now())
	require.NoError(t, err)
	require.True(t, third.TotalSales.Equal(d(1100)))
}

func TestRequestPaymentCeiling(t *testing.T) {
	store := newMemoryStore()
	store.addFact(7, paidFact(200, 30), time.Now()) // holding 170
	svc := newTestService(store, nil)

	payment, err := svc.RequestPayment(context.Background(), 7, 7, d(100), "weekly remit")
	require.NoError(t, err)
	require.Equal(t, PaymentPending, payment.Status)

	// 100 pending + 80 requested > 170 holding
	_, err = svc.RequestPayment(context.Background(), 7, 7, d(80), "second remit")
	require.ErrorIs(t, err, shared.ErrInsufficientHolding)

	_, err = svc.RequestPayment(context.Background(), 7, 7, d(70), "second remit")
	require.NoError(t, err)
}

func TestRequestPaymentValidation(t *testing.T) {
	store := newMemoryStore()
	store.addFact(7, paidFact(200, 30), time.Now())
	svc := newTestService(store, nil)

	_, err := svc.RequestPayment(context.Background(), 7, 7, d(0), "weekly remit")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.RequestPayment(context.Background(), 7, 7, d(10), "abc")
	require.ErrorIs(t, err, shared.ErrValidation, "reason too short")
}

func TestApprovePaymentReducesHolding(t *testing.T) {
	store := newMemoryStore()
	store.addFact(7, paidFact(200, 30), time.Now()) // holding 170
	svc := newTestService(store, nil)

	payment, err := svc.RequestPayment(context.Background(), 7, 7, d(100), "weekly remit")
	require.NoError(t, err)

	store.lockedDrivers = nil
	approved, err := svc.ApprovePayment(context.Background(), 1, payment.ID)
	require.NoError(t, err)
	require.Equal(t, PaymentApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	require.Contains(t, store.lockedDrivers, int64(7), "approval holds the driver lock")

	summary, err := svc.DriverEarnings(context.Background(), 7, "", time.Now())
	require.NoError(t, err)
	require.True(t, summary.HoldingAmount.Equal(d(70)))

	_, err = svc.ApprovePayment(context.Background(), 1, payment.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState, "approved is terminal")
}

func TestCancelPaymentFreesCeiling(t *testing.T) {
	store := newMemoryStore()
	store.addFact(7, paidFact(200, 30), time.Now()) // holding 170
	svc := newTestService(store, nil)

	payment, err := svc.RequestPayment(context.Background(), 7, 7, d(170), "full remit")
	require.NoError(t, err)

	_, err = svc.RequestPayment(context.Background(), 7, 7, d(10), "extra remit")
	require.ErrorIs(t, err, shared.ErrInsufficientHolding)

	cancelled, err := svc.CancelPayment(context.Background(), 1, payment.ID)
	require.NoError(t, err)
	require.Equal(t, PaymentCancelled, cancelled.Status)

	_, err = svc.RequestPayment(context.Background(), 7, 7, d(10), "extra remit")
	require.NoError(t, err)

	_, err = svc.CancelPayment(context.Background(), 1, payment.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState, "cancelled is terminal")
}

func TestAdminSubmitPaymentLandsApproved(t *testing.T) {
	store := newMemoryStore()
	store.addFact(7, paidFact(200, 30), time.Now()) // holding 170
	cache := newCacheFake()
	svc := newTestService(store, cache)

	payment, err := svc.AdminSubmitPayment(context.Background(), 1, 7, d(100), "cash handed over")
	require.NoError(t, err)
	require.Equal(t, PaymentApproved, payment.Status)
	require.Greater(t, cache.invalidations, 0)

	_, err = svc.AdminSubmitPayment(context.Background(), 1, 7, d(100), "cash handed over")
	require.ErrorIs(t, err, shared.ErrInsufficientHolding, "same ceiling applies")
}

func TestDirectPaymentLifecycle(t *testing.T) {
	store := newMemoryStore()
	cache := newCacheFake()
	svc := newTestService(store, cache)

	_, err := svc.AddDirectPayment(context.Background(), 1, 7, d(0), "", "")
	require.ErrorIs(t, err, shared.ErrValidation)

	payment, err := svc.AddDirectPayment(context.Background(), 1, 7, d(-25), "deduction", "damaged goods")
	require.NoError(t, err)
	require.Equal(t, int64(1), payment.CreatedBy)
	require.Greater(t, cache.invalidations, 0)

	list, err := svc.ListDirectPayments(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.DeleteDirectPayment(context.Background(), 1, payment.ID))
	list, err = svc.ListDirectPayments(context.Background(), 7)
	require.NoError(t, err)
	require.Empty(t, list)
}
