package businessday

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetline/fleetline/internal/shared"
)

type memoryRepo struct {
	days   []BusinessDay
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) Active(ctx context.Context) (*BusinessDay, error) {
	return m.ActiveForUpdate(ctx)
}

func (m *memoryRepo) ActiveForUpdate(_ context.Context) (*BusinessDay, error) {
	for i := len(m.days) - 1; i >= 0; i-- {
		if m.days[i].IsOpen() {
			day := m.days[i]
			return &day, nil
		}
	}
	return nil, nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (BusinessDay, error) {
	return m.GetForUpdate(ctx, id)
}

func (m *memoryRepo) GetForUpdate(_ context.Context, id int64) (BusinessDay, error) {
	for _, day := range m.days {
		if day.ID == id {
			return day, nil
		}
	}
	return BusinessDay{}, fmt.Errorf("%w: business day %d", shared.ErrNotFound, id)
}

func (m *memoryRepo) List(_ context.Context, _, _ int) ([]BusinessDay, error) {
	out := make([]BusinessDay, len(m.days))
	copy(out, m.days)
	return out, nil
}

func (m *memoryRepo) Insert(_ context.Context, day BusinessDay) (BusinessDay, error) {
	day.ID = m.nextID
	m.nextID++
	m.days = append(m.days, day)
	return day, nil
}

func (m *memoryRepo) Close(_ context.Context, id int64, at time.Time) error {
	for i := range m.days {
		if m.days[i].ID == id {
			closed := at
			m.days[i].ClosedAt = &closed
			return nil
		}
	}
	return fmt.Errorf("%w: business day %d", shared.ErrNotFound, id)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestOpenRejectsSecondDay(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo).WithNow(fixedClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)))

	first, err := svc.Open(context.Background(), OpenInput{OpenedByName: "Dana"})
	require.NoError(t, err)
	require.True(t, first.IsOpen())

	_, err = svc.Open(context.Background(), OpenInput{OpenedByName: "Dana"})
	require.ErrorIs(t, err, ErrDayAlreadyOpen)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestOpenRequiresName(t *testing.T) {
	svc := NewService(newMemoryRepo())

	_, err := svc.Open(context.Background(), OpenInput{OpenedByName: "  "})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCloseIsTerminal(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo).WithNow(fixedClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)))

	day, err := svc.Open(context.Background(), OpenInput{OpenedByName: "Dana"})
	require.NoError(t, err)

	closed, err := svc.Close(context.Background(), day.ID)
	require.NoError(t, err)
	require.False(t, closed.IsOpen())

	_, err = svc.Close(context.Background(), day.ID)
	require.ErrorIs(t, err, ErrDayAlreadyClosed)
}

func TestReopenAfterClose(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo).WithNow(fixedClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)))

	day, err := svc.Open(context.Background(), OpenInput{OpenedByName: "Dana"})
	require.NoError(t, err)
	_, err = svc.Close(context.Background(), day.ID)
	require.NoError(t, err)

	next, err := svc.Open(context.Background(), OpenInput{OpenedByName: "Lee"})
	require.NoError(t, err)
	require.NotEqual(t, day.ID, next.ID)

	active, err := svc.Active(context.Background())
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, next.ID, active.ID)
}
