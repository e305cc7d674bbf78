package businessday

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fleetline/fleetline/internal/shared"
)

// Service coordinates opening and closing of business days.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Open starts a new business day. Only one day may be open at a time.
func (s *Service) Open(ctx context.Context, input OpenInput) (BusinessDay, error) {
	openedBy := strings.TrimSpace(input.OpenedByName)
	if openedBy == "" {
		return BusinessDay{}, fmt.Errorf("%w: opened_by_name is required", shared.ErrValidation)
	}

	var day BusinessDay
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		active, err := tx.ActiveForUpdate(ctx)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("%w: day %d opened at %s", ErrDayAlreadyOpen, active.ID, active.OpenedAt.Format(time.RFC3339))
		}

		now := s.now().UTC()
		day, err = tx.Insert(ctx, BusinessDay{
			Date:         now.Truncate(24 * time.Hour),
			OpenedAt:     now,
			OpenedByName: openedBy,
		})
		return err
	})
	if err != nil {
		return BusinessDay{}, err
	}
	return day, nil
}

// Close ends the given business day. Closing an already closed day fails.
func (s *Service) Close(ctx context.Context, id int64) (BusinessDay, error) {
	var day BusinessDay
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		day, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !day.IsOpen() {
			return fmt.Errorf("%w: day %d closed at %s", ErrDayAlreadyClosed, day.ID, day.ClosedAt.Format(time.RFC3339))
		}

		now := s.now().UTC()
		if err := tx.Close(ctx, day.ID, now); err != nil {
			return err
		}
		day.ClosedAt = &now
		return nil
	})
	if err != nil {
		return BusinessDay{}, err
	}
	return day, nil
}

// Active returns the currently open day, or nil when none is open.
func (s *Service) Active(ctx context.Context) (*BusinessDay, error) {
	return s.repo.Active(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (BusinessDay, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]BusinessDay, error) {
	return s.repo.List(ctx, limit, offset)
}
