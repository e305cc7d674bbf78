package drivers

import (
	"context"
	"fmt"
	"strings"

	"github.com/fleetline/fleetline/internal/shared"
)

// InventorySource reports whether a driver still holds stock. Implemented by
// the inventory ledger.
type InventorySource interface {
	DriverHoldsStock(ctx context.Context, driverID int64) (bool, error)
}

type Service struct {
	repo      Repository
	inventory InventorySource
}

func NewService(repo Repository, inventory InventorySource) *Service {
	return &Service{repo: repo, inventory: inventory}
}

func (s *Service) List(ctx context.Context) ([]Driver, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Driver, error) {
	if id <= 0 {
		return Driver{}, fmt.Errorf("%w: invalid driver id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, driver Driver) (Driver, error) {
	if err := s.validate(driver); err != nil {
		return Driver{}, err
	}
	return s.repo.Create(ctx, driver)
}

func (s *Service) Update(ctx context.Context, driver Driver) error {
	if driver.ID <= 0 {
		return fmt.Errorf("%w: invalid driver id", shared.ErrValidation)
	}
	if err := s.validate(driver); err != nil {
		return err
	}
	return s.repo.Update(ctx, driver)
}

// Delete removes a driver. Drivers still holding stock cannot be removed;
// their inventory must be collected or transferred first.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid driver id", shared.ErrValidation)
	}
	if s.inventory != nil {
		holds, err := s.inventory.DriverHoldsStock(ctx, id)
		if err != nil {
			return err
		}
		if holds {
			return fmt.Errorf("%w: driver %d still holds inventory", shared.ErrInvalidState, id)
		}
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) validate(driver Driver) error {
	if strings.TrimSpace(driver.Name) == "" {
		return fmt.Errorf("%w: driver name is required", shared.ErrValidation)
	}
	if strings.TrimSpace(driver.Phone) == "" {
		return fmt.Errorf("%w: driver phone is required", shared.ErrValidation)
	}
	return nil
}
