package inventory

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/fleetline/fleetline/internal/catalog"
	"github.com/fleetline/fleetline/internal/shared"
)

// ProductSource supplies product names and pool quantities for the ledger
// snapshot. Satisfied by the catalog repository.
type ProductSource interface {
	List(ctx context.Context) ([]catalog.Product, error)
	Get(ctx context.Context, id int64) (catalog.Product, error)
}

// OrderUsage reports per-product quantities sold by a driver across
// non-cancelled orders. Implemented by the orders repository.
type OrderUsage interface {
	SoldByDriver(ctx context.Context, driverID int64) (map[int64]int64, error)
}

// Service derives driver inventory from the movement ledger and executes
// stock assignments and transfers.
type Service struct {
	repo     RepositoryPort
	products ProductSource
	orders   OrderUsage
}

func NewService(repo RepositoryPort, products ProductSource, orders OrderUsage) *Service {
	return &Service{repo: repo, products: products, orders: orders}
}

// GetDriverInventory returns the derived ledger for a driver. Only products
// the driver was ever assigned appear in the result.
func (s *Service) GetDriverInventory(ctx context.Context, driverID int64) ([]Line, error) {
	if driverID <= 0 {
		return nil, fmt.Errorf("%w: invalid driver id", shared.ErrValidation)
	}

	var (
		products    []catalog.Product
		assigned    map[int64]int64
		sold        map[int64]int64
		transferred map[int64]int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.products.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		assigned, err = s.repo.AssignedByDriver(gctx, driverID)
		return err
	})
	g.Go(func() error {
		var err error
		sold, err = s.orders.SoldByDriver(gctx, driverID)
		return err
	})
	g.Go(func() error {
		var err error
		transferred, err = s.repo.TransferredByDriver(gctx, driverID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lines := []Line{}
	for _, p := range products {
		a := assigned[p.ID]
		if a == 0 {
			continue
		}
		line := Line{
			ProductID:   p.ID,
			ProductName: p.Name,
			Assigned:    a,
			Sold:        sold[p.ID],
			Transferred: transferred[p.ID],
		}
		line.Remaining = line.Assigned - line.Sold - line.Transferred
		lines = append(lines, line)
	}
	return lines, nil
}

// AssignStock moves stock from the main pool to a driver.
func (s *Service) AssignStock(ctx context.Context, input AssignInput) (Assignment, error) {
	if input.DriverID <= 0 || input.ProductID <= 0 {
		return Assignment{}, fmt.Errorf("%w: driver and product are required", shared.ErrValidation)
	}
	if input.Quantity <= 0 {
		return Assignment{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}

	var assignment Assignment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.DriverExists(ctx, input.DriverID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: driver %d", shared.ErrNotFound, input.DriverID)
		}
		if err := tx.LockProduct(ctx, input.ProductID); err != nil {
			return err
		}
		pool, err := tx.PoolQuantityForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if pool < input.Quantity {
			return &InsufficientError{ProductID: input.ProductID, Requested: input.Quantity, Remaining: pool}
		}
		if err := tx.AdjustPool(ctx, input.ProductID, -input.Quantity); err != nil {
			return err
		}
		assignment, err = tx.InsertAssignment(ctx, Assignment{
			DriverID:  input.DriverID,
			ProductID: input.ProductID,
			Quantity:  input.Quantity,
			Source:    SourceDirect,
		})
		return err
	})
	if err != nil {
		return Assignment{}, err
	}
	return assignment, nil
}

// TransferStock moves stock from one driver to another, or collects it back
// into the main pool when input.ToDriverID is nil.
func (s *Service) TransferStock(ctx context.Context, input TransferInput) (StockTransfer, error) {
	if input.FromDriverID <= 0 || input.ProductID <= 0 {
		return StockTransfer{}, fmt.Errorf("%w: sender and product are required", shared.ErrValidation)
	}
	if input.Quantity <= 0 {
		return StockTransfer{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if input.ToDriverID != nil && *input.ToDriverID == input.FromDriverID {
		return StockTransfer{}, fmt.Errorf("%w: cannot transfer to the same driver", shared.ErrValidation)
	}

	transferType := TransferTypeCollect
	if input.ToDriverID != nil {
		transferType = TransferTypeTransfer
	}

	var transfer StockTransfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockDriver(ctx, input.FromDriverID); err != nil {
			return err
		}
		exists, err := tx.DriverExists(ctx, input.FromDriverID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: driver %d", shared.ErrNotFound, input.FromDriverID)
		}
		if input.ToDriverID != nil {
			exists, err := tx.DriverExists(ctx, *input.ToDriverID)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: driver %d", shared.ErrNotFound, *input.ToDriverID)
			}
		}

		remaining, err := tx.RemainingForDriver(ctx, input.FromDriverID, input.ProductID)
		if err != nil {
			return err
		}
		if remaining < input.Quantity {
			return &InsufficientError{ProductID: input.ProductID, Requested: input.Quantity, Remaining: remaining}
		}

		transfer, err = tx.InsertTransfer(ctx, StockTransfer{
			FromDriverID: input.FromDriverID,
			ToDriverID:   input.ToDriverID,
			ProductID:    input.ProductID,
			Quantity:     input.Quantity,
			TransferType: transferType,
		})
		if err != nil {
			return err
		}

		if input.ToDriverID != nil {
			_, err = tx.InsertAssignment(ctx, Assignment{
				DriverID:  *input.ToDriverID,
				ProductID: input.ProductID,
				Quantity:  input.Quantity,
				Source:    SourceTransfer,
			})
			return err
		}
		return tx.AdjustPool(ctx, input.ProductID, input.Quantity)
	})
	if err != nil {
		return StockTransfer{}, err
	}
	return transfer, nil
}

// DriverHoldsStock reports whether any ledger line for the driver has a
// positive remaining quantity.
func (s *Service) DriverHoldsStock(ctx context.Context, driverID int64) (bool, error) {
	lines, err := s.GetDriverInventory(ctx, driverID)
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if line.Remaining > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) ListAssignments(ctx context.Context, driverID int64) ([]Assignment, error) {
	return s.repo.ListAssignments(ctx, driverID)
}

func (s *Service) ListTransfers(ctx context.Context, driverID int64) ([]StockTransfer, error) {
	return s.repo.ListTransfers(ctx, driverID)
}

// NegativeLineCount exposes the integrity scan used by the background worker.
func (s *Service) NegativeLineCount(ctx context.Context) (int64, error) {
	return s.repo.NegativeLineCount(ctx)
}
