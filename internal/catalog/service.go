package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/fleetline/fleetline/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: invalid product id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	if strings.TrimSpace(product.Name) == "" {
		return Product{}, fmt.Errorf("%w: product name is required", shared.ErrValidation)
	}
	if product.TotalQuantity < 0 {
		return Product{}, fmt.Errorf("%w: initial quantity must not be negative", shared.ErrValidation)
	}
	return s.repo.Create(ctx, product)
}

// Restock adds units to a product's shared stock pool.
func (s *Service) Restock(ctx context.Context, id int64, qty int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: invalid product id", shared.ErrValidation)
	}
	if qty <= 0 {
		return Product{}, fmt.Errorf("%w: restock quantity must be positive", shared.ErrValidation)
	}
	return s.repo.Restock(ctx, id, qty)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid product id", shared.ErrValidation)
	}
	return s.repo.Delete(ctx, id)
}
