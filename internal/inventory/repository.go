package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetline/fleetline/internal/platform/db"
	"github.com/fleetline/fleetline/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	AssignedByDriver(ctx context.Context, driverID int64) (map[int64]int64, error)
	TransferredByDriver(ctx context.Context, driverID int64) (map[int64]int64, error)
	ListAssignments(ctx context.Context, driverID int64) ([]Assignment, error)
	ListTransfers(ctx context.Context, driverID int64) ([]StockTransfer, error)
	NegativeLineCount(ctx context.Context) (int64, error)
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	LockDriver(ctx context.Context, driverID int64) error
	LockProduct(ctx context.Context, productID int64) error
	DriverExists(ctx context.Context, driverID int64) (bool, error)
	PoolQuantityForUpdate(ctx context.Context, productID int64) (int64, error)
	AdjustPool(ctx context.Context, productID, delta int64) error
	InsertAssignment(ctx context.Context, a Assignment) (Assignment, error)
	InsertTransfer(ctx context.Context, t StockTransfer) (StockTransfer, error)
	RemainingForDriver(ctx context.Context, driverID, productID int64) (int64, error)
}

// Repository persists the inventory ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *Repository) AssignedByDriver(ctx context.Context, driverID int64) (map[int64]int64, error) {
	return queryQuantityMap(ctx, r.pool, `SELECT product_id, SUM(quantity) FROM stock_assignments
WHERE driver_id=$1 GROUP BY product_id`, driverID)
}

func (r *Repository) TransferredByDriver(ctx context.Context, driverID int64) (map[int64]int64, error) {
	return queryQuantityMap(ctx, r.pool, `SELECT product_id, SUM(quantity) FROM stock_transfers
WHERE from_driver_id=$1 GROUP BY product_id`, driverID)
}

func (r *Repository) ListAssignments(ctx context.Context, driverID int64) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, driver_id, product_id, quantity, source, created_at
FROM stock_assignments WHERE driver_id=$1 ORDER BY created_at DESC`, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []Assignment{}
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ID, &a.DriverID, &a.ProductID, &a.Quantity, &a.Source, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *Repository) ListTransfers(ctx context.Context, driverID int64) ([]StockTransfer, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, from_driver_id, to_driver_id, product_id, quantity, transfer_type, created_at
FROM stock_transfers WHERE from_driver_id=$1 OR to_driver_id=$1 ORDER BY created_at DESC`, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []StockTransfer{}
	for rows.Next() {
		var t StockTransfer
		if err := rows.Scan(&t.ID, &t.FromDriverID, &t.ToDriverID, &t.ProductID, &t.Quantity, &t.TransferType, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// NegativeLineCount counts driver/product ledger lines whose derived
// remaining quantity is below zero. Used by the integrity scan job.
func (r *Repository) NegativeLineCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
WITH assigned AS (
  SELECT driver_id, product_id, SUM(quantity) AS qty FROM stock_assignments GROUP BY driver_id, product_id
), sold AS (
  SELECT o.driver_id, li.product_id, SUM(li.actual_quantity) AS qty
  FROM order_line_items li JOIN orders o ON o.id = li.order_id
  WHERE o.status <> 'CANCELLED' GROUP BY o.driver_id, li.product_id
), moved AS (
  SELECT from_driver_id AS driver_id, product_id, SUM(quantity) AS qty FROM stock_transfers GROUP BY from_driver_id, product_id
)
SELECT COUNT(*) FROM assigned a
LEFT JOIN sold s ON s.driver_id = a.driver_id AND s.product_id = a.product_id
LEFT JOIN moved m ON m.driver_id = a.driver_id AND m.product_id = a.product_id
WHERE a.qty - COALESCE(s.qty, 0) - COALESCE(m.qty, 0) < 0`).Scan(&count)
	return count, err
}

func (r *txRepository) LockDriver(ctx context.Context, driverID int64) error {
	return shared.LockDriver(ctx, r.tx, driverID)
}

func (r *txRepository) LockProduct(ctx context.Context, productID int64) error {
	return shared.LockProduct(ctx, r.tx, productID)
}

func (r *txRepository) DriverExists(ctx context.Context, driverID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM drivers WHERE id=$1)`, driverID).Scan(&exists)
	return exists, err
}

func (r *txRepository) PoolQuantityForUpdate(ctx context.Context, productID int64) (int64, error) {
	var qty int64
	err := r.tx.QueryRow(ctx, `SELECT total_quantity FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: product %d", shared.ErrNotFound, productID)
		}
		return 0, err
	}
	return qty, nil
}

func (r *txRepository) AdjustPool(ctx context.Context, productID, delta int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET total_quantity = total_quantity + $2, updated_at = NOW()
WHERE id=$1`, productID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %d", shared.ErrNotFound, productID)
	}
	return nil
}

func (r *txRepository) InsertAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_assignments (driver_id, product_id, quantity, source, created_at)
VALUES ($1, $2, $3, $4, NOW()) RETURNING id, created_at`,
		a.DriverID, a.ProductID, a.Quantity, a.Source).Scan(&a.ID, &a.CreatedAt)
	return a, err
}

func (r *txRepository) InsertTransfer(ctx context.Context, t StockTransfer) (StockTransfer, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_transfers (from_driver_id, to_driver_id, product_id, quantity, transfer_type, created_at)
VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING id, created_at`,
		t.FromDriverID, t.ToDriverID, t.ProductID, t.Quantity, t.TransferType).Scan(&t.ID, &t.CreatedAt)
	return t, err
}

// RemainingForDriver derives the remaining quantity of one product for one
// driver inside the current transaction. Callers must hold the driver's
// advisory lock so concurrent movements cannot interleave.
func (r *txRepository) RemainingForDriver(ctx context.Context, driverID, productID int64) (int64, error) {
	var remaining int64
	err := r.tx.QueryRow(ctx, `
SELECT COALESCE((SELECT SUM(quantity) FROM stock_assignments WHERE driver_id=$1 AND product_id=$2), 0)
     - COALESCE((SELECT SUM(li.actual_quantity) FROM order_line_items li
                 JOIN orders o ON o.id = li.order_id
                 WHERE o.driver_id=$1 AND li.product_id=$2 AND o.status <> 'CANCELLED'), 0)
     - COALESCE((SELECT SUM(quantity) FROM stock_transfers WHERE from_driver_id=$1 AND product_id=$2), 0)`,
		driverID, productID).Scan(&remaining)
	return remaining, err
}

func queryQuantityMap(ctx context.Context, pool *pgxpool.Pool, sql string, args ...any) (map[int64]int64, error) {
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]int64{}
	for rows.Next() {
		var productID, qty int64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		out[productID] = qty
	}
	return out, rows.Err()
}
