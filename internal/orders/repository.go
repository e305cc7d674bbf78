package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetline/fleetline/internal/platform/db"
	"github.com/fleetline/fleetline/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, filter Filter) ([]Order, error)
	SoldByDriver(ctx context.Context, driverID int64) (map[int64]int64, error)
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	LockDriver(ctx context.Context, driverID int64) error
	GetForUpdate(ctx context.Context, id int64) (Order, error)
	Insert(ctx context.Context, order Order) (Order, error)
	UpdateHeader(ctx context.Context, order Order) error
	UpdateStatus(ctx context.Context, id int64, status Status, deliveryMethod string) (time.Time, error)
	ReplaceLineItems(ctx context.Context, orderID int64, items []LineItem) ([]LineItem, error)
	Delete(ctx context.Context, id int64) error
}

// Repository persists orders in PostgreSQL.
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

const orderColumns = `id, driver_id, sales_rep_id, business_day_id, customer_name, customer_phone, address,
description, delivery_method, status, total_price, driver_salary, note, request_id,
created_at, updated_at, completed_at, cancelled_at`

const lineItemColumns = `id, order_id, product_id, product_name, category, quantity, actual_quantity, is_free_gift`

func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
		}
		return Order{}, err
	}
	items, err := r.lineItems(ctx, order.ID)
	if err != nil {
		return Order{}, err
	}
	order.LineItems = items
	return order, nil
}

func (r *Repository) List(ctx context.Context, filter Filter) ([]Order, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.DriverID != nil {
		conds = append(conds, "driver_id = "+arg(*filter.DriverID))
	}
	if filter.SalesRepID != nil {
		conds = append(conds, "sales_rep_id = "+arg(*filter.SalesRepID))
	}
	if filter.BusinessDayID != nil {
		conds = append(conds, "business_day_id = "+arg(*filter.BusinessDayID))
	}
	if filter.Status != nil {
		conds = append(conds, "status = "+arg(string(*filter.Status)))
	}
	if filter.From != nil {
		conds = append(conds, "created_at >= "+arg(*filter.From))
	}
	if filter.To != nil {
		conds = append(conds, "created_at < "+arg(*filter.To))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []Order{}
	ids := []int64{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		order.LineItems = []LineItem{}
		list = append(list, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return list, nil
	}

	itemRows, err := r.pool.Query(ctx, `SELECT `+lineItemColumns+`
FROM order_line_items WHERE order_id = ANY($1) ORDER BY id ASC`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	byOrder := map[int64][]LineItem{}
	for itemRows.Next() {
		item, err := scanLineItem(itemRows)
		if err != nil {
			return nil, err
		}
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	for i := range list {
		if items, ok := byOrder[list[i].ID]; ok {
			list[i].LineItems = items
		}
	}
	return list, nil
}

// SoldByDriver aggregates inventory units consumed per product across the
// driver's non-cancelled orders. It backs the inventory ledger's Sold column.
func (r *Repository) SoldByDriver(ctx context.Context, driverID int64) (map[int64]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT li.product_id, SUM(li.actual_quantity)
FROM order_line_items li
JOIN orders o ON o.id = li.order_id
WHERE o.driver_id = $1 AND o.status <> 'CANCELLED'
GROUP BY li.product_id`, driverID)
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

func (r *Repository) lineItems(ctx context.Context, orderID int64) ([]LineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lineItemColumns+`
FROM order_line_items WHERE order_id=$1 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []LineItem{}
	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *txRepository) LockDriver(ctx context.Context, driverID int64) error {
	return shared.LockDriver(ctx, r.tx, driverID)
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Order, error) {
	order, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
		}
		return Order{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT `+lineItemColumns+`
FROM order_line_items WHERE order_id=$1 ORDER BY id ASC`, order.ID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	order.LineItems = []LineItem{}
	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return Order{}, err
		}
		order.LineItems = append(order.LineItems, item)
	}
	return order, rows.Err()
}

func (r *txRepository) Insert(ctx context.Context, order Order) (Order, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO orders
(driver_id, sales_rep_id, business_day_id, customer_name, customer_phone, address, description,
 delivery_method, status, total_price, driver_salary, note, request_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
RETURNING id, created_at, updated_at`,
		order.DriverID, order.SalesRepID, order.BusinessDayID, order.CustomerName, order.CustomerPhone,
		order.Address, order.Description, order.DeliveryMethod, string(order.Status), order.TotalPrice,
		order.DriverSalary, order.Note, order.RequestID).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	items, err := r.ReplaceLineItems(ctx, order.ID, order.LineItems)
	if err != nil {
		return Order{}, err
	}
	order.LineItems = items
	return order, nil
}

func (r *txRepository) UpdateHeader(ctx context.Context, order Order) error {
	tag, err := r.tx.Exec(ctx, `UPDATE orders SET driver_id=$2, customer_name=$3, customer_phone=$4,
address=$5, description=$6, delivery_method=$7, total_price=$8, driver_salary=$9, note=$10, updated_at=NOW()
WHERE id=$1`, order.ID, order.DriverID, order.CustomerName, order.CustomerPhone, order.Address,
		order.Description, order.DeliveryMethod, order.TotalPrice, order.DriverSalary, order.Note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %d", shared.ErrNotFound, order.ID)
	}
	return nil
}

// UpdateStatus stamps the transition server-side and returns the write
// timestamp so callers hand back exactly what a later read will see.
func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status Status, deliveryMethod string) (time.Time, error) {
	var at time.Time
	err := r.tx.QueryRow(ctx, `UPDATE orders SET status=$2, delivery_method=$3, updated_at=NOW(),
completed_at = CASE WHEN $2 = 'COMPLETED' THEN NOW() ELSE completed_at END,
cancelled_at = CASE WHEN $2 = 'CANCELLED' THEN NOW() ELSE cancelled_at END
WHERE id=$1
RETURNING updated_at`, id, string(status), deliveryMethod).Scan(&at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
		}
		return time.Time{}, err
	}
	return at, nil
}

func (r *txRepository) ReplaceLineItems(ctx context.Context, orderID int64, items []LineItem) ([]LineItem, error) {
	if _, err := r.tx.Exec(ctx, `DELETE FROM order_line_items WHERE order_id=$1`, orderID); err != nil {
		return nil, err
	}
	out := make([]LineItem, 0, len(items))
	for _, item := range items {
		item.OrderID = orderID
		// product name is denormalized at write time; a missing product
		// surfaces here as no row
		err := r.tx.QueryRow(ctx, `INSERT INTO order_line_items
(order_id, product_id, product_name, category, quantity, actual_quantity, is_free_gift)
SELECT $1, p.id, p.name, $3, $4, $5, $6 FROM products p WHERE p.id = $2
RETURNING id, product_name`,
			item.OrderID, item.ProductID, item.Category, item.Quantity, item.ActualQuantity,
			item.IsFreeGift).Scan(&item.ID, &item.ProductName)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: product %d", shared.ErrNotFound, item.ProductID)
			}
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *txRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM order_line_items WHERE order_id=$1`, id); err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
	}
	return nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.DriverID, &o.SalesRepID, &o.BusinessDayID, &o.CustomerName, &o.CustomerPhone,
		&o.Address, &o.Description, &o.DeliveryMethod, &status, &o.TotalPrice, &o.DriverSalary,
		&o.Note, &o.RequestID, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt, &o.CancelledAt)
	if err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	return o, nil
}

func scanLineItem(rows pgx.Rows) (LineItem, error) {
	var item LineItem
	err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Category,
		&item.Quantity, &item.ActualQuantity, &item.IsFreeGift)
	return item, err
}
