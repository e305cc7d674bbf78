package businessday

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetline/fleetline/internal/platform/db"
	"github.com/fleetline/fleetline/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Active(ctx context.Context) (*BusinessDay, error)
	Get(ctx context.Context, id int64) (BusinessDay, error)
	List(ctx context.Context, limit, offset int) ([]BusinessDay, error)
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	ActiveForUpdate(ctx context.Context) (*BusinessDay, error)
	GetForUpdate(ctx context.Context, id int64) (BusinessDay, error)
	Insert(ctx context.Context, day BusinessDay) (BusinessDay, error)
	Close(ctx context.Context, id int64, at time.Time) error
}

// Repository persists business days in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *Repository) Active(ctx context.Context) (*BusinessDay, error) {
	return scanActive(r.pool.QueryRow(ctx, `SELECT id, date, opened_at, opened_by_name, closed_at
FROM business_days WHERE closed_at IS NULL ORDER BY opened_at DESC LIMIT 1`))
}

func (r *Repository) Get(ctx context.Context, id int64) (BusinessDay, error) {
	var day BusinessDay
	err := r.pool.QueryRow(ctx, `SELECT id, date, opened_at, opened_by_name, closed_at
FROM business_days WHERE id=$1`, id).Scan(&day.ID, &day.Date, &day.OpenedAt, &day.OpenedByName, &day.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BusinessDay{}, fmt.Errorf("%w: business day %d", shared.ErrNotFound, id)
		}
		return BusinessDay{}, err
	}
	return day, nil
}

func (r *Repository) List(ctx context.Context, limit, offset int) ([]BusinessDay, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, date, opened_at, opened_by_name, closed_at
FROM business_days ORDER BY opened_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	days := []BusinessDay{}
	for rows.Next() {
		var day BusinessDay
		if err := rows.Scan(&day.ID, &day.Date, &day.OpenedAt, &day.OpenedByName, &day.ClosedAt); err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

func (r *txRepository) ActiveForUpdate(ctx context.Context) (*BusinessDay, error) {
	return scanActive(r.tx.QueryRow(ctx, `SELECT id, date, opened_at, opened_by_name, closed_at
FROM business_days WHERE closed_at IS NULL ORDER BY opened_at DESC LIMIT 1 FOR UPDATE`))
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (BusinessDay, error) {
	var day BusinessDay
	err := r.tx.QueryRow(ctx, `SELECT id, date, opened_at, opened_by_name, closed_at
FROM business_days WHERE id=$1 FOR UPDATE`, id).Scan(&day.ID, &day.Date, &day.OpenedAt, &day.OpenedByName, &day.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BusinessDay{}, fmt.Errorf("%w: business day %d", shared.ErrNotFound, id)
		}
		return BusinessDay{}, err
	}
	return day, nil
}

func (r *txRepository) Insert(ctx context.Context, day BusinessDay) (BusinessDay, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO business_days (date, opened_at, opened_by_name)
VALUES ($1, $2, $3) RETURNING id`, day.Date, day.OpenedAt, day.OpenedByName).Scan(&day.ID)
	return day, err
}

func (r *txRepository) Close(ctx context.Context, id int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE business_days SET closed_at=$2 WHERE id=$1`, id, at)
	return err
}

func scanActive(row pgx.Row) (*BusinessDay, error) {
	var day BusinessDay
	err := row.Scan(&day.ID, &day.Date, &day.OpenedAt, &day.OpenedByName, &day.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &day, nil
}
