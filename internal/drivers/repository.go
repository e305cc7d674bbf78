package drivers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetline/fleetline/internal/shared"
)

type Repository interface {
	List(ctx context.Context) ([]Driver, error)
	Get(ctx context.Context, id int64) (Driver, error)
	Create(ctx context.Context, driver Driver) (Driver, error)
	Update(ctx context.Context, driver Driver) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context) ([]Driver, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, phone, linked_user_id, created_at, updated_at
FROM drivers ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []Driver{}
	for rows.Next() {
		var d Driver
		if err := rows.Scan(&d.ID, &d.Name, &d.Phone, &d.LinkedUserID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Driver, error) {
	var d Driver
	err := r.pool.QueryRow(ctx, `SELECT id, name, phone, linked_user_id, created_at, updated_at
FROM drivers WHERE id=$1`, id).Scan(&d.ID, &d.Name, &d.Phone, &d.LinkedUserID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Driver{}, fmt.Errorf("%w: driver %d", shared.ErrNotFound, id)
		}
		return Driver{}, err
	}
	return d, nil
}

func (r *repository) Create(ctx context.Context, driver Driver) (Driver, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO drivers (name, phone, linked_user_id, created_at, updated_at)
VALUES ($1, $2, $3, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		driver.Name, driver.Phone, driver.LinkedUserID).Scan(&driver.ID, &driver.CreatedAt, &driver.UpdatedAt)
	return driver, err
}

func (r *repository) Update(ctx context.Context, driver Driver) error {
	tag, err := r.pool.Exec(ctx, `UPDATE drivers SET name=$2, phone=$3, linked_user_id=$4, updated_at=NOW()
WHERE id=$1`, driver.ID, driver.Name, driver.Phone, driver.LinkedUserID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: driver %d", shared.ErrNotFound, driver.ID)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM drivers WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: driver %d", shared.ErrNotFound, id)
	}
	return nil
}
