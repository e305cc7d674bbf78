package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fleetline/fleetline/internal/platform/db"
	"github.com/fleetline/fleetline/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	DirectPaymentSum(ctx context.Context, driverID int64, from, to *time.Time) (decimal.Decimal, error)
	ApprovedBossPaymentSum(ctx context.Context, driverID int64) (decimal.Decimal, error)
	PendingBossPaymentSum(ctx context.Context, driverID int64) (decimal.Decimal, error)
	InsertDirectPayment(ctx context.Context, p DirectPayment) (DirectPayment, error)
	ListDirectPayments(ctx context.Context, driverID int64, from, to *time.Time) ([]DirectPayment, error)
	DeleteDirectPayment(ctx context.Context, id int64) (DirectPayment, error)
	GetBossPayment(ctx context.Context, id int64) (BossPayment, error)
	ListBossPayments(ctx context.Context, filter BossPaymentFilter) ([]BossPayment, error)
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	LockDriver(ctx context.Context, driverID int64) error
	InsertBossPayment(ctx context.Context, p BossPayment) (BossPayment, error)
	GetBossPaymentForUpdate(ctx context.Context, id int64) (BossPayment, error)
	UpdateBossPaymentStatus(ctx context.Context, id int64, status PaymentStatus) error
}

// Repository persists settlement records in PostgreSQL.
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

func (r *Repository) DirectPaymentSum(ctx context.Context, driverID int64, from, to *time.Time) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM direct_payments WHERE driver_id=$1`
	args := []any{driverID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	var sum decimal.Decimal
	err := r.pool.QueryRow(ctx, query, args...).Scan(&sum)
	return sum, err
}

func (r *Repository) ApprovedBossPaymentSum(ctx context.Context, driverID int64) (decimal.Decimal, error) {
	return r.bossPaymentSum(ctx, driverID, PaymentApproved)
}

func (r *Repository) PendingBossPaymentSum(ctx context.Context, driverID int64) (decimal.Decimal, error) {
	return r.bossPaymentSum(ctx, driverID, PaymentPending)
}

func (r *Repository) bossPaymentSum(ctx context.Context, driverID int64, status PaymentStatus) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM boss_payments
WHERE driver_id=$1 AND status=$2`, driverID, string(status)).Scan(&sum)
	return sum, err
}

const directPaymentColumns = `id, driver_id, amount, payment_type, reason, created_by, created_at`

func (r *Repository) InsertDirectPayment(ctx context.Context, p DirectPayment) (DirectPayment, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO direct_payments (driver_id, amount, payment_type, reason, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING id, created_at`,
		p.DriverID, p.Amount, p.PaymentType, p.Reason, p.CreatedBy).Scan(&p.ID, &p.CreatedAt)
	return p, err
}

func (r *Repository) ListDirectPayments(ctx context.Context, driverID int64, from, to *time.Time) ([]DirectPayment, error) {
	query := `SELECT ` + directPaymentColumns + ` FROM direct_payments WHERE driver_id=$1`
	args := []any{driverID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []DirectPayment{}
	for rows.Next() {
		var p DirectPayment
		if err := rows.Scan(&p.ID, &p.DriverID, &p.Amount, &p.PaymentType, &p.Reason, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *Repository) DeleteDirectPayment(ctx context.Context, id int64) (DirectPayment, error) {
	var p DirectPayment
	err := r.pool.QueryRow(ctx, `DELETE FROM direct_payments WHERE id=$1
RETURNING `+directPaymentColumns, id).
		Scan(&p.ID, &p.DriverID, &p.Amount, &p.PaymentType, &p.Reason, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DirectPayment{}, fmt.Errorf("%w: direct payment %d", shared.ErrNotFound, id)
		}
		return DirectPayment{}, err
	}
	return p, nil
}

const bossPaymentColumns = `id, driver_id, amount, reason, status, created_at, updated_at, approved_at`

// BossPaymentFilter narrows boss payment listings. All fields are optional.
type BossPaymentFilter struct {
	DriverID *int64
	Status   *PaymentStatus
	From     *time.Time
	To       *time.Time
}

func (r *Repository) GetBossPayment(ctx context.Context, id int64) (BossPayment, error) {
	return scanBossPayment(r.pool.QueryRow(ctx, `SELECT `+bossPaymentColumns+` FROM boss_payments WHERE id=$1`, id), id)
}

func (r *Repository) ListBossPayments(ctx context.Context, filter BossPaymentFilter) ([]BossPayment, error) {
	query := `SELECT ` + bossPaymentColumns + ` FROM boss_payments WHERE 1=1`
	args := []any{}
	if filter.DriverID != nil {
		args = append(args, *filter.DriverID)
		query += fmt.Sprintf(" AND driver_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []BossPayment{}
	for rows.Next() {
		p, err := scanBossPayment(rows, 0)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *txRepository) LockDriver(ctx context.Context, driverID int64) error {
	return shared.LockDriver(ctx, r.tx, driverID)
}

func (r *txRepository) InsertBossPayment(ctx context.Context, p BossPayment) (BossPayment, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO boss_payments (driver_id, amount, reason, status, created_at, updated_at, approved_at)
VALUES ($1, $2, $3, $4, NOW(), NOW(), CASE WHEN $4 = 'APPROVED' THEN NOW() END)
RETURNING id, created_at, updated_at, approved_at`,
		p.DriverID, p.Amount, p.Reason, string(p.Status)).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt, &p.ApprovedAt)
	return p, err
}

func (r *txRepository) GetBossPaymentForUpdate(ctx context.Context, id int64) (BossPayment, error) {
	return scanBossPayment(r.tx.QueryRow(ctx, `SELECT `+bossPaymentColumns+` FROM boss_payments WHERE id=$1 FOR UPDATE`, id), id)
}

func (r *txRepository) UpdateBossPaymentStatus(ctx context.Context, id int64, status PaymentStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE boss_payments SET status=$2, updated_at=NOW(),
approved_at = CASE WHEN $2 = 'APPROVED' THEN NOW() ELSE approved_at END
WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: boss payment %d", shared.ErrNotFound, id)
	}
	return nil
}

func scanBossPayment(row pgx.Row, id int64) (BossPayment, error) {
	var p BossPayment
	var status string
	err := row.Scan(&p.ID, &p.DriverID, &p.Amount, &p.Reason, &status, &p.CreatedAt, &p.UpdatedAt, &p.ApprovedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BossPayment{}, fmt.Errorf("%w: boss payment %d", shared.ErrNotFound, id)
		}
		return BossPayment{}, err
	}
	p.Status = PaymentStatus(status)
	return p, nil
}
