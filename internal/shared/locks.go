package shared

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Advisory lock namespaces. Each critical section uses its own class so lock
// ids cannot collide across entity types.
const (
	lockClassDriver  = int32(4201)
	lockClassProduct = int32(4202)
)

// LockDriver serializes availability-check-then-write sections for one driver.
// The lock is transaction scoped and released automatically on commit/rollback.
func LockDriver(ctx context.Context, tx pgx.Tx, driverID int64) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, lockClassDriver, int32(driverID))
	return err
}

// LockProduct serializes mutations of a product's shared stock pool.
func LockProduct(ctx context.Context, tx pgx.Tx, productID int64) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, lockClassProduct, int32(productID))
	return err
}
