package drivers

import "time"

// Driver is a field agent who carries physical stock and fulfills orders.
// Quantities are never stored on the driver; they are derived by the
// inventory ledger.
type Driver struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	LinkedUserID *int64    `json:"linked_user_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
