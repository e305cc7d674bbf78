package catalog

import "time"

// Product represents a sellable product and its shared (unassigned) stock pool.
type Product struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	TotalQuantity int64     `json:"total_quantity"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
