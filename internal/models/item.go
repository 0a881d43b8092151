package models

import "time"

// Item is an inventory record; all writes flow through tracked sessions so
// every change lands in the audit trail.
type Item struct {
	ID        int64     `db:"id" json:"id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Quantity  int       `db:"quantity" json:"quantity"`
	UnitPrice float64   `db:"unit_price" json:"unit_price"`
	Location  string    `db:"location" json:"location"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at" audit:"-"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at" audit:"-"`
}

// TableName names the backing table for the tracker.
func (Item) TableName() string { return "items" }

// ItemFilter constrains item listing queries.
type ItemFilter struct {
	Search   string
	Location string
	Active   *bool
	Limit    int
	Offset   int
}
