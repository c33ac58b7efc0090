package model

import "time"

// Part is an inventory item. Quantity is the stock on hand; MinQuantity is
// the reorder threshold used for low-stock filtering and events.
type Part struct {
    ID            uint64    `json:"id"`
    SKU           string    `json:"sku"`
    Name          string    `json:"name"`
    Description   string    `json:"description"`
    Quantity      uint32    `json:"quantity"`
    MinQuantity   uint32    `json:"min_quantity"`
    UnitCostCents uint64    `json:"unit_cost_cents"`
    CreatedAt     time.Time `json:"created_at"`
    UpdatedAt     time.Time `json:"updated_at"`
}

// LowStock reports whether the part is at or below its reorder threshold.
func (p Part) LowStock() bool { return p.Quantity <= p.MinQuantity }
