package items

import (
	"time"
)

// Item represents a stock item entity
type Item struct {
	ID               int64     `json:"id"`
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	UOM              string    `json:"uom"`
	Category         string    `json:"category"`
	ReorderLevel     float64   `json:"reorder_level"`
	MinimumLevel     float64   `json:"minimum_level"`
	ValuationRate    float64   `json:"valuation_rate"`
	LastPurchaseRate float64   `json:"last_purchase_rate"`
	Disabled         bool      `json:"disabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
