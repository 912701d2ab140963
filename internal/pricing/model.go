package pricing

import (
	"errors"
	"time"
)

// ItemPrice defines one rate for an item, optionally scoped to a customer
// (selling) or a supplier (buying) and to a validity window.
type ItemPrice struct {
	ID         int64      `json:"id"`
	ItemID     int64      `json:"item_id"`
	CustomerID *int64     `json:"customer_id,omitempty"`
	SupplierID *int64     `json:"supplier_id,omitempty"`
	Rate       float64    `json:"rate"`
	Currency   string     `json:"currency"`
	Selling    bool       `json:"selling"`
	Buying     bool       `json:"buying"`
	IsDefault  bool       `json:"is_default"`
	Enabled    bool       `json:"enabled"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUpto  *time.Time `json:"valid_upto,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// AppliesOn reports whether the price is usable on the given date.
func (p ItemPrice) AppliesOn(on time.Time) bool {
	if !p.Enabled {
		return false
	}
	if p.ValidFrom != nil && on.Before(truncateDay(*p.ValidFrom)) {
		return false
	}
	if p.ValidUpto != nil && on.After(endOfDay(*p.ValidUpto)) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return truncateDay(t).Add(24*time.Hour - time.Nanosecond)
}

var (
	// ErrNoPrice indicates no applicable price was found.
	ErrNoPrice = errors.New("pricing: no applicable price")
	// ErrInvalidPrice indicates validation failure on an item price.
	ErrInvalidPrice = errors.New("pricing: invalid item price")
	// ErrDuplicatePrice indicates an overlapping price already exists.
	ErrDuplicatePrice = errors.New("pricing: overlapping price exists")
	// ErrNotFound indicates a missing item price.
	ErrNotFound = errors.New("pricing: item price not found")
)
