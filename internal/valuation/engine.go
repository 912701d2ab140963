// Package valuation maintains the weighted-average valuation rate of items.
package valuation

import (
	"context"
	"errors"
)

// LedgerPort reads aggregate stock figures from the ledger.
type LedgerPort interface {
	ItemTotals(ctx context.Context, itemID int64) (qty, value float64, err error)
}

// ItemStore reads and persists per-item rate snapshots.
type ItemStore interface {
	ValuationRate(ctx context.Context, itemID int64) (float64, error)
	SetValuationRate(ctx context.Context, itemID int64, rate float64) error
	SetLastPurchaseRate(ctx context.Context, itemID int64, rate float64) error
}

// Engine recomputes valuation rates from the ledger.
type Engine struct {
	ledger LedgerPort
	items  ItemStore
}

// NewEngine builds the valuation engine.
func NewEngine(ledger LedgerPort, items ItemStore) *Engine {
	return &Engine{ledger: ledger, items: items}
}

// ErrInvalidItem indicates a missing item reference.
var ErrInvalidItem = errors.New("valuation: item required")

// Recalculate recomputes the weighted-average rate of an item as total
// stock value divided by total quantity over live ledger entries. When no
// stock remains the previous rate is kept, so the next receipt does not
// start from zero.
func (e *Engine) Recalculate(ctx context.Context, itemID int64) (float64, error) {
	if itemID == 0 {
		return 0, ErrInvalidItem
	}
	qty, value, err := e.ledger.ItemTotals(ctx, itemID)
	if err != nil {
		return 0, err
	}
	if qty <= 0.0001 {
		return e.items.ValuationRate(ctx, itemID)
	}
	rate := value / qty
	if rate < 0 {
		rate = 0
	}
	if err := e.items.SetValuationRate(ctx, itemID, rate); err != nil {
		return 0, err
	}
	return rate, nil
}

// RecordPurchase stores the most recent purchase rate of an item.
func (e *Engine) RecordPurchase(ctx context.Context, itemID int64, rate float64) error {
	if itemID == 0 {
		return ErrInvalidItem
	}
	if rate < 0 {
		return errors.New("valuation: purchase rate must be >= 0")
	}
	return e.items.SetLastPurchaseRate(ctx, itemID, rate)
}

// CostBasis returns the rate used to value issues of an item.
func (e *Engine) CostBasis(ctx context.Context, itemID int64) (float64, error) {
	if itemID == 0 {
		return 0, ErrInvalidItem
	}
	return e.items.ValuationRate(ctx, itemID)
}
