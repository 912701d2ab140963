package ledger

import (
	"errors"
	"time"
)

// VoucherType enumerates documents that post to the stock ledger.
type VoucherType string

const (
	VoucherStockEntry      VoucherType = "STOCK_ENTRY"
	VoucherDeliveryNote    VoucherType = "DELIVERY_NOTE"
	VoucherPurchaseReceipt VoucherType = "PURCHASE_RECEIPT"
	VoucherPOSInvoice      VoucherType = "POS_INVOICE"
)

// Valid reports whether the voucher type is one of the known documents.
func (t VoucherType) Valid() bool {
	switch t {
	case VoucherStockEntry, VoucherDeliveryNote, VoucherPurchaseReceipt, VoucherPOSInvoice:
		return true
	}
	return false
}

// Entry is a single immutable row of the stock ledger. Quantity is signed:
// positive for receipts, negative for issues. Cancelled rows are kept for
// the audit trail but excluded from every balance.
type Entry struct {
	ID          int64
	ItemID      int64
	WarehouseID int64
	PostedAt    time.Time
	VoucherType VoucherType
	VoucherNo   string
	Qty         float64
	Rate        float64
	ValueDiff   float64
	Batch       string
	Cancelled   bool
	CreatedBy   int64
	CreatedAt   time.Time
}

// Line is one movement requested by a posting document.
type Line struct {
	ItemID      int64
	WarehouseID int64
	Qty         float64
	Rate        float64
	Batch       string
}

// PostInput carries all lines of one voucher. Lines post atomically.
type PostInput struct {
	VoucherType VoucherType
	VoucherNo   string
	PostedAt    time.Time
	Lines       []Line
	ActorID     int64
}

// Balance summarises stock of one item in one warehouse.
type Balance struct {
	ItemID      int64   `json:"item_id"`
	WarehouseID int64   `json:"warehouse_id"`
	Qty         float64 `json:"qty"`
	Value       float64 `json:"value"`
}

// StockCardFilter filters ledger entries for the stock card listing.
type StockCardFilter struct {
	ItemID      int64
	WarehouseID int64
	From        time.Time
	To          time.Time
	Limit       int
}

var (
	// ErrInvalidQuantity indicates a zero quantity line.
	ErrInvalidQuantity = errors.New("ledger: quantity must be non zero")
	// ErrInvalidRate indicates a negative valuation rate.
	ErrInvalidRate = errors.New("ledger: rate must be >= 0")
	// ErrInsufficientStock triggered when an issue would drive stock negative.
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
	// ErrAlreadyCancelled indicates the voucher has no live entries left.
	ErrAlreadyCancelled = errors.New("ledger: voucher already cancelled")
	// ErrVoucherRequired indicates a missing voucher reference.
	ErrVoucherRequired = errors.New("ledger: voucher type and number required")
)
