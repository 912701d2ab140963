// Package stockentry implements warehouse movement documents: receipts,
// issues, transfers, manufacture outputs and direct purchases.
package stockentry

import (
	"errors"
	"time"
)

// EntryType classifies a stock entry.
type EntryType string

const (
	TypeReceipt     EntryType = "Receipt"
	TypeIssue       EntryType = "Issue"
	TypeTransfer    EntryType = "Transfer"
	TypeManufacture EntryType = "Manufacture"
	TypePurchase    EntryType = "Purchase"
)

// Valid reports whether the entry type is known.
func (t EntryType) Valid() bool {
	switch t {
	case TypeReceipt, TypeIssue, TypeTransfer, TypeManufacture, TypePurchase:
		return true
	}
	return false
}

// Receives reports whether the type adds stock to the target warehouse.
func (t EntryType) Receives() bool {
	switch t {
	case TypeReceipt, TypeManufacture, TypePurchase, TypeTransfer:
		return true
	}
	return false
}

// Issues reports whether the type removes stock from the source warehouse.
func (t EntryType) Issues() bool {
	return t == TypeIssue || t == TypeTransfer
}

// Status is the document lifecycle state.
type Status string

const (
	StatusDraft     Status = "Draft"
	StatusSubmitted Status = "Submitted"
	StatusCancelled Status = "Cancelled"
)

// StockEntry is a draft-first movement document. Only submitting it touches
// the stock ledger.
type StockEntry struct {
	ID                int64      `json:"id"`
	EntryNo           string     `json:"entry_no"`
	EntryType         EntryType  `json:"entry_type"`
	SourceWarehouseID *int64     `json:"source_warehouse_id,omitempty"`
	TargetWarehouseID *int64     `json:"target_warehouse_id,omitempty"`
	PostingDate       time.Time  `json:"posting_date"`
	Status            Status     `json:"status"`
	Remarks           string     `json:"remarks,omitempty"`
	TotalAmount       float64    `json:"total_amount"`
	Lines             []Line     `json:"lines"`
	CreatedBy         int64      `json:"created_by"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	SubmittedAt       *time.Time `json:"submitted_at,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
}

// Line is one item row of a stock entry. Rate is the valuation rate for
// received stock; issue rows with a zero rate are valued at cost basis when
// the entry is submitted.
type Line struct {
	ID      int64   `json:"id"`
	EntryID int64   `json:"entry_id"`
	ItemID  int64   `json:"item_id"`
	Qty     float64 `json:"qty"`
	Rate    float64 `json:"rate"`
	Amount  float64 `json:"amount"`
	Batch   string  `json:"batch,omitempty"`
}

var (
	// ErrInvalidEntry indicates a validation failure on the document.
	ErrInvalidEntry = errors.New("stockentry: invalid stock entry")
	// ErrInvalidState indicates a lifecycle action on the wrong status.
	ErrInvalidState = errors.New("stockentry: invalid document state")
	// ErrNotFound indicates a missing stock entry.
	ErrNotFound = errors.New("stockentry: stock entry not found")
)
