// Package delivery implements delivery notes: the documents that actually
// move ordered stock out of a warehouse.
package delivery

import (
	"errors"
	"time"
)

// Status is the document lifecycle state.
type Status string

const (
	StatusDraft     Status = "Draft"
	StatusSubmitted Status = "Submitted"
	StatusCancelled Status = "Cancelled"
)

// DeliveryNote ships part or all of a submitted sales order from one
// warehouse. Submitting it posts issues to the stock ledger at cost basis
// and advances the order's fulfillment.
type DeliveryNote struct {
	ID          int64      `json:"id"`
	NoteNo      string     `json:"note_no"`
	OrderID     int64      `json:"order_id"`
	CustomerID  int64      `json:"customer_id"`
	WarehouseID int64      `json:"warehouse_id"`
	PostingDate time.Time  `json:"posting_date"`
	Status      Status     `json:"status"`
	Remarks     string     `json:"remarks,omitempty"`
	TotalAmount float64    `json:"total_amount"`
	Lines       []Line     `json:"lines"`
	CreatedBy   int64      `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// Line is one shipped item. Rate is the selling rate agreed on the order;
// the ledger posting values the issue at cost basis instead.
type Line struct {
	ID     int64   `json:"id"`
	NoteID int64   `json:"note_id"`
	ItemID int64   `json:"item_id"`
	Qty    float64 `json:"qty"`
	Rate   float64 `json:"rate"`
	Amount float64 `json:"amount"`
	Batch  string  `json:"batch,omitempty"`
}

var (
	// ErrNotFound indicates a missing delivery note.
	ErrNotFound = errors.New("delivery: delivery note not found")
	// ErrInvalidNote indicates a validation failure.
	ErrInvalidNote = errors.New("delivery: invalid delivery note")
	// ErrInvalidState indicates a lifecycle action on the wrong status.
	ErrInvalidState = errors.New("delivery: invalid document state")
	// ErrOverDelivery indicates a quantity beyond the order's open amount.
	ErrOverDelivery = errors.New("delivery: quantity exceeds ordered amount")
)
