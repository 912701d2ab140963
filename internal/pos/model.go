// Package pos implements point of sale invoices: immediate counter sales
// that ship stock and collect payment in one document.
package pos

import (
	"errors"
	"math"
	"time"
)

// Status is the invoice lifecycle state. A submitted POS invoice is paid
// by definition.
type Status string

const (
	StatusDraft     Status = "Draft"
	StatusPaid      Status = "Paid"
	StatusCancelled Status = "Cancelled"
)

// PaymentMode enumerates accepted tender types.
type PaymentMode string

const (
	PayCash     PaymentMode = "Cash"
	PayCard     PaymentMode = "Card"
	PayEdahabia PaymentMode = "Edahabia"
)

// Valid reports whether the payment mode is known.
func (m PaymentMode) Valid() bool {
	switch m {
	case PayCash, PayCard, PayEdahabia:
		return true
	}
	return false
}

// Invoice is one counter sale. Submitting it posts issues at cost basis,
// captures the profit of the sale and marks it Paid.
type Invoice struct {
	ID           int64      `json:"id"`
	InvoiceNo    string     `json:"invoice_no"`
	CustomerID   *int64     `json:"customer_id,omitempty"`
	WarehouseID  int64      `json:"warehouse_id"`
	PostingDate  time.Time  `json:"posting_date"`
	Status       Status     `json:"status"`
	TotalAmount  float64    `json:"total_amount"`
	RoundedTotal float64    `json:"rounded_total"`
	TotalCost    float64    `json:"total_cost"`
	Profit       float64    `json:"profit"`
	Margin       float64    `json:"margin"`
	PaidAmount   float64    `json:"paid_amount"`
	ChangeAmount float64    `json:"change_amount"`
	Lines        []Line     `json:"lines"`
	Payments     []Payment  `json:"payments"`
	CreatedBy    int64      `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

// Line is one sold item. CostRate is the valuation rate captured at
// submit time so the sale's profit survives later price changes.
type Line struct {
	ID        int64   `json:"id"`
	InvoiceID int64   `json:"invoice_id"`
	ItemID    int64   `json:"item_id"`
	Qty       float64 `json:"qty"`
	Rate      float64 `json:"rate"`
	Amount    float64 `json:"amount"`
	CostRate  float64 `json:"cost_rate"`
}

// Payment is one tender row.
type Payment struct {
	ID        int64       `json:"id"`
	InvoiceID int64       `json:"invoice_id"`
	Mode      PaymentMode `json:"mode"`
	Amount    float64     `json:"amount"`
}

// RoundTotal rounds an invoice total to the nearest whole dinar.
func RoundTotal(total float64) float64 {
	return math.Round(total)
}

var (
	// ErrNotFound indicates a missing invoice.
	ErrNotFound = errors.New("pos: invoice not found")
	// ErrInvalidInvoice indicates a validation failure.
	ErrInvalidInvoice = errors.New("pos: invalid invoice")
	// ErrInvalidState indicates a lifecycle action on the wrong status.
	ErrInvalidState = errors.New("pos: invalid invoice state")
	// ErrUnderpaid indicates payments below the rounded total.
	ErrUnderpaid = errors.New("pos: payments do not cover the total")
)
