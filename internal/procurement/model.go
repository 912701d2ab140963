// Package procurement implements purchase orders and purchase receipts.
// Receipts are the documents that bring supplier stock into a warehouse.
package procurement

import (
	"errors"
	"time"
)

// OrderStatus follows the purchase order through its lifecycle.
type OrderStatus string

const (
	OrderDraft             OrderStatus = "Draft"
	OrderOrdered           OrderStatus = "Ordered"
	OrderPartiallyReceived OrderStatus = "Partially Received"
	OrderCompleted         OrderStatus = "Completed"
	OrderCancelled         OrderStatus = "Cancelled"
)

// ReceiptStatus is the purchase receipt lifecycle state.
type ReceiptStatus string

const (
	ReceiptDraft     ReceiptStatus = "Draft"
	ReceiptSubmitted ReceiptStatus = "Submitted"
	ReceiptCancelled ReceiptStatus = "Cancelled"
)

// PurchaseOrder is a supplier commitment. Receipts draw against it.
type PurchaseOrder struct {
	ID              int64       `json:"id"`
	OrderNo         string      `json:"order_no"`
	SupplierID      int64       `json:"supplier_id"`
	OrderDate       time.Time   `json:"order_date"`
	ExpectedReceipt *time.Time  `json:"expected_receipt,omitempty"`
	Status          OrderStatus `json:"status"`
	Remarks         string      `json:"remarks,omitempty"`
	TotalAmount     float64     `json:"total_amount"`
	Lines           []OrderLine `json:"lines"`
	CreatedBy       int64       `json:"created_by"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	SubmittedAt     *time.Time  `json:"submitted_at,omitempty"`
	CancelledAt     *time.Time  `json:"cancelled_at,omitempty"`
}

// OrderLine is one ordered item. ReceivedQty accumulates from receipts.
type OrderLine struct {
	ID          int64   `json:"id"`
	OrderID     int64   `json:"order_id"`
	ItemID      int64   `json:"item_id"`
	Qty         float64 `json:"qty"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
	ReceivedQty float64 `json:"received_qty"`
}

// FullyReceived reports whether the line needs no further receipt.
func (l OrderLine) FullyReceived() bool {
	return l.ReceivedQty >= l.Qty-0.0001
}

// PurchaseReceipt books part or all of a purchase order into a warehouse.
// Submitting it posts receipt entries at the purchase rate.
type PurchaseReceipt struct {
	ID          int64         `json:"id"`
	ReceiptNo   string        `json:"receipt_no"`
	OrderID     int64         `json:"order_id"`
	SupplierID  int64         `json:"supplier_id"`
	WarehouseID int64         `json:"warehouse_id"`
	PostingDate time.Time     `json:"posting_date"`
	Status      ReceiptStatus `json:"status"`
	Remarks     string        `json:"remarks,omitempty"`
	TotalAmount float64       `json:"total_amount"`
	Lines       []ReceiptLine `json:"lines"`
	CreatedBy   int64         `json:"created_by"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	SubmittedAt *time.Time    `json:"submitted_at,omitempty"`
	CancelledAt *time.Time    `json:"cancelled_at,omitempty"`
}

// ReceiptLine is one received item at its purchase rate.
type ReceiptLine struct {
	ID        int64   `json:"id"`
	ReceiptID int64   `json:"receipt_id"`
	ItemID    int64   `json:"item_id"`
	Qty       float64 `json:"qty"`
	Rate      float64 `json:"rate"`
	Amount    float64 `json:"amount"`
}

var (
	// ErrOrderNotFound indicates a missing purchase order.
	ErrOrderNotFound = errors.New("procurement: purchase order not found")
	// ErrReceiptNotFound indicates a missing purchase receipt.
	ErrReceiptNotFound = errors.New("procurement: purchase receipt not found")
	// ErrInvalidDocument indicates a validation failure.
	ErrInvalidDocument = errors.New("procurement: invalid document")
	// ErrInvalidState indicates a lifecycle action on the wrong status.
	ErrInvalidState = errors.New("procurement: invalid document state")
	// ErrOverReceipt indicates a quantity beyond the order's open amount.
	ErrOverReceipt = errors.New("procurement: quantity exceeds ordered amount")
)
