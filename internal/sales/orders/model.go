// Package orders implements sales orders and their fulfillment state.
package orders

import (
	"errors"
	"time"
)

// Status follows the order through its lifecycle. Delivery notes move a
// submitted order between Ordered, Partially Delivered and Completed.
type Status string

const (
	StatusDraft              Status = "Draft"
	StatusOrdered            Status = "Ordered"
	StatusPartiallyDelivered Status = "Partially Delivered"
	StatusCompleted          Status = "Completed"
	StatusCancelled          Status = "Cancelled"
)

// SalesOrder is a customer commitment. It never touches the stock ledger
// itself; only delivery notes move stock.
type SalesOrder struct {
	ID               int64      `json:"id"`
	OrderNo          string     `json:"order_no"`
	CustomerID       int64      `json:"customer_id"`
	OrderDate        time.Time  `json:"order_date"`
	ExpectedDelivery *time.Time `json:"expected_delivery,omitempty"`
	Status           Status     `json:"status"`
	Remarks          string     `json:"remarks,omitempty"`
	TotalAmount      float64    `json:"total_amount"`
	Lines            []Line     `json:"lines"`
	CreatedBy        int64      `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
}

// Line is one ordered item. DeliveredQty accumulates from delivery notes.
type Line struct {
	ID           int64   `json:"id"`
	OrderID      int64   `json:"order_id"`
	ItemID       int64   `json:"item_id"`
	Qty          float64 `json:"qty"`
	Rate         float64 `json:"rate"`
	Amount       float64 `json:"amount"`
	DeliveredQty float64 `json:"delivered_qty"`
}

// FullyDelivered reports whether the line needs no further delivery.
func (l Line) FullyDelivered() bool {
	return l.DeliveredQty >= l.Qty-0.0001
}

var (
	// ErrNotFound indicates a missing sales order.
	ErrNotFound = errors.New("orders: sales order not found")
	// ErrInvalidOrder indicates a validation failure.
	ErrInvalidOrder = errors.New("orders: invalid sales order")
	// ErrInvalidState indicates a lifecycle action on the wrong status.
	ErrInvalidState = errors.New("orders: invalid order state")
)
