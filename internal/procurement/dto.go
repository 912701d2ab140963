package procurement

import "time"

type CreateOrderRequest struct {
	SupplierID      int64              `json:"supplier_id" validate:"required,gt=0"`
	OrderDate       time.Time          `json:"order_date"`
	ExpectedReceipt *time.Time         `json:"expected_receipt,omitempty"`
	Remarks         string             `json:"remarks,omitempty"`
	Lines           []OrderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// OrderLineRequest carries one requested line. A zero rate asks the price
// list for the supplier's buying rate.
type OrderLineRequest struct {
	ItemID int64   `json:"item_id" validate:"required,gt=0"`
	Qty    float64 `json:"qty" validate:"required,gt=0"`
	Rate   float64 `json:"rate" validate:"gte=0"`
}

type ListOrdersRequest struct {
	Page       int
	Limit      int
	SupplierID int64
	Status     OrderStatus
}

type CreateReceiptRequest struct {
	OrderID     int64                `json:"order_id"`
	WarehouseID int64                `json:"warehouse_id"`
	PostingDate time.Time            `json:"posting_date"`
	Remarks     string               `json:"remarks,omitempty"`
	Lines       []ReceiptLineRequest `json:"lines"`
}

// ReceiptLineRequest is one received quantity. A zero rate falls back to
// the rate agreed on the purchase order.
type ReceiptLineRequest struct {
	ItemID int64   `json:"item_id"`
	Qty    float64 `json:"qty"`
	Rate   float64 `json:"rate"`
}

type ListReceiptsRequest struct {
	Page    int
	Limit   int
	OrderID int64
	Status  ReceiptStatus
}
