package orders

import "time"

type CreateOrderRequest struct {
	CustomerID       int64              `json:"customer_id" validate:"required,gt=0"`
	OrderDate        time.Time          `json:"order_date"`
	ExpectedDelivery *time.Time         `json:"expected_delivery,omitempty"`
	Remarks          string             `json:"remarks,omitempty"`
	Lines            []OrderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// OrderLineRequest carries one requested line. A zero rate asks the price
// list for the applicable selling rate.
type OrderLineRequest struct {
	ItemID int64   `json:"item_id" validate:"required,gt=0"`
	Qty    float64 `json:"qty" validate:"required,gt=0"`
	Rate   float64 `json:"rate" validate:"gte=0"`
}

type ListOrdersRequest struct {
	Page       int
	Limit      int
	CustomerID int64
	Status     Status
}

// SubmitResult pairs the submitted order with advisory stock warnings.
// Shortages do not block submission; delivery enforces availability.
type SubmitResult struct {
	Order    *SalesOrder `json:"order"`
	Warnings []string    `json:"warnings,omitempty"`
}
