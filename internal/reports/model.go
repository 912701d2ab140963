// Package reports serves read-only inventory reporting across modules.
package reports

import "time"

// StockBalanceRow is one item/warehouse pair with live stock.
type StockBalanceRow struct {
	ItemID        int64   `json:"item_id"`
	ItemCode      string  `json:"item_code"`
	ItemName      string  `json:"item_name"`
	WarehouseID   int64   `json:"warehouse_id"`
	WarehouseName string  `json:"warehouse_name"`
	Qty           float64 `json:"qty"`
	Value         float64 `json:"value"`
	AvgRate       float64 `json:"avg_rate"`
}

// MovementRow is one ledger entry enriched with master data names.
type MovementRow struct {
	EntryID       int64     `json:"entry_id"`
	ItemID        int64     `json:"item_id"`
	ItemCode      string    `json:"item_code"`
	WarehouseID   int64     `json:"warehouse_id"`
	WarehouseName string    `json:"warehouse_name"`
	PostedAt      time.Time `json:"posted_at"`
	VoucherType   string    `json:"voucher_type"`
	VoucherNo     string    `json:"voucher_no"`
	Qty           float64   `json:"qty"`
	Rate          float64   `json:"rate"`
	ValueDiff     float64   `json:"value_diff"`
}

// MovementSummary aggregates inbound and outbound quantities over the
// filtered period.
type MovementSummary struct {
	QtyIn    float64 `json:"qty_in"`
	QtyOut   float64 `json:"qty_out"`
	NetQty   float64 `json:"net_qty"`
	NetValue float64 `json:"net_value"`
}

// LowStockRow is an item whose total stock sits below its reorder level.
type LowStockRow struct {
	ItemID       int64   `json:"item_id"`
	ItemCode     string  `json:"item_code"`
	ItemName     string  `json:"item_name"`
	Qty          float64 `json:"qty"`
	ReorderLevel float64 `json:"reorder_level"`
	Shortfall    float64 `json:"shortfall"`
}

// Overview bundles the headline figures for the dashboard.
type Overview struct {
	ItemCount          int     `json:"item_count"`
	WarehouseCount     int     `json:"warehouse_count"`
	StockValue         float64 `json:"stock_value"`
	LowStockItems      int     `json:"low_stock_items"`
	OpenSalesOrders    int     `json:"open_sales_orders"`
	OpenPurchaseOrders int     `json:"open_purchase_orders"`
}

// MovementFilter narrows the movement listing.
type MovementFilter struct {
	ItemID      int64
	WarehouseID int64
	From        time.Time
	To          time.Time
	Limit       int
}
