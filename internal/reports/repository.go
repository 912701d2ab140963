package reports

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the reporting queries. All reads go straight to the
// ledger and master tables; reports never cache.
type Repository interface {
	StockBalance(ctx context.Context, warehouseID int64) ([]StockBalanceRow, error)
	ItemMovement(ctx context.Context, filter MovementFilter) ([]MovementRow, error)
	MovementSummary(ctx context.Context, filter MovementFilter) (MovementSummary, error)
	LowStock(ctx context.Context) ([]LowStockRow, error)
	Counts(ctx context.Context) (items, warehouses int, err error)
	StockValue(ctx context.Context) (float64, error)
	OpenOrderCounts(ctx context.Context) (sales, purchase int, err error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) StockBalance(ctx context.Context, warehouseID int64) ([]StockBalanceRow, error) {
	query := `SELECT e.item_id, i.code, i.name, e.warehouse_id, w.name,
	SUM(e.qty) AS qty, SUM(e.value_diff) AS value
FROM stock_ledger_entries e
JOIN items i ON i.id = e.item_id
JOIN warehouses w ON w.id = e.warehouse_id
WHERE NOT e.cancelled`
	args := []any{}
	if warehouseID > 0 {
		args = append(args, warehouseID)
		query += ` AND e.warehouse_id=$` + strconv.Itoa(len(args))
	}
	query += ` GROUP BY e.item_id, i.code, i.name, e.warehouse_id, w.name
HAVING ABS(SUM(e.qty)) > 0.0001
ORDER BY i.code, w.name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []StockBalanceRow{}
	for rows.Next() {
		var row StockBalanceRow
		if err := rows.Scan(&row.ItemID, &row.ItemCode, &row.ItemName, &row.WarehouseID, &row.WarehouseName, &row.Qty, &row.Value); err != nil {
			return nil, err
		}
		if row.Qty != 0 {
			row.AvgRate = row.Value / row.Qty
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *repository) ItemMovement(ctx context.Context, filter MovementFilter) ([]MovementRow, error) {
	query := `SELECT e.id, e.item_id, i.code, e.warehouse_id, w.name, e.posted_at, e.voucher_type, e.voucher_no, e.qty, e.rate, e.value_diff
FROM stock_ledger_entries e
JOIN items i ON i.id = e.item_id
JOIN warehouses w ON w.id = e.warehouse_id
WHERE NOT e.cancelled`
	args := []any{}
	if filter.ItemID > 0 {
		args = append(args, filter.ItemID)
		query += ` AND e.item_id=$` + strconv.Itoa(len(args))
	}
	if filter.WarehouseID > 0 {
		args = append(args, filter.WarehouseID)
		query += ` AND e.warehouse_id=$` + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND e.posted_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += ` AND e.posted_at <= $` + strconv.Itoa(len(args))
	}
	limit := filter.Limit
	if limit < 1 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += ` ORDER BY e.posted_at DESC, e.id DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []MovementRow{}
	for rows.Next() {
		var row MovementRow
		if err := rows.Scan(&row.EntryID, &row.ItemID, &row.ItemCode, &row.WarehouseID, &row.WarehouseName,
			&row.PostedAt, &row.VoucherType, &row.VoucherNo, &row.Qty, &row.Rate, &row.ValueDiff); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *repository) MovementSummary(ctx context.Context, filter MovementFilter) (MovementSummary, error) {
	query := `SELECT
	COALESCE(SUM(CASE WHEN e.qty > 0 THEN e.qty ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN e.qty < 0 THEN -e.qty ELSE 0 END), 0),
	COALESCE(SUM(e.qty), 0),
	COALESCE(SUM(e.value_diff), 0)
FROM stock_ledger_entries e
WHERE NOT e.cancelled`
	args := []any{}
	if filter.ItemID > 0 {
		args = append(args, filter.ItemID)
		query += ` AND e.item_id=$` + strconv.Itoa(len(args))
	}
	if filter.WarehouseID > 0 {
		args = append(args, filter.WarehouseID)
		query += ` AND e.warehouse_id=$` + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND e.posted_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += ` AND e.posted_at <= $` + strconv.Itoa(len(args))
	}

	var summary MovementSummary
	err := r.pool.QueryRow(ctx, query, args...).Scan(&summary.QtyIn, &summary.QtyOut, &summary.NetQty, &summary.NetValue)
	return summary, err
}

func (r *repository) LowStock(ctx context.Context) ([]LowStockRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.code, i.name, COALESCE(SUM(e.qty), 0) AS qty, i.reorder_level
FROM items i
LEFT JOIN stock_ledger_entries e ON e.item_id = i.id AND NOT e.cancelled
WHERE NOT i.disabled AND i.reorder_level > 0
GROUP BY i.id, i.code, i.name, i.reorder_level
HAVING COALESCE(SUM(e.qty), 0) < i.reorder_level
ORDER BY i.reorder_level - COALESCE(SUM(e.qty), 0) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LowStockRow{}
	for rows.Next() {
		var row LowStockRow
		if err := rows.Scan(&row.ItemID, &row.ItemCode, &row.ItemName, &row.Qty, &row.ReorderLevel); err != nil {
			return nil, err
		}
		row.Shortfall = row.ReorderLevel - row.Qty
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *repository) Counts(ctx context.Context) (int, int, error) {
	var items, warehouses int
	err := r.pool.QueryRow(ctx, `SELECT
	(SELECT COUNT(*) FROM items WHERE NOT disabled),
	(SELECT COUNT(*) FROM warehouses WHERE NOT disabled)`).Scan(&items, &warehouses)
	return items, warehouses, err
}

func (r *repository) StockValue(ctx context.Context) (float64, error) {
	var value float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(value_diff), 0) FROM stock_ledger_entries WHERE NOT cancelled`).Scan(&value)
	return value, err
}

func (r *repository) OpenOrderCounts(ctx context.Context) (int, int, error) {
	var sales, purchase int
	err := r.pool.QueryRow(ctx, `SELECT
	(SELECT COUNT(*) FROM sales_orders WHERE status IN ('Ordered', 'Partially Delivered')),
	(SELECT COUNT(*) FROM purchase_orders WHERE status IN ('Ordered', 'Partially Received'))`).Scan(&sales, &purchase)
	return sales, purchase, err
}
