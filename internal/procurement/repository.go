package procurement

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderRepository persists purchase orders and their lines.
type OrderRepository interface {
	ListOrders(ctx context.Context, req ListOrdersRequest) ([]PurchaseOrder, int, error)
	GetOrder(ctx context.Context, id int64) (*PurchaseOrder, error)
	CreateOrder(ctx context.Context, order PurchaseOrder) (*PurchaseOrder, error)
	UpdateOrder(ctx context.Context, order PurchaseOrder) error
	SetOrderStatus(ctx context.Context, id int64, status OrderStatus, at time.Time) error
	DeleteOrder(ctx context.Context, id int64) error
	AddReceivedQty(ctx context.Context, orderID, itemID int64, delta float64) error
}

// ReceiptRepository persists purchase receipts and their lines.
type ReceiptRepository interface {
	ListReceipts(ctx context.Context, req ListReceiptsRequest) ([]PurchaseReceipt, int, error)
	GetReceipt(ctx context.Context, id int64) (*PurchaseReceipt, error)
	CreateReceipt(ctx context.Context, receipt PurchaseReceipt) (*PurchaseReceipt, error)
	SetReceiptStatus(ctx context.Context, id int64, status ReceiptStatus, at time.Time) error
	DeleteReceipt(ctx context.Context, id int64) error
}

// Repository combines both document stores.
type Repository interface {
	OrderRepository
	ReceiptRepository
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const poColumns = `id, order_no, supplier_id, order_date, expected_receipt, status, remarks, total_amount, created_by, created_at, updated_at, submitted_at, cancelled_at`
const prColumns = `id, receipt_no, order_id, supplier_id, warehouse_id, posting_date, status, remarks, total_amount, created_by, created_at, updated_at, submitted_at, cancelled_at`

func (r *repository) ListOrders(ctx context.Context, req ListOrdersRequest) ([]PurchaseOrder, int, error) {
	query := `SELECT ` + poColumns + ` FROM purchase_orders WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM purchase_orders WHERE 1=1`
	args := []any{}

	if req.SupplierID > 0 {
		args = append(args, req.SupplierID)
		clause := ` AND supplier_id=$` + strconv.Itoa(len(args))
		query += clause
		countQuery += clause
	}
	if req.Status != "" {
		args = append(args, req.Status)
		clause := ` AND status=$` + strconv.Itoa(len(args))
		query += clause
		countQuery += clause
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, req.Limit, (req.Page-1)*req.Limit)
	query += ` ORDER BY id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []PurchaseOrder{}
	for rows.Next() {
		order, err := scanPO(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repository) GetOrder(ctx context.Context, id int64) (*PurchaseOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, id)
	order, err := scanPO(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	order.Lines, err = r.orderLines(ctx, id)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) CreateOrder(ctx context.Context, order PurchaseOrder) (*PurchaseOrder, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx, `INSERT INTO purchase_orders (order_no, supplier_id, order_date, expected_receipt, status, remarks, total_amount, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9) RETURNING id`,
		order.OrderNo, order.SupplierID, order.OrderDate, order.ExpectedReceipt,
		order.Status, order.Remarks, order.TotalAmount, order.CreatedBy, now).Scan(&order.ID)
	if err != nil {
		return nil, err
	}
	if err := r.insertOrderLines(ctx, order.ID, order.Lines); err != nil {
		return nil, err
	}
	return r.GetOrder(ctx, order.ID)
}

func (r *repository) UpdateOrder(ctx context.Context, order PurchaseOrder) error {
	tag, err := r.pool.Exec(ctx, `UPDATE purchase_orders SET supplier_id=$1, order_date=$2, expected_receipt=$3, remarks=$4, total_amount=$5, updated_at=NOW() WHERE id=$6 AND status=$7`,
		order.SupplierID, order.OrderDate, order.ExpectedReceipt, order.Remarks, order.TotalAmount, order.ID, OrderDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM purchase_order_lines WHERE order_id=$1`, order.ID); err != nil {
		return err
	}
	return r.insertOrderLines(ctx, order.ID, order.Lines)
}

func (r *repository) SetOrderStatus(ctx context.Context, id int64, status OrderStatus, at time.Time) error {
	var query string
	switch status {
	case OrderOrdered:
		query = `UPDATE purchase_orders SET status=$1, submitted_at=COALESCE(submitted_at, $2), updated_at=$2 WHERE id=$3`
	case OrderCancelled:
		query = `UPDATE purchase_orders SET status=$1, cancelled_at=$2, updated_at=$2 WHERE id=$3`
	default:
		query = `UPDATE purchase_orders SET status=$1, updated_at=$2 WHERE id=$3`
	}
	tag, err := r.pool.Exec(ctx, query, status, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *repository) DeleteOrder(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM purchase_order_lines WHERE order_id=$1`, id); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM purchase_orders WHERE id=$1 AND status=$2`, id, OrderDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *repository) AddReceivedQty(ctx context.Context, orderID, itemID int64, delta float64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE purchase_order_lines SET received_qty = received_qty + $1 WHERE order_id=$2 AND item_id=$3`, delta, orderID, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *repository) ListReceipts(ctx context.Context, req ListReceiptsRequest) ([]PurchaseReceipt, int, error) {
	query := `SELECT ` + prColumns + ` FROM purchase_receipts WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM purchase_receipts WHERE 1=1`
	args := []any{}

	if req.OrderID > 0 {
		args = append(args, req.OrderID)
		clause := ` AND order_id=$` + strconv.Itoa(len(args))
		query += clause
		countQuery += clause
	}
	if req.Status != "" {
		args = append(args, req.Status)
		clause := ` AND status=$` + strconv.Itoa(len(args))
		query += clause
		countQuery += clause
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, req.Limit, (req.Page-1)*req.Limit)
	query += ` ORDER BY id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []PurchaseReceipt{}
	for rows.Next() {
		receipt, err := scanPR(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repository) GetReceipt(ctx context.Context, id int64) (*PurchaseReceipt, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+prColumns+` FROM purchase_receipts WHERE id=$1`, id)
	receipt, err := scanPR(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	receipt.Lines, err = r.receiptLines(ctx, id)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *repository) CreateReceipt(ctx context.Context, receipt PurchaseReceipt) (*PurchaseReceipt, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx, `INSERT INTO purchase_receipts (receipt_no, order_id, supplier_id, warehouse_id, posting_date, status, remarks, total_amount, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10) RETURNING id`,
		receipt.ReceiptNo, receipt.OrderID, receipt.SupplierID, receipt.WarehouseID, receipt.PostingDate,
		receipt.Status, receipt.Remarks, receipt.TotalAmount, receipt.CreatedBy, now).Scan(&receipt.ID)
	if err != nil {
		return nil, err
	}
	for _, line := range receipt.Lines {
		_, err := r.pool.Exec(ctx, `INSERT INTO purchase_receipt_lines (receipt_id, item_id, qty, rate, amount) VALUES ($1,$2,$3,$4,$5)`,
			receipt.ID, line.ItemID, line.Qty, line.Rate, line.Amount)
		if err != nil {
			return nil, err
		}
	}
	return r.GetReceipt(ctx, receipt.ID)
}

func (r *repository) SetReceiptStatus(ctx context.Context, id int64, status ReceiptStatus, at time.Time) error {
	var query string
	switch status {
	case ReceiptSubmitted:
		query = `UPDATE purchase_receipts SET status=$1, submitted_at=$2, updated_at=$2 WHERE id=$3`
	case ReceiptCancelled:
		query = `UPDATE purchase_receipts SET status=$1, cancelled_at=$2, updated_at=$2 WHERE id=$3`
	default:
		query = `UPDATE purchase_receipts SET status=$1, updated_at=$2 WHERE id=$3`
	}
	tag, err := r.pool.Exec(ctx, query, status, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReceiptNotFound
	}
	return nil
}

func (r *repository) DeleteReceipt(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM purchase_receipt_lines WHERE receipt_id=$1`, id); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM purchase_receipts WHERE id=$1 AND status=$2`, id, ReceiptDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReceiptNotFound
	}
	return nil
}

func (r *repository) orderLines(ctx context.Context, orderID int64) ([]OrderLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, item_id, qty, rate, amount, received_qty FROM purchase_order_lines WHERE order_id=$1 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []OrderLine{}
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ItemID, &line.Qty, &line.Rate, &line.Amount, &line.ReceivedQty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) receiptLines(ctx context.Context, receiptID int64) ([]ReceiptLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, receipt_id, item_id, qty, rate, amount FROM purchase_receipt_lines WHERE receipt_id=$1 ORDER BY id ASC`, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []ReceiptLine{}
	for rows.Next() {
		var line ReceiptLine
		if err := rows.Scan(&line.ID, &line.ReceiptID, &line.ItemID, &line.Qty, &line.Rate, &line.Amount); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) insertOrderLines(ctx context.Context, orderID int64, lines []OrderLine) error {
	for _, line := range lines {
		_, err := r.pool.Exec(ctx, `INSERT INTO purchase_order_lines (order_id, item_id, qty, rate, amount, received_qty) VALUES ($1,$2,$3,$4,$5,$6)`,
			orderID, line.ItemID, line.Qty, line.Rate, line.Amount, line.ReceivedQty)
		if err != nil {
			return err
		}
	}
	return nil
}

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var order PurchaseOrder
	err := row.Scan(&order.ID, &order.OrderNo, &order.SupplierID, &order.OrderDate, &order.ExpectedReceipt,
		&order.Status, &order.Remarks, &order.TotalAmount, &order.CreatedBy,
		&order.CreatedAt, &order.UpdatedAt, &order.SubmittedAt, &order.CancelledAt)
	return order, err
}

func scanPR(row pgx.Row) (PurchaseReceipt, error) {
	var receipt PurchaseReceipt
	err := row.Scan(&receipt.ID, &receipt.ReceiptNo, &receipt.OrderID, &receipt.SupplierID, &receipt.WarehouseID,
		&receipt.PostingDate, &receipt.Status, &receipt.Remarks, &receipt.TotalAmount, &receipt.CreatedBy,
		&receipt.CreatedAt, &receipt.UpdatedAt, &receipt.SubmittedAt, &receipt.CancelledAt)
	return receipt, err
}
