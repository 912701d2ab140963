package orders

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists sales orders and their lines.
type Repository interface {
	List(ctx context.Context, req ListOrdersRequest) ([]SalesOrder, int, error)
	Get(ctx context.Context, id int64) (*SalesOrder, error)
	Create(ctx context.Context, order SalesOrder) (*SalesOrder, error)
	Update(ctx context.Context, order SalesOrder) error
	SetStatus(ctx context.Context, id int64, status Status, at time.Time) error
	Delete(ctx context.Context, id int64) error
	AddDeliveredQty(ctx context.Context, orderID, itemID int64, delta float64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const orderColumns = `id, order_no, customer_id, order_date, expected_delivery, status, remarks, total_amount, created_by, created_at, updated_at, submitted_at, cancelled_at`

func (r *repository) List(ctx context.Context, req ListOrdersRequest) ([]SalesOrder, int, error) {
	query := `SELECT ` + orderColumns + ` FROM sales_orders WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM sales_orders WHERE 1=1`
	args := []any{}

	if req.CustomerID > 0 {
		args = append(args, req.CustomerID)
		clause := ` AND customer_id=$` + strconv.Itoa(len(args))
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

	out := []SalesOrder{}
	for rows.Next() {
		order, err := scanOrder(rows)
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

func (r *repository) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id=$1`, id)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	order.Lines, err = r.lines(ctx, id)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) Create(ctx context.Context, order SalesOrder) (*SalesOrder, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx, `INSERT INTO sales_orders (order_no, customer_id, order_date, expected_delivery, status, remarks, total_amount, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9) RETURNING id`,
		order.OrderNo, order.CustomerID, order.OrderDate, order.ExpectedDelivery,
		order.Status, order.Remarks, order.TotalAmount, order.CreatedBy, now).Scan(&order.ID)
	if err != nil {
		return nil, err
	}
	if err := r.insertLines(ctx, order.ID, order.Lines); err != nil {
		return nil, err
	}
	return r.Get(ctx, order.ID)
}

func (r *repository) Update(ctx context.Context, order SalesOrder) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sales_orders SET customer_id=$1, order_date=$2, expected_delivery=$3, remarks=$4, total_amount=$5, updated_at=NOW() WHERE id=$6 AND status=$7`,
		order.CustomerID, order.OrderDate, order.ExpectedDelivery, order.Remarks, order.TotalAmount, order.ID, StatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM sales_order_lines WHERE order_id=$1`, order.ID); err != nil {
		return err
	}
	return r.insertLines(ctx, order.ID, order.Lines)
}

func (r *repository) SetStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	var query string
	switch status {
	case StatusOrdered:
		query = `UPDATE sales_orders SET status=$1, submitted_at=COALESCE(submitted_at, $2), updated_at=$2 WHERE id=$3`
	case StatusCancelled:
		query = `UPDATE sales_orders SET status=$1, cancelled_at=$2, updated_at=$2 WHERE id=$3`
	default:
		query = `UPDATE sales_orders SET status=$1, updated_at=$2 WHERE id=$3`
	}
	tag, err := r.pool.Exec(ctx, query, status, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sales_order_lines WHERE order_id=$1`, id); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM sales_orders WHERE id=$1 AND status=$2`, id, StatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) AddDeliveredQty(ctx context.Context, orderID, itemID int64, delta float64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sales_order_lines SET delivered_qty = delivered_qty + $1 WHERE order_id=$2 AND item_id=$3`, delta, orderID, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) lines(ctx context.Context, orderID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, item_id, qty, rate, amount, delivered_qty FROM sales_order_lines WHERE order_id=$1 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ItemID, &line.Qty, &line.Rate, &line.Amount, &line.DeliveredQty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) insertLines(ctx context.Context, orderID int64, lines []Line) error {
	for _, line := range lines {
		_, err := r.pool.Exec(ctx, `INSERT INTO sales_order_lines (order_id, item_id, qty, rate, amount, delivered_qty) VALUES ($1,$2,$3,$4,$5,$6)`,
			orderID, line.ItemID, line.Qty, line.Rate, line.Amount, line.DeliveredQty)
		if err != nil {
			return err
		}
	}
	return nil
}

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var order SalesOrder
	err := row.Scan(&order.ID, &order.OrderNo, &order.CustomerID, &order.OrderDate, &order.ExpectedDelivery,
		&order.Status, &order.Remarks, &order.TotalAmount, &order.CreatedBy,
		&order.CreatedAt, &order.UpdatedAt, &order.SubmittedAt, &order.CancelledAt)
	return order, err
}
