package pos

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists POS invoices with their lines and payments.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Invoice, int, error)
	Get(ctx context.Context, id int64) (*Invoice, error)
	Create(ctx context.Context, invoice Invoice) (*Invoice, error)
	Delete(ctx context.Context, id int64) error
	Finalize(ctx context.Context, invoice Invoice, at time.Time) error
	SetStatus(ctx context.Context, id int64, status Status, at time.Time) error
	DailyTotals(ctx context.Context, day time.Time) (count int, total, profit float64, err error)
}

// ListFilter narrows the invoice listing.
type ListFilter struct {
	Page   int
	Limit  int
	Status Status
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const invoiceColumns = `id, invoice_no, customer_id, warehouse_id, posting_date, status, total_amount, rounded_total, total_cost, profit, margin, paid_amount, change_amount, created_by, created_at, updated_at, submitted_at, cancelled_at`

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	query := `SELECT ` + invoiceColumns + ` FROM pos_invoices WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM pos_invoices WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		clause := ` AND status=$` + strconv.Itoa(len(args))
		query += clause
		countQuery += clause
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)
	query += ` ORDER BY id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	invoices := []Invoice{}
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM pos_invoices WHERE id=$1`, id)
	invoice, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if invoice.Lines, err = r.lines(ctx, id); err != nil {
		return nil, err
	}
	if invoice.Payments, err = r.payments(ctx, id); err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) Create(ctx context.Context, invoice Invoice) (*Invoice, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx, `INSERT INTO pos_invoices (invoice_no, customer_id, warehouse_id, posting_date, status, total_amount, rounded_total, total_cost, profit, margin, paid_amount, change_amount, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14) RETURNING id`,
		invoice.InvoiceNo, invoice.CustomerID, invoice.WarehouseID, invoice.PostingDate, invoice.Status,
		invoice.TotalAmount, invoice.RoundedTotal, invoice.TotalCost, invoice.Profit, invoice.Margin,
		invoice.PaidAmount, invoice.ChangeAmount, invoice.CreatedBy, now).Scan(&invoice.ID)
	if err != nil {
		return nil, err
	}
	for _, line := range invoice.Lines {
		_, err := r.pool.Exec(ctx, `INSERT INTO pos_invoice_lines (invoice_id, item_id, qty, rate, amount, cost_rate) VALUES ($1,$2,$3,$4,$5,$6)`,
			invoice.ID, line.ItemID, line.Qty, line.Rate, line.Amount, line.CostRate)
		if err != nil {
			return nil, err
		}
	}
	for _, payment := range invoice.Payments {
		_, err := r.pool.Exec(ctx, `INSERT INTO pos_invoice_payments (invoice_id, mode, amount) VALUES ($1,$2,$3)`,
			invoice.ID, payment.Mode, payment.Amount)
		if err != nil {
			return nil, err
		}
	}
	return r.Get(ctx, invoice.ID)
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM pos_invoice_payments WHERE invoice_id=$1`, id); err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM pos_invoice_lines WHERE invoice_id=$1`, id); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM pos_invoices WHERE id=$1 AND status=$2`, id, StatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Finalize writes the figures captured at submit time and marks the
// invoice Paid.
func (r *repository) Finalize(ctx context.Context, invoice Invoice, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE pos_invoices SET status=$1, total_cost=$2, profit=$3, margin=$4, paid_amount=$5, change_amount=$6, submitted_at=$7, updated_at=$7 WHERE id=$8 AND status=$9`,
		StatusPaid, invoice.TotalCost, invoice.Profit, invoice.Margin, invoice.PaidAmount, invoice.ChangeAmount, at, invoice.ID, StatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	for _, line := range invoice.Lines {
		_, err := r.pool.Exec(ctx, `UPDATE pos_invoice_lines SET cost_rate=$1 WHERE id=$2`, line.CostRate, line.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) SetStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	var query string
	if status == StatusCancelled {
		query = `UPDATE pos_invoices SET status=$1, cancelled_at=$2, updated_at=$2 WHERE id=$3`
	} else {
		query = `UPDATE pos_invoices SET status=$1, updated_at=$2 WHERE id=$3`
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

// DailyTotals aggregates paid invoices of one calendar day.
func (r *repository) DailyTotals(ctx context.Context, day time.Time) (int, float64, float64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)
	var count int
	var total, profit float64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(rounded_total), 0), COALESCE(SUM(profit), 0)
FROM pos_invoices WHERE status=$1 AND posting_date >= $2 AND posting_date < $3`, StatusPaid, start, end).Scan(&count, &total, &profit)
	return count, total, profit, err
}

func (r *repository) lines(ctx context.Context, invoiceID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, item_id, qty, rate, amount, cost_rate FROM pos_invoice_lines WHERE invoice_id=$1 ORDER BY id ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.ItemID, &line.Qty, &line.Rate, &line.Amount, &line.CostRate); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) payments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, mode, amount FROM pos_invoice_payments WHERE invoice_id=$1 ORDER BY id ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	payments := []Payment{}
	for rows.Next() {
		var payment Payment
		if err := rows.Scan(&payment.ID, &payment.InvoiceID, &payment.Mode, &payment.Amount); err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var invoice Invoice
	err := row.Scan(&invoice.ID, &invoice.InvoiceNo, &invoice.CustomerID, &invoice.WarehouseID, &invoice.PostingDate,
		&invoice.Status, &invoice.TotalAmount, &invoice.RoundedTotal, &invoice.TotalCost, &invoice.Profit,
		&invoice.Margin, &invoice.PaidAmount, &invoice.ChangeAmount, &invoice.CreatedBy,
		&invoice.CreatedAt, &invoice.UpdatedAt, &invoice.SubmittedAt, &invoice.CancelledAt)
	return invoice, err
}
