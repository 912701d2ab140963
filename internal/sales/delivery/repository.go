package delivery

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists delivery notes and their lines.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]DeliveryNote, int, error)
	Get(ctx context.Context, id int64) (*DeliveryNote, error)
	Create(ctx context.Context, note DeliveryNote) (*DeliveryNote, error)
	SetStatus(ctx context.Context, id int64, status Status, at time.Time) error
	Delete(ctx context.Context, id int64) error
	CountSubmittedForOrder(ctx context.Context, orderID int64) (int, error)
}

// ListFilter narrows the note listing.
type ListFilter struct {
	Page    int
	Limit   int
	OrderID int64
	Status  Status
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const noteColumns = `id, note_no, order_id, customer_id, warehouse_id, posting_date, status, remarks, total_amount, created_by, created_at, updated_at, submitted_at, cancelled_at`

func (r *repository) List(ctx context.Context, filter ListFilter) ([]DeliveryNote, int, error) {
	query := `SELECT ` + noteColumns + ` FROM delivery_notes WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM delivery_notes WHERE 1=1`
	args := []any{}

	if filter.OrderID > 0 {
		args = append(args, filter.OrderID)
		clause := ` AND order_id=$` + strconv.Itoa(len(args))
		query += clause
		countQuery += clause
	}
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

	notes := []DeliveryNote{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, 0, err
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*DeliveryNote, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+noteColumns+` FROM delivery_notes WHERE id=$1`, id)
	note, err := scanNote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	note.Lines, err = r.lines(ctx, id)
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *repository) Create(ctx context.Context, note DeliveryNote) (*DeliveryNote, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx, `INSERT INTO delivery_notes (note_no, order_id, customer_id, warehouse_id, posting_date, status, remarks, total_amount, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10) RETURNING id`,
		note.NoteNo, note.OrderID, note.CustomerID, note.WarehouseID, note.PostingDate,
		note.Status, note.Remarks, note.TotalAmount, note.CreatedBy, now).Scan(&note.ID)
	if err != nil {
		return nil, err
	}
	for _, line := range note.Lines {
		_, err := r.pool.Exec(ctx, `INSERT INTO delivery_note_lines (note_id, item_id, qty, rate, amount, batch) VALUES ($1,$2,$3,$4,$5,NULLIF($6,''))`,
			note.ID, line.ItemID, line.Qty, line.Rate, line.Amount, line.Batch)
		if err != nil {
			return nil, err
		}
	}
	return r.Get(ctx, note.ID)
}

func (r *repository) SetStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	var query string
	switch status {
	case StatusSubmitted:
		query = `UPDATE delivery_notes SET status=$1, submitted_at=$2, updated_at=$2 WHERE id=$3`
	case StatusCancelled:
		query = `UPDATE delivery_notes SET status=$1, cancelled_at=$2, updated_at=$2 WHERE id=$3`
	default:
		query = `UPDATE delivery_notes SET status=$1, updated_at=$2 WHERE id=$3`
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
	if _, err := r.pool.Exec(ctx, `DELETE FROM delivery_note_lines WHERE note_id=$1`, id); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM delivery_notes WHERE id=$1 AND status=$2`, id, StatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) CountSubmittedForOrder(ctx context.Context, orderID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM delivery_notes WHERE order_id=$1 AND status=$2`, orderID, StatusSubmitted).Scan(&count)
	return count, err
}

func (r *repository) lines(ctx context.Context, noteID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, note_id, item_id, qty, rate, amount, COALESCE(batch, '') FROM delivery_note_lines WHERE note_id=$1 ORDER BY id ASC`, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.NoteID, &line.ItemID, &line.Qty, &line.Rate, &line.Amount, &line.Batch); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func scanNote(row pgx.Row) (DeliveryNote, error) {
	var note DeliveryNote
	err := row.Scan(&note.ID, &note.NoteNo, &note.OrderID, &note.CustomerID, &note.WarehouseID,
		&note.PostingDate, &note.Status, &note.Remarks, &note.TotalAmount, &note.CreatedBy,
		&note.CreatedAt, &note.UpdatedAt, &note.SubmittedAt, &note.CancelledAt)
	return note, err
}
