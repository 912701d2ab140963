package stockentry

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists stock entries and their lines.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]StockEntry, int, error)
	Get(ctx context.Context, id int64) (StockEntry, error)
	Create(ctx context.Context, entry StockEntry) (StockEntry, error)
	Update(ctx context.Context, entry StockEntry) error
	SetStatus(ctx context.Context, id int64, status Status, at time.Time) error
	Delete(ctx context.Context, id int64) error
}

// ListFilter narrows the entry listing.
type ListFilter struct {
	Page      int
	Limit     int
	EntryType EntryType
	Status    Status
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const entryColumns = `id, entry_no, entry_type, source_warehouse_id, target_warehouse_id, posting_date, status, remarks, total_amount, created_by, created_at, updated_at, submitted_at, cancelled_at`

func (r *repository) List(ctx context.Context, filter ListFilter) ([]StockEntry, int, error) {
	query := `SELECT ` + entryColumns + ` FROM stock_entries WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM stock_entries WHERE 1=1`
	args := []any{}

	if filter.EntryType != "" {
		args = append(args, filter.EntryType)
		clause := ` AND entry_type=$` + strconv.Itoa(len(args))
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

	entries := []StockEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *repository) Get(ctx context.Context, id int64) (StockEntry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM stock_entries WHERE id=$1`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockEntry{}, ErrNotFound
	}
	if err != nil {
		return StockEntry{}, err
	}
	entry.Lines, err = r.lines(ctx, id)
	return entry, err
}

func (r *repository) Create(ctx context.Context, entry StockEntry) (StockEntry, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx, `INSERT INTO stock_entries (entry_no, entry_type, source_warehouse_id, target_warehouse_id, posting_date, status, remarks, total_amount, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10) RETURNING id`,
		entry.EntryNo, entry.EntryType, entry.SourceWarehouseID, entry.TargetWarehouseID,
		entry.PostingDate, entry.Status, entry.Remarks, entry.TotalAmount, entry.CreatedBy, now).Scan(&entry.ID)
	if err != nil {
		return StockEntry{}, err
	}
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if err := r.insertLines(ctx, entry.ID, entry.Lines); err != nil {
		return StockEntry{}, err
	}
	return r.Get(ctx, entry.ID)
}

func (r *repository) Update(ctx context.Context, entry StockEntry) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_entries SET entry_type=$1, source_warehouse_id=$2, target_warehouse_id=$3, posting_date=$4, remarks=$5, total_amount=$6, updated_at=NOW() WHERE id=$7 AND status=$8`,
		entry.EntryType, entry.SourceWarehouseID, entry.TargetWarehouseID, entry.PostingDate,
		entry.Remarks, entry.TotalAmount, entry.ID, StatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM stock_entry_lines WHERE entry_id=$1`, entry.ID); err != nil {
		return err
	}
	return r.insertLines(ctx, entry.ID, entry.Lines)
}

func (r *repository) SetStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	var query string
	switch status {
	case StatusSubmitted:
		query = `UPDATE stock_entries SET status=$1, submitted_at=$2, updated_at=$2 WHERE id=$3`
	case StatusCancelled:
		query = `UPDATE stock_entries SET status=$1, cancelled_at=$2, updated_at=$2 WHERE id=$3`
	default:
		query = `UPDATE stock_entries SET status=$1, updated_at=$2 WHERE id=$3`
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
	if _, err := r.pool.Exec(ctx, `DELETE FROM stock_entry_lines WHERE entry_id=$1`, id); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM stock_entries WHERE id=$1 AND status=$2`, id, StatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) lines(ctx context.Context, entryID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, entry_id, item_id, qty, rate, amount, COALESCE(batch, '') FROM stock_entry_lines WHERE entry_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.ItemID, &line.Qty, &line.Rate, &line.Amount, &line.Batch); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) insertLines(ctx context.Context, entryID int64, lines []Line) error {
	for _, line := range lines {
		_, err := r.pool.Exec(ctx, `INSERT INTO stock_entry_lines (entry_id, item_id, qty, rate, amount, batch) VALUES ($1,$2,$3,$4,$5,NULLIF($6,''))`,
			entryID, line.ItemID, line.Qty, line.Rate, line.Amount, line.Batch)
		if err != nil {
			return err
		}
	}
	return nil
}

func scanEntry(row pgx.Row) (StockEntry, error) {
	var entry StockEntry
	err := row.Scan(&entry.ID, &entry.EntryNo, &entry.EntryType, &entry.SourceWarehouseID, &entry.TargetWarehouseID,
		&entry.PostingDate, &entry.Status, &entry.Remarks, &entry.TotalAmount, &entry.CreatedBy,
		&entry.CreatedAt, &entry.UpdatedAt, &entry.SubmittedAt, &entry.CancelledAt)
	return entry, err
}
