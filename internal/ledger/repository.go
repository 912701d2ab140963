package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tassili-erp/tassili-erp/internal/platform/db"
)

// Repository persists ledger entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertEntries(ctx context.Context, entries []Entry) error
	LiveEntriesForUpdate(ctx context.Context, voucherType VoucherType, voucherNo string) ([]Entry, error)
	MarkCancelled(ctx context.Context, ids []int64) error
	BalanceQty(ctx context.Context, itemID, warehouseID int64) (float64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// Balance aggregates live entries for one item and warehouse.
func (r *Repository) Balance(ctx context.Context, itemID, warehouseID int64) (Balance, error) {
	bal := Balance{ItemID: itemID, WarehouseID: warehouseID}
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(qty), 0), COALESCE(SUM(value_diff), 0)
FROM stock_ledger_entries
WHERE item_id=$1 AND warehouse_id=$2 AND NOT cancelled`, itemID, warehouseID).Scan(&bal.Qty, &bal.Value)
	if err != nil {
		return Balance{}, err
	}
	return bal, nil
}

// ItemTotals aggregates live entries for one item across warehouses.
func (r *Repository) ItemTotals(ctx context.Context, itemID int64) (float64, float64, error) {
	var qty, value float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(qty), 0), COALESCE(SUM(value_diff), 0)
FROM stock_ledger_entries
WHERE item_id=$1 AND NOT cancelled`, itemID).Scan(&qty, &value)
	if err != nil {
		return 0, 0, err
	}
	return qty, value, nil
}

// StockCard lists entries chronologically for one item and warehouse.
func (r *Repository) StockCard(ctx context.Context, filter StockCardFilter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, warehouse_id, posted_at, voucher_type, voucher_no, qty, rate, value_diff, COALESCE(batch, ''), cancelled, created_by, created_at
FROM stock_ledger_entries
WHERE item_id=$1 AND warehouse_id=$2 AND posted_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY posted_at ASC, id ASC
LIMIT $5`, filter.ItemID, filter.WarehouseID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// VoucherEntries lists all entries of one voucher including cancelled rows.
func (r *Repository) VoucherEntries(ctx context.Context, voucherType VoucherType, voucherNo string) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, warehouse_id, posted_at, voucher_type, voucher_no, qty, rate, value_diff, COALESCE(batch, ''), cancelled, created_by, created_at
FROM stock_ledger_entries
WHERE voucher_type=$1 AND voucher_no=$2
ORDER BY id ASC`, string(voucherType), voucherNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *txRepository) InsertEntries(ctx context.Context, entries []Entry) error {
	for _, entry := range entries {
		if _, err := r.tx.Exec(ctx, `INSERT INTO stock_ledger_entries (item_id, warehouse_id, posted_at, voucher_type, voucher_no, qty, rate, value_diff, batch, cancelled, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())`,
			entry.ItemID, entry.WarehouseID, entry.PostedAt, string(entry.VoucherType), entry.VoucherNo,
			entry.Qty, entry.Rate, entry.ValueDiff, nullString(entry.Batch), entry.Cancelled, nullInt(entry.CreatedBy)); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) LiveEntriesForUpdate(ctx context.Context, voucherType VoucherType, voucherNo string) ([]Entry, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, item_id, warehouse_id, posted_at, voucher_type, voucher_no, qty, rate, value_diff, COALESCE(batch, ''), cancelled, created_by, created_at
FROM stock_ledger_entries
WHERE voucher_type=$1 AND voucher_no=$2 AND NOT cancelled
ORDER BY id ASC
FOR UPDATE`, string(voucherType), voucherNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *txRepository) MarkCancelled(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.tx.Exec(ctx, `UPDATE stock_ledger_entries SET cancelled=TRUE WHERE id = ANY($1)`, ids)
	return err
}

func (r *txRepository) BalanceQty(ctx context.Context, itemID, warehouseID int64) (float64, error) {
	var qty float64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(qty), 0) FROM stock_ledger_entries WHERE item_id=$1 AND warehouse_id=$2 AND NOT cancelled`, itemID, warehouseID).Scan(&qty)
	return qty, err
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	entries := []Entry{}
	for rows.Next() {
		var entry Entry
		var voucherType string
		var createdBy *int64
		if err := rows.Scan(&entry.ID, &entry.ItemID, &entry.WarehouseID, &entry.PostedAt, &voucherType, &entry.VoucherNo, &entry.Qty, &entry.Rate, &entry.ValueDiff, &entry.Batch, &entry.Cancelled, &createdBy, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.VoucherType = VoucherType(voucherType)
		if createdBy != nil {
			entry.CreatedBy = *createdBy
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
