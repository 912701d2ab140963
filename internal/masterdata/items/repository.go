package items

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tassili-erp/tassili-erp/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Item, int, error)
	Get(ctx context.Context, id int64) (Item, error)
	GetByCode(ctx context.Context, code string) (Item, error)
	Create(ctx context.Context, item Item) (Item, error)
	Update(ctx context.Context, id int64, item Item) error
	Delete(ctx context.Context, id int64) error

	ValuationRate(ctx context.Context, itemID int64) (float64, error)
	SetValuationRate(ctx context.Context, itemID int64, rate float64) error
	SetLastPurchaseRate(ctx context.Context, itemID int64, rate float64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const itemColumns = `id, code, name, COALESCE(description, ''), uom, COALESCE(category, ''), reorder_level, minimum_level, valuation_rate, last_purchase_rate, disabled, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Item, int, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM items WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		clause := ` AND (search_name LIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		query += clause
		countQuery += clause
		args = append(args, "%"+shared.NormalizeSearch(filters.Search)+"%")
	}
	if filters.Category != "" {
		argCount++
		clause := ` AND category = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filters.Category)
	}
	if filters.Disabled != nil {
		argCount++
		clause := ` AND disabled = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, *filters.Disabled)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)

	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1`, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, shared.ErrNotFound
	}
	return item, err
}

func (r *repository) GetByCode(ctx context.Context, code string) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE code=$1`, code)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, shared.ErrNotFound
	}
	return item, err
}

func (r *repository) Create(ctx context.Context, item Item) (Item, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx, `INSERT INTO items (code, name, description, uom, category, reorder_level, minimum_level, valuation_rate, last_purchase_rate, disabled, search_name, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12) RETURNING id`,
		item.Code, item.Name, item.Description, item.UOM, item.Category,
		item.ReorderLevel, item.MinimumLevel, item.ValuationRate, item.LastPurchaseRate,
		item.Disabled, shared.NormalizeSearch(item.Name), now).Scan(&item.ID)
	if err != nil {
		if isDuplicate(err) {
			return Item{}, shared.ErrDuplicate
		}
		return Item{}, err
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	return item, nil
}

func (r *repository) Update(ctx context.Context, id int64, item Item) error {
	tag, err := r.pool.Exec(ctx, `UPDATE items SET code=$1, name=$2, description=$3, uom=$4, category=$5, reorder_level=$6, minimum_level=$7, disabled=$8, search_name=$9, updated_at=NOW() WHERE id=$10`,
		item.Code, item.Name, item.Description, item.UOM, item.Category,
		item.ReorderLevel, item.MinimumLevel, item.Disabled, shared.NormalizeSearch(item.Name), id)
	if err != nil {
		if isDuplicate(err) {
			return shared.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM items WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) ValuationRate(ctx context.Context, itemID int64) (float64, error) {
	var rate float64
	err := r.pool.QueryRow(ctx, `SELECT valuation_rate FROM items WHERE id=$1`, itemID).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	return rate, err
}

func (r *repository) SetValuationRate(ctx context.Context, itemID int64, rate float64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE items SET valuation_rate=$1, updated_at=NOW() WHERE id=$2`, rate, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SetLastPurchaseRate(ctx context.Context, itemID int64, rate float64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE items SET last_purchase_rate=$1, updated_at=NOW() WHERE id=$2`, rate, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Code, &item.Name, &item.Description, &item.UOM, &item.Category,
		&item.ReorderLevel, &item.MinimumLevel, &item.ValuationRate, &item.LastPurchaseRate,
		&item.Disabled, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "code " + dir
	case "name":
		return "name " + dir
	case "valuation_rate":
		return "valuation_rate " + dir
	default:
		return "name " + dir
	}
}
