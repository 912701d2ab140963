package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists item prices.
type Repository interface {
	List(ctx context.Context, itemID int64) ([]ItemPrice, error)
	Get(ctx context.Context, id int64) (ItemPrice, error)
	Create(ctx context.Context, price ItemPrice) (ItemPrice, error)
	Update(ctx context.Context, id int64, price ItemPrice) error
	Delete(ctx context.Context, id int64) error
	CandidatesForItem(ctx context.Context, itemID int64) ([]ItemPrice, error)
	ItemIDs(ctx context.Context) ([]int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const priceColumns = `id, item_id, customer_id, supplier_id, rate, currency, selling, buying, is_default, enabled, valid_from, valid_upto, created_at, updated_at`

func (r *repository) List(ctx context.Context, itemID int64) ([]ItemPrice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+priceColumns+` FROM item_prices WHERE item_id=$1 ORDER BY id ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPrices(rows)
}

func (r *repository) Get(ctx context.Context, id int64) (ItemPrice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+priceColumns+` FROM item_prices WHERE id=$1`, id)
	price, err := scanPrice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ItemPrice{}, ErrNotFound
	}
	return price, err
}

func (r *repository) Create(ctx context.Context, price ItemPrice) (ItemPrice, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx, `INSERT INTO item_prices (item_id, customer_id, supplier_id, rate, currency, selling, buying, is_default, enabled, valid_from, valid_upto, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12) RETURNING id`,
		price.ItemID, price.CustomerID, price.SupplierID, price.Rate, price.Currency,
		price.Selling, price.Buying, price.IsDefault, price.Enabled, price.ValidFrom, price.ValidUpto, now).Scan(&price.ID)
	if err != nil {
		return ItemPrice{}, err
	}
	price.CreatedAt = now
	price.UpdatedAt = now
	return price, nil
}

func (r *repository) Update(ctx context.Context, id int64, price ItemPrice) error {
	tag, err := r.pool.Exec(ctx, `UPDATE item_prices SET rate=$1, currency=$2, customer_id=$3, supplier_id=$4, selling=$5, buying=$6, is_default=$7, enabled=$8, valid_from=$9, valid_upto=$10, updated_at=NOW() WHERE id=$11`,
		price.Rate, price.Currency, price.CustomerID, price.SupplierID, price.Selling, price.Buying,
		price.IsDefault, price.Enabled, price.ValidFrom, price.ValidUpto, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM item_prices WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) CandidatesForItem(ctx context.Context, itemID int64) ([]ItemPrice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+priceColumns+` FROM item_prices WHERE item_id=$1 AND enabled ORDER BY id ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPrices(rows)
}

func (r *repository) ItemIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT item_id FROM item_prices WHERE enabled`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanPrices(rows pgx.Rows) ([]ItemPrice, error) {
	prices := []ItemPrice{}
	for rows.Next() {
		price, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		prices = append(prices, price)
	}
	return prices, rows.Err()
}

func scanPrice(row pgx.Row) (ItemPrice, error) {
	var price ItemPrice
	err := row.Scan(&price.ID, &price.ItemID, &price.CustomerID, &price.SupplierID, &price.Rate, &price.Currency,
		&price.Selling, &price.Buying, &price.IsDefault, &price.Enabled, &price.ValidFrom, &price.ValidUpto,
		&price.CreatedAt, &price.UpdatedAt)
	return price, err
}
