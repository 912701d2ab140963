package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NumberSeries hands out gapless per-year document numbers such as
// STE-2026-00042. The counter row is locked by the UPDATE so concurrent
// callers never share a number.
type NumberSeries struct {
	pool *pgxpool.Pool
}

// NewNumberSeries constructs the series generator.
func NewNumberSeries(pool *pgxpool.Pool) *NumberSeries {
	return &NumberSeries{pool: pool}
}

// Next returns the next number for the prefix, e.g. Next(ctx, "STE").
func (n *NumberSeries) Next(ctx context.Context, prefix string) (string, error) {
	if n == nil || n.pool == nil {
		return "", errors.New("number series not initialised")
	}
	if prefix == "" {
		return "", errors.New("number series prefix required")
	}
	year := time.Now().Year()
	key := fmt.Sprintf("%s-%d", prefix, year)
	var value int64
	err := n.pool.QueryRow(ctx, `INSERT INTO number_series (key, value) VALUES ($1, 1)
ON CONFLICT (key) DO UPDATE SET value = number_series.value + 1
RETURNING value`, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%05d", prefix, year, value), nil
}
