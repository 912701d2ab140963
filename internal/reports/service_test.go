package reports

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	balances  []StockBalanceRow
	movements []MovementRow
	summary   MovementSummary
	lowStock  []LowStockRow
	items     int
	whs       int
	value     float64
	openSO    int
	openPO    int
	countsErr error
}

func (f *fakeRepo) StockBalance(context.Context, int64) ([]StockBalanceRow, error) {
	return f.balances, nil
}

func (f *fakeRepo) ItemMovement(context.Context, MovementFilter) ([]MovementRow, error) {
	return f.movements, nil
}

func (f *fakeRepo) MovementSummary(context.Context, MovementFilter) (MovementSummary, error) {
	return f.summary, nil
}

func (f *fakeRepo) LowStock(context.Context) ([]LowStockRow, error) {
	return f.lowStock, nil
}

func (f *fakeRepo) Counts(context.Context) (int, int, error) {
	return f.items, f.whs, f.countsErr
}

func (f *fakeRepo) StockValue(context.Context) (float64, error) {
	return f.value, nil
}

func (f *fakeRepo) OpenOrderCounts(context.Context) (int, int, error) {
	return f.openSO, f.openPO, nil
}

func TestOverviewAggregates(t *testing.T) {
	repo := &fakeRepo{
		items:    42,
		whs:      3,
		value:    125000.5,
		openSO:   5,
		openPO:   2,
		lowStock: []LowStockRow{{ItemID: 1}, {ItemID: 2}},
	}
	svc := NewService(repo)

	overview, err := svc.Overview(context.Background())
	require.NoError(t, err)
	require.Equal(t, Overview{
		ItemCount:          42,
		WarehouseCount:     3,
		StockValue:         125000.5,
		LowStockItems:      2,
		OpenSalesOrders:    5,
		OpenPurchaseOrders: 2,
	}, overview)
}

func TestOverviewPropagatesError(t *testing.T) {
	repo := &fakeRepo{countsErr: errors.New("connection reset")}
	svc := NewService(repo)

	_, err := svc.Overview(context.Background())
	require.Error(t, err)
}

func TestItemMovementReturnsSummary(t *testing.T) {
	repo := &fakeRepo{
		movements: []MovementRow{{EntryID: 1, Qty: 10}, {EntryID: 2, Qty: -4}},
		summary:   MovementSummary{QtyIn: 10, QtyOut: 4, NetQty: 6, NetValue: 540},
	}
	svc := NewService(repo)

	rows, summary, err := svc.ItemMovement(context.Background(), MovementFilter{ItemID: 1})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, 6.0, summary.NetQty)
	require.Equal(t, 540.0, summary.NetValue)
}
