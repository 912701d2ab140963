package valuation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	qty   float64
	value float64
}

func (f *fakeLedger) ItemTotals(ctx context.Context, itemID int64) (float64, float64, error) {
	return f.qty, f.value, nil
}

type fakeItems struct {
	valuationRate    map[int64]float64
	lastPurchaseRate map[int64]float64
}

func newFakeItems() *fakeItems {
	return &fakeItems{valuationRate: map[int64]float64{}, lastPurchaseRate: map[int64]float64{}}
}

func (f *fakeItems) ValuationRate(ctx context.Context, itemID int64) (float64, error) {
	return f.valuationRate[itemID], nil
}

func (f *fakeItems) SetValuationRate(ctx context.Context, itemID int64, rate float64) error {
	f.valuationRate[itemID] = rate
	return nil
}

func (f *fakeItems) SetLastPurchaseRate(ctx context.Context, itemID int64, rate float64) error {
	f.lastPurchaseRate[itemID] = rate
	return nil
}

func TestWeightedAverage(t *testing.T) {
	ledger := &fakeLedger{}
	items := newFakeItems()
	engine := NewEngine(ledger, items)
	ctx := context.Background()

	// 10 units at 100 then 10 units at 200 averages to 150.
	ledger.qty, ledger.value = 20, 10*100+10*200
	rate, err := engine.Recalculate(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, 150, rate, 0.0001)
	require.InDelta(t, 150, items.valuationRate[1], 0.0001)
}

func TestRateKeptWhenStockReachesZero(t *testing.T) {
	ledger := &fakeLedger{qty: 15, value: 15 * 120}
	items := newFakeItems()
	engine := NewEngine(ledger, items)
	ctx := context.Background()

	rate, err := engine.Recalculate(ctx, 7)
	require.NoError(t, err)
	require.InDelta(t, 120, rate, 0.0001)

	ledger.qty, ledger.value = 0, 0
	rate, err = engine.Recalculate(ctx, 7)
	require.NoError(t, err)
	require.InDelta(t, 120, rate, 0.0001)
}

func TestRecordPurchase(t *testing.T) {
	items := newFakeItems()
	engine := NewEngine(&fakeLedger{}, items)
	ctx := context.Background()

	require.NoError(t, engine.RecordPurchase(ctx, 3, 90.5))
	require.InDelta(t, 90.5, items.lastPurchaseRate[3], 0.0001)

	require.Error(t, engine.RecordPurchase(ctx, 3, -1))
	require.ErrorIs(t, engine.RecordPurchase(ctx, 0, 10), ErrInvalidItem)
}
