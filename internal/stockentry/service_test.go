package stockentry

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tassili-erp/tassili-erp/internal/ledger"
)

type memoryRepo struct {
	entries map[int64]StockEntry
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{entries: map[int64]StockEntry{}, nextID: 1}
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]StockEntry, int, error) {
	var out []StockEntry
	for _, e := range m.entries {
		if filter.EntryType != "" && e.EntryType != filter.EntryType {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (StockEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return StockEntry{}, ErrNotFound
	}
	return e, nil
}

func (m *memoryRepo) Create(_ context.Context, entry StockEntry) (StockEntry, error) {
	entry.ID = m.nextID
	m.nextID++
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt
	m.entries[entry.ID] = entry
	return entry, nil
}

func (m *memoryRepo) Update(_ context.Context, entry StockEntry) error {
	existing, ok := m.entries[entry.ID]
	if !ok || existing.Status != StatusDraft {
		return ErrNotFound
	}
	entry.EntryNo = existing.EntryNo
	entry.Status = existing.Status
	entry.CreatedAt = existing.CreatedAt
	m.entries[entry.ID] = entry
	return nil
}

func (m *memoryRepo) SetStatus(_ context.Context, id int64, status Status, at time.Time) error {
	e, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = status
	switch status {
	case StatusSubmitted:
		e.SubmittedAt = &at
	case StatusCancelled:
		e.CancelledAt = &at
	}
	m.entries[id] = e
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	e, ok := m.entries[id]
	if !ok || e.Status != StatusDraft {
		return ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

type fakeLedger struct {
	posted   []ledger.PostInput
	reversed []string
}

func (f *fakeLedger) Post(_ context.Context, input ledger.PostInput) ([]ledger.Entry, error) {
	f.posted = append(f.posted, input)
	return nil, nil
}

func (f *fakeLedger) Reverse(_ context.Context, _ ledger.VoucherType, voucherNo string, _ int64) ([]ledger.Entry, error) {
	f.reversed = append(f.reversed, voucherNo)
	return nil, nil
}

type fakeValuation struct {
	rates       map[int64]float64
	recalced    []int64
	lastPricing map[int64]float64
}

func newFakeValuation() *fakeValuation {
	return &fakeValuation{rates: map[int64]float64{}, lastPricing: map[int64]float64{}}
}

func (f *fakeValuation) Recalculate(_ context.Context, itemID int64) (float64, error) {
	f.recalced = append(f.recalced, itemID)
	return f.rates[itemID], nil
}

func (f *fakeValuation) RecordPurchase(_ context.Context, itemID int64, rate float64) error {
	f.lastPricing[itemID] = rate
	return nil
}

func (f *fakeValuation) CostBasis(_ context.Context, itemID int64) (float64, error) {
	return f.rates[itemID], nil
}

type allExist struct{}

func (allExist) Exists(context.Context, int64) (bool, error) { return true, nil }

type fakeNumbers struct{ n int }

func (f *fakeNumbers) Next(_ context.Context, prefix string) (string, error) {
	f.n++
	return fmt.Sprintf("%s-2026-%05d", prefix, f.n), nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *fakeLedger, *fakeValuation) {
	t.Helper()
	repo := newMemoryRepo()
	led := &fakeLedger{}
	val := newFakeValuation()
	svc := NewService(slog.Default(), repo, led, val, allExist{}, allExist{}, &fakeNumbers{})
	return svc, repo, led, val
}

func ptr(v int64) *int64 { return &v }

func TestCreateValidatesWarehousesPerType(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	line := []Line{{ItemID: 1, Qty: 5, Rate: 100}}

	_, err := svc.Create(ctx, StockEntry{EntryType: "Bogus", Lines: line}, 1)
	require.ErrorIs(t, err, ErrInvalidEntry)

	// Receipt needs a target, not a source.
	_, err = svc.Create(ctx, StockEntry{EntryType: TypeReceipt, SourceWarehouseID: ptr(1), Lines: line}, 1)
	require.ErrorIs(t, err, ErrInvalidEntry)

	// Issue needs a source.
	_, err = svc.Create(ctx, StockEntry{EntryType: TypeIssue, TargetWarehouseID: ptr(1), Lines: line}, 1)
	require.ErrorIs(t, err, ErrInvalidEntry)

	// Transfer warehouses must differ.
	_, err = svc.Create(ctx, StockEntry{EntryType: TypeTransfer, SourceWarehouseID: ptr(1), TargetWarehouseID: ptr(1), Lines: line}, 1)
	require.ErrorIs(t, err, ErrInvalidEntry)

	created, err := svc.Create(ctx, StockEntry{EntryType: TypeReceipt, TargetWarehouseID: ptr(1), Lines: line}, 1)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, created.Status)
	require.Equal(t, "STE-2026-00001", created.EntryNo)
	require.Equal(t, 500.0, created.TotalAmount)
}

func TestSubmitReceiptPostsAndRecalculates(t *testing.T) {
	svc, _, led, val := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, StockEntry{
		EntryType:         TypeReceipt,
		TargetWarehouseID: ptr(2),
		Lines:             []Line{{ItemID: 7, Qty: 10, Rate: 50}},
	}, 1)
	require.NoError(t, err)

	submitted, err := svc.Submit(ctx, created.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)

	require.Len(t, led.posted, 1)
	require.Equal(t, ledger.VoucherStockEntry, led.posted[0].VoucherType)
	require.Equal(t, created.EntryNo, led.posted[0].VoucherNo)
	require.Equal(t, []ledger.Line{{ItemID: 7, WarehouseID: 2, Qty: 10, Rate: 50}}, led.posted[0].Lines)
	require.Equal(t, []int64{7}, val.recalced)

	// Double submit is rejected.
	_, err = svc.Submit(ctx, created.ID, 1)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestSubmitTransferMovesAtCostBasis(t *testing.T) {
	svc, _, led, val := newTestService(t)
	ctx := context.Background()
	val.rates[7] = 42.5

	created, err := svc.Create(ctx, StockEntry{
		EntryType:         TypeTransfer,
		SourceWarehouseID: ptr(1),
		TargetWarehouseID: ptr(2),
		Lines:             []Line{{ItemID: 7, Qty: 4}},
	}, 1)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, created.ID, 1)
	require.NoError(t, err)
	require.Len(t, led.posted, 1)
	require.Equal(t, []ledger.Line{
		{ItemID: 7, WarehouseID: 1, Qty: -4, Rate: 42.5},
		{ItemID: 7, WarehouseID: 2, Qty: 4, Rate: 42.5},
	}, led.posted[0].Lines)
}

func TestSubmitIssueUsesCostBasisForZeroRate(t *testing.T) {
	svc, _, led, val := newTestService(t)
	ctx := context.Background()
	val.rates[3] = 12.0

	created, err := svc.Create(ctx, StockEntry{
		EntryType:         TypeIssue,
		SourceWarehouseID: ptr(1),
		Lines:             []Line{{ItemID: 3, Qty: 2}},
	}, 1)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, created.ID, 1)
	require.NoError(t, err)
	require.Equal(t, []ledger.Line{{ItemID: 3, WarehouseID: 1, Qty: -2, Rate: 12.0}}, led.posted[0].Lines)
}

func TestSubmitPurchaseRecordsLastRate(t *testing.T) {
	svc, _, _, val := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, StockEntry{
		EntryType:         TypePurchase,
		TargetWarehouseID: ptr(1),
		Lines:             []Line{{ItemID: 9, Qty: 6, Rate: 75}},
	}, 1)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, created.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 75.0, val.lastPricing[9])
}

func TestCancelReversesSubmittedEntry(t *testing.T) {
	svc, _, led, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, StockEntry{
		EntryType:         TypeReceipt,
		TargetWarehouseID: ptr(1),
		Lines:             []Line{{ItemID: 5, Qty: 1, Rate: 10}},
	}, 1)
	require.NoError(t, err)

	// A draft cannot be cancelled.
	_, err = svc.Cancel(ctx, created.ID, 1)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.Submit(ctx, created.ID, 1)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, created.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, []string{created.EntryNo}, led.reversed)

	_, err = svc.Cancel(ctx, created.ID, 1)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestDraftLifecycle(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, StockEntry{
		EntryType:         TypeReceipt,
		TargetWarehouseID: ptr(1),
		Lines:             []Line{{ItemID: 5, Qty: 1, Rate: 10}},
	}, 1)
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, StockEntry{
		EntryType:         TypeReceipt,
		TargetWarehouseID: ptr(1),
		Lines:             []Line{{ItemID: 5, Qty: 3, Rate: 10}},
	})
	require.NoError(t, err)
	require.Equal(t, 30.0, updated.TotalAmount)

	_, err = svc.Submit(ctx, created.ID, 1)
	require.NoError(t, err)

	// Submitted entries can be neither edited nor deleted.
	_, err = svc.Update(ctx, created.ID, updated)
	require.ErrorIs(t, err, ErrInvalidState)
	require.ErrorIs(t, svc.Delete(ctx, created.ID), ErrInvalidState)
}
