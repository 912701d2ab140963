package ledger

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	entries []Entry
	nextID  int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make([]Entry, len(r.entries))
	copy(snapshot, r.entries)
	savedID := r.nextID
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.entries = snapshot
		r.nextID = savedID
		return err
	}
	return nil
}

func (r *memoryRepo) Balance(ctx context.Context, itemID, warehouseID int64) (Balance, error) {
	bal := Balance{ItemID: itemID, WarehouseID: warehouseID}
	for _, e := range r.entries {
		if e.ItemID == itemID && e.WarehouseID == warehouseID && !e.Cancelled {
			bal.Qty += e.Qty
			bal.Value += e.ValueDiff
		}
	}
	return bal, nil
}

func (r *memoryRepo) ItemTotals(ctx context.Context, itemID int64) (float64, float64, error) {
	var qty, value float64
	for _, e := range r.entries {
		if e.ItemID == itemID && !e.Cancelled {
			qty += e.Qty
			value += e.ValueDiff
		}
	}
	return qty, value, nil
}

func (r *memoryRepo) StockCard(ctx context.Context, filter StockCardFilter) ([]Entry, error) {
	result := []Entry{}
	for _, e := range r.entries {
		if e.ItemID == filter.ItemID && e.WarehouseID == filter.WarehouseID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *memoryRepo) VoucherEntries(ctx context.Context, voucherType VoucherType, voucherNo string) ([]Entry, error) {
	result := []Entry{}
	for _, e := range r.entries {
		if e.VoucherType == voucherType && e.VoucherNo == voucherNo {
			result = append(result, e)
		}
	}
	return result, nil
}

func (tx *memoryTx) InsertEntries(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		tx.repo.nextID++
		e.ID = tx.repo.nextID
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		tx.repo.entries = append(tx.repo.entries, e)
	}
	return nil
}

func (tx *memoryTx) LiveEntriesForUpdate(ctx context.Context, voucherType VoucherType, voucherNo string) ([]Entry, error) {
	result := []Entry{}
	for _, e := range tx.repo.entries {
		if e.VoucherType == voucherType && e.VoucherNo == voucherNo && !e.Cancelled {
			result = append(result, e)
		}
	}
	return result, nil
}

func (tx *memoryTx) MarkCancelled(ctx context.Context, ids []int64) error {
	lookup := map[int64]bool{}
	for _, id := range ids {
		lookup[id] = true
	}
	for i := range tx.repo.entries {
		if lookup[tx.repo.entries[i].ID] {
			tx.repo.entries[i].Cancelled = true
		}
	}
	return nil
}

func (tx *memoryTx) BalanceQty(ctx context.Context, itemID, warehouseID int64) (float64, error) {
	var qty float64
	for _, e := range tx.repo.entries {
		if e.ItemID == itemID && e.WarehouseID == warehouseID && !e.Cancelled {
			qty += e.Qty
		}
	}
	return qty, nil
}

func TestPostAndBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Post(ctx, PostInput{
		VoucherType: VoucherPurchaseReceipt,
		VoucherNo:   "PR-2026-00001",
		Lines: []Line{
			{ItemID: 1, WarehouseID: 1, Qty: 10, Rate: 100},
			{ItemID: 2, WarehouseID: 1, Qty: 4, Rate: 250},
		},
	})
	require.NoError(t, err)

	bal, err := svc.Balance(ctx, 1, 1)
	require.NoError(t, err)
	require.InDelta(t, 10, bal.Qty, 0.0001)
	require.InDelta(t, 1000, bal.Value, 0.0001)

	qty, err := svc.AvailableQty(ctx, 2)
	require.NoError(t, err)
	require.InDelta(t, 4, qty, 0.0001)
}

func TestPostIsAtomic(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Post(ctx, PostInput{
		VoucherType: VoucherPurchaseReceipt,
		VoucherNo:   "PR-2026-00001",
		Lines:       []Line{{ItemID: 1, WarehouseID: 1, Qty: 5, Rate: 100}},
	})
	require.NoError(t, err)

	// Second line over-issues, so the first line must not land either.
	_, err = svc.Post(ctx, PostInput{
		VoucherType: VoucherDeliveryNote,
		VoucherNo:   "DN-2026-00001",
		Lines: []Line{
			{ItemID: 1, WarehouseID: 1, Qty: -2, Rate: 100},
			{ItemID: 1, WarehouseID: 1, Qty: -10, Rate: 100},
		},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	bal, err := svc.Balance(ctx, 1, 1)
	require.NoError(t, err)
	require.InDelta(t, 5, bal.Qty, 0.0001)
}

func TestReverseRestoresBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Post(ctx, PostInput{
		VoucherType: VoucherPurchaseReceipt,
		VoucherNo:   "PR-2026-00001",
		Lines:       []Line{{ItemID: 1, WarehouseID: 1, Qty: 10, Rate: 100}},
	})
	require.NoError(t, err)

	_, err = svc.Post(ctx, PostInput{
		VoucherType: VoucherDeliveryNote,
		VoucherNo:   "DN-2026-00001",
		Lines:       []Line{{ItemID: 1, WarehouseID: 1, Qty: -4, Rate: 100}},
	})
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, VoucherDeliveryNote, "DN-2026-00001", 0)
	require.NoError(t, err)

	bal, err := svc.Balance(ctx, 1, 1)
	require.NoError(t, err)
	require.InDelta(t, 10, bal.Qty, 0.0001)
	require.InDelta(t, 1000, bal.Value, 0.0001)

	_, err = svc.Reverse(ctx, VoucherDeliveryNote, "DN-2026-00001", 0)
	require.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestNegativeStockGuard(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Post(ctx, PostInput{
		VoucherType: VoucherPOSInvoice,
		VoucherNo:   "POS-2026-00001",
		Lines:       []Line{{ItemID: 1, WarehouseID: 1, Qty: -1, Rate: 50}},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	relaxed := NewService(repo, nil, nil, nil, ServiceConfig{AllowNegativeStock: true})
	_, err = relaxed.Post(ctx, PostInput{
		VoucherType: VoucherPOSInvoice,
		VoucherNo:   "POS-2026-00002",
		Lines:       []Line{{ItemID: 1, WarehouseID: 1, Qty: -1, Rate: 50}},
	})
	require.NoError(t, err)
}

func TestPostValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Post(ctx, PostInput{VoucherType: "UNKNOWN", VoucherNo: "X-1", Lines: []Line{{ItemID: 1, WarehouseID: 1, Qty: 1}}})
	require.ErrorIs(t, err, ErrVoucherRequired)

	_, err = svc.Post(ctx, PostInput{VoucherType: VoucherStockEntry, VoucherNo: "SE-1", Lines: []Line{{ItemID: 1, WarehouseID: 1, Qty: 0}}})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Post(ctx, PostInput{VoucherType: VoucherStockEntry, VoucherNo: "SE-1", Lines: []Line{{ItemID: 1, WarehouseID: 1, Qty: 1, Rate: -2}}})
	require.ErrorIs(t, err, ErrInvalidRate)
}
