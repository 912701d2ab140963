package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tassili-erp/tassili-erp/internal/ledger"
	"github.com/tassili-erp/tassili-erp/internal/sales/orders"
)

type memoryRepo struct {
	notes  map[int64]*DeliveryNote
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{notes: map[int64]*DeliveryNote{}, nextID: 1}
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]DeliveryNote, int, error) {
	var out []DeliveryNote
	for _, n := range m.notes {
		if filter.OrderID > 0 && n.OrderID != filter.OrderID {
			continue
		}
		if filter.Status != "" && n.Status != filter.Status {
			continue
		}
		out = append(out, *n)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (*DeliveryNote, error) {
	n, ok := m.notes[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *n
	clone.Lines = append([]Line(nil), n.Lines...)
	return &clone, nil
}

func (m *memoryRepo) Create(_ context.Context, note DeliveryNote) (*DeliveryNote, error) {
	note.ID = m.nextID
	m.nextID++
	note.CreatedAt = time.Now()
	note.UpdatedAt = note.CreatedAt
	m.notes[note.ID] = &note
	clone := note
	return &clone, nil
}

func (m *memoryRepo) SetStatus(_ context.Context, id int64, status Status, at time.Time) error {
	n, ok := m.notes[id]
	if !ok {
		return ErrNotFound
	}
	n.Status = status
	switch status {
	case StatusSubmitted:
		n.SubmittedAt = &at
	case StatusCancelled:
		n.CancelledAt = &at
	}
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	n, ok := m.notes[id]
	if !ok || n.Status != StatusDraft {
		return ErrNotFound
	}
	delete(m.notes, id)
	return nil
}

func (m *memoryRepo) CountSubmittedForOrder(_ context.Context, orderID int64) (int, error) {
	count := 0
	for _, n := range m.notes {
		if n.OrderID == orderID && n.Status == StatusSubmitted {
			count++
		}
	}
	return count, nil
}

type fakeOrders struct {
	order   *orders.SalesOrder
	applied []map[int64]float64
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{
		order: &orders.SalesOrder{
			ID:         1,
			OrderNo:    "SO-2026-00001",
			CustomerID: 3,
			Status:     orders.StatusOrdered,
			Lines: []orders.Line{
				{ItemID: 1, Qty: 10, Rate: 50},
				{ItemID: 2, Qty: 4, Rate: 20},
			},
		},
	}
}

func (f *fakeOrders) Get(_ context.Context, id int64) (*orders.SalesOrder, error) {
	if id != f.order.ID {
		return nil, orders.ErrNotFound
	}
	clone := *f.order
	return &clone, nil
}

func (f *fakeOrders) OpenQuantities(_ context.Context, id int64) (map[int64]float64, error) {
	if id != f.order.ID {
		return nil, orders.ErrNotFound
	}
	open := map[int64]float64{}
	for _, line := range f.order.Lines {
		open[line.ItemID] = line.Qty - line.DeliveredQty
	}
	return open, nil
}

func (f *fakeOrders) LineRate(_ context.Context, id, itemID int64) (float64, error) {
	for _, line := range f.order.Lines {
		if line.ItemID == itemID {
			return line.Rate, nil
		}
	}
	return 0, orders.ErrInvalidOrder
}

func (f *fakeOrders) ApplyDelivery(_ context.Context, id int64, deltas map[int64]float64) (*orders.SalesOrder, error) {
	f.applied = append(f.applied, deltas)
	for i := range f.order.Lines {
		f.order.Lines[i].DeliveredQty += deltas[f.order.Lines[i].ItemID]
	}
	return f.order, nil
}

type fakeLedger struct {
	balances map[int64]float64
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

func (f *fakeLedger) Balance(_ context.Context, itemID, warehouseID int64) (ledger.Balance, error) {
	return ledger.Balance{ItemID: itemID, WarehouseID: warehouseID, Qty: f.balances[itemID]}, nil
}

type fakeValuation struct {
	rates    map[int64]float64
	recalced []int64
}

func (f *fakeValuation) CostBasis(_ context.Context, itemID int64) (float64, error) {
	return f.rates[itemID], nil
}

func (f *fakeValuation) Recalculate(_ context.Context, itemID int64) (float64, error) {
	f.recalced = append(f.recalced, itemID)
	return f.rates[itemID], nil
}

type allExist struct{}

func (allExist) Exists(context.Context, int64) (bool, error) { return true, nil }

type fakeNumbers struct{ n int }

func (f *fakeNumbers) Next(_ context.Context, prefix string) (string, error) {
	f.n++
	return fmt.Sprintf("%s-2026-%05d", prefix, f.n), nil
}

func newTestService(t *testing.T, enforce bool) (*Service, *fakeOrders, *fakeLedger, *fakeValuation) {
	t.Helper()
	ordersPort := newFakeOrders()
	led := &fakeLedger{balances: map[int64]float64{1: 100, 2: 100}}
	val := &fakeValuation{rates: map[int64]float64{1: 30, 2: 15}}
	svc := NewService(slog.Default(), newMemoryRepo(), ordersPort, led, val, allExist{}, &fakeNumbers{}, enforce)
	return svc, ordersPort, led, val
}

func TestCreateChecksOpenQuantities(t *testing.T) {
	svc, _, _, _ := newTestService(t, true)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateNoteRequest{OrderID: 1, WarehouseID: 1, Lines: []LineRequest{{ItemID: 1, Qty: 11}}}, 1)
	require.ErrorIs(t, err, ErrOverDelivery)

	_, err = svc.Create(ctx, CreateNoteRequest{OrderID: 1, WarehouseID: 1, Lines: []LineRequest{{ItemID: 99, Qty: 1}}}, 1)
	require.ErrorIs(t, err, ErrInvalidNote)

	note, err := svc.Create(ctx, CreateNoteRequest{OrderID: 1, WarehouseID: 1, Lines: []LineRequest{{ItemID: 1, Qty: 6}}}, 1)
	require.NoError(t, err)
	require.Equal(t, "DN-2026-00001", note.NoteNo)
	require.Equal(t, int64(3), note.CustomerID)
	// Priced at the order's selling rate.
	require.Equal(t, 50.0, note.Lines[0].Rate)
	require.Equal(t, 300.0, note.TotalAmount)
}

func TestSubmitPostsIssuesAtCostBasis(t *testing.T) {
	svc, ordersPort, led, val := newTestService(t, true)
	ctx := context.Background()

	note, err := svc.Create(ctx, CreateNoteRequest{OrderID: 1, WarehouseID: 7, Lines: []LineRequest{{ItemID: 1, Qty: 6}, {ItemID: 2, Qty: 4}}}, 1)
	require.NoError(t, err)

	submitted, err := svc.Submit(ctx, note.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, submitted.Status)

	require.Len(t, led.posted, 1)
	require.Equal(t, ledger.VoucherDeliveryNote, led.posted[0].VoucherType)
	require.Equal(t, []ledger.Line{
		{ItemID: 1, WarehouseID: 7, Qty: -6, Rate: 30},
		{ItemID: 2, WarehouseID: 7, Qty: -4, Rate: 15},
	}, led.posted[0].Lines)

	require.Len(t, ordersPort.applied, 1)
	require.Equal(t, map[int64]float64{1: 6, 2: 4}, ordersPort.applied[0])
	require.ElementsMatch(t, []int64{1, 2}, val.recalced)
}

func TestSubmitCarriesBatchIntoLedger(t *testing.T) {
	svc, _, led, _ := newTestService(t, true)
	ctx := context.Background()

	note, err := svc.Create(ctx, CreateNoteRequest{OrderID: 1, WarehouseID: 7, Lines: []LineRequest{
		{ItemID: 1, Qty: 6, Batch: "LOT-2026-04"},
		{ItemID: 2, Qty: 4},
	}}, 1)
	require.NoError(t, err)
	require.Equal(t, "LOT-2026-04", note.Lines[0].Batch)
	require.Empty(t, note.Lines[1].Batch)

	_, err = svc.Submit(ctx, note.ID, 1)
	require.NoError(t, err)

	require.Len(t, led.posted, 1)
	require.Equal(t, []ledger.Line{
		{ItemID: 1, WarehouseID: 7, Qty: -6, Rate: 30, Batch: "LOT-2026-04"},
		{ItemID: 2, WarehouseID: 7, Qty: -4, Rate: 15},
	}, led.posted[0].Lines)
}

func TestSubmitEnforcesAvailability(t *testing.T) {
	svc, _, led, _ := newTestService(t, true)
	ctx := context.Background()
	led.balances[1] = 2

	note, err := svc.Create(ctx, CreateNoteRequest{OrderID: 1, WarehouseID: 1, Lines: []LineRequest{{ItemID: 1, Qty: 6}}}, 1)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, note.ID, 1)
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	require.Empty(t, led.posted)
}

func TestSubmitSkipsAvailabilityWhenDisabled(t *testing.T) {
	svc, _, led, _ := newTestService(t, false)
	ctx := context.Background()
	led.balances[1] = 0

	note, err := svc.Create(ctx, CreateNoteRequest{OrderID: 1, WarehouseID: 1, Lines: []LineRequest{{ItemID: 1, Qty: 6}}}, 1)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, note.ID, 1)
	require.NoError(t, err)
	require.Len(t, led.posted, 1)
}

func TestSubmitRechecksOrderState(t *testing.T) {
	svc, ordersPort, _, _ := newTestService(t, true)
	ctx := context.Background()

	note, err := svc.Create(ctx, CreateNoteRequest{OrderID: 1, WarehouseID: 1, Lines: []LineRequest{{ItemID: 1, Qty: 6}}}, 1)
	require.NoError(t, err)

	// Another note delivered most of the order in the meantime.
	ordersPort.order.Lines[0].DeliveredQty = 8

	_, err = svc.Submit(ctx, note.ID, 1)
	require.ErrorIs(t, err, ErrOverDelivery)
}

func TestCancelReturnsQuantitiesToOrder(t *testing.T) {
	svc, ordersPort, led, _ := newTestService(t, true)
	ctx := context.Background()

	note, err := svc.Create(ctx, CreateNoteRequest{OrderID: 1, WarehouseID: 1, Lines: []LineRequest{{ItemID: 1, Qty: 6}}}, 1)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, note.ID, 1)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, note.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, []string{note.NoteNo}, led.reversed)
	require.Equal(t, map[int64]float64{1: -6}, ordersPort.applied[len(ordersPort.applied)-1])

	_, err = svc.Cancel(ctx, note.ID, 1)
	require.ErrorIs(t, err, ErrInvalidState)
}
