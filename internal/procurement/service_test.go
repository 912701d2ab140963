package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tassili-erp/tassili-erp/internal/ledger"
	"github.com/tassili-erp/tassili-erp/internal/pricing"
)

type memoryRepo struct {
	orders      map[int64]*PurchaseOrder
	receipts    map[int64]*PurchaseReceipt
	nextOrder   int64
	nextReceipt int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders:      map[int64]*PurchaseOrder{},
		receipts:    map[int64]*PurchaseReceipt{},
		nextOrder:   1,
		nextReceipt: 1,
	}
}

func (m *memoryRepo) ListOrders(_ context.Context, req ListOrdersRequest) ([]PurchaseOrder, int, error) {
	var out []PurchaseOrder
	for _, o := range m.orders {
		if req.Status != "" && o.Status != req.Status {
			continue
		}
		out = append(out, *o)
	}
	return out, len(out), nil
}

func (m *memoryRepo) GetOrder(_ context.Context, id int64) (*PurchaseOrder, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	clone := *o
	clone.Lines = append([]OrderLine(nil), o.Lines...)
	return &clone, nil
}

func (m *memoryRepo) CreateOrder(_ context.Context, order PurchaseOrder) (*PurchaseOrder, error) {
	order.ID = m.nextOrder
	m.nextOrder++
	order.CreatedAt = time.Now()
	m.orders[order.ID] = &order
	clone := order
	return &clone, nil
}

func (m *memoryRepo) UpdateOrder(_ context.Context, order PurchaseOrder) error {
	existing, ok := m.orders[order.ID]
	if !ok || existing.Status != OrderDraft {
		return ErrOrderNotFound
	}
	order.OrderNo = existing.OrderNo
	order.Status = existing.Status
	m.orders[order.ID] = &order
	return nil
}

func (m *memoryRepo) SetOrderStatus(_ context.Context, id int64, status OrderStatus, at time.Time) error {
	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	return nil
}

func (m *memoryRepo) DeleteOrder(_ context.Context, id int64) error {
	o, ok := m.orders[id]
	if !ok || o.Status != OrderDraft {
		return ErrOrderNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *memoryRepo) AddReceivedQty(_ context.Context, orderID, itemID int64, delta float64) error {
	o, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	for i := range o.Lines {
		if o.Lines[i].ItemID == itemID {
			o.Lines[i].ReceivedQty += delta
			return nil
		}
	}
	return ErrOrderNotFound
}

func (m *memoryRepo) ListReceipts(_ context.Context, req ListReceiptsRequest) ([]PurchaseReceipt, int, error) {
	var out []PurchaseReceipt
	for _, r := range m.receipts {
		if req.Status != "" && r.Status != req.Status {
			continue
		}
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *memoryRepo) GetReceipt(_ context.Context, id int64) (*PurchaseReceipt, error) {
	r, ok := m.receipts[id]
	if !ok {
		return nil, ErrReceiptNotFound
	}
	clone := *r
	clone.Lines = append([]ReceiptLine(nil), r.Lines...)
	return &clone, nil
}

func (m *memoryRepo) CreateReceipt(_ context.Context, receipt PurchaseReceipt) (*PurchaseReceipt, error) {
	receipt.ID = m.nextReceipt
	m.nextReceipt++
	receipt.CreatedAt = time.Now()
	m.receipts[receipt.ID] = &receipt
	clone := receipt
	return &clone, nil
}

func (m *memoryRepo) SetReceiptStatus(_ context.Context, id int64, status ReceiptStatus, at time.Time) error {
	r, ok := m.receipts[id]
	if !ok {
		return ErrReceiptNotFound
	}
	r.Status = status
	return nil
}

func (m *memoryRepo) DeleteReceipt(_ context.Context, id int64) error {
	r, ok := m.receipts[id]
	if !ok || r.Status != ReceiptDraft {
		return ErrReceiptNotFound
	}
	delete(m.receipts, id)
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
	recalced  []int64
	purchases map[int64]float64
}

func (f *fakeValuation) Recalculate(_ context.Context, itemID int64) (float64, error) {
	f.recalced = append(f.recalced, itemID)
	return 0, nil
}

func (f *fakeValuation) RecordPurchase(_ context.Context, itemID int64, rate float64) error {
	f.purchases[itemID] = rate
	return nil
}

type fakePricing struct {
	rates map[int64]float64
}

func (f *fakePricing) ResolveBuying(_ context.Context, itemID int64, _ *int64, _ time.Time) (pricing.ResolvedPrice, error) {
	rate, ok := f.rates[itemID]
	if !ok {
		return pricing.ResolvedPrice{}, pricing.ErrNoPrice
	}
	return pricing.ResolvedPrice{ItemID: itemID, Rate: rate, Currency: "DZD"}, nil
}

type allExist struct{}

func (allExist) Exists(context.Context, int64) (bool, error) { return true, nil }

type fakeNumbers struct{ n int }

func (f *fakeNumbers) Next(_ context.Context, prefix string) (string, error) {
	f.n++
	return fmt.Sprintf("%s-2026-%05d", prefix, f.n), nil
}

func newTestService(t *testing.T) (*Service, *fakeLedger, *fakeValuation, *fakePricing) {
	t.Helper()
	led := &fakeLedger{}
	val := &fakeValuation{purchases: map[int64]float64{}}
	pricingPort := &fakePricing{rates: map[int64]float64{}}
	svc := NewService(slog.Default(), newMemoryRepo(), led, val, pricingPort, allExist{}, allExist{}, allExist{}, &fakeNumbers{})
	return svc, led, val, pricingPort
}

func orderedPO(t *testing.T, svc *Service) *PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	order, err := svc.CreateOrder(ctx, CreateOrderRequest{
		SupplierID: 4,
		Lines: []OrderLineRequest{
			{ItemID: 1, Qty: 10, Rate: 30},
			{ItemID: 2, Qty: 5, Rate: 12},
		},
	}, 1)
	require.NoError(t, err)
	order, err = svc.SubmitOrder(ctx, order.ID)
	require.NoError(t, err)
	return order
}

func TestCreateOrderAutoprices(t *testing.T) {
	svc, _, _, pricingPort := newTestService(t)
	ctx := context.Background()
	pricingPort.rates[1] = 27.5

	order, err := svc.CreateOrder(ctx, CreateOrderRequest{
		SupplierID: 4,
		Lines:      []OrderLineRequest{{ItemID: 1, Qty: 10}},
	}, 1)
	require.NoError(t, err)
	require.Equal(t, "PO-2026-00001", order.OrderNo)
	require.Equal(t, 27.5, order.Lines[0].Rate)
	require.Equal(t, 275.0, order.TotalAmount)

	// No buying price means the line cannot be autopriced.
	_, err = svc.CreateOrder(ctx, CreateOrderRequest{
		SupplierID: 4,
		Lines:      []OrderLineRequest{{ItemID: 9, Qty: 1}},
	}, 1)
	require.ErrorIs(t, err, ErrInvalidDocument)
}

func TestReceiptLifecycle(t *testing.T) {
	svc, led, val, _ := newTestService(t)
	ctx := context.Background()
	order := orderedPO(t, svc)

	receipt, err := svc.CreateReceipt(ctx, CreateReceiptRequest{
		OrderID:     order.ID,
		WarehouseID: 3,
		Lines:       []ReceiptLineRequest{{ItemID: 1, Qty: 6}},
	}, 1)
	require.NoError(t, err)
	require.Equal(t, "PRC-2026-00002", receipt.ReceiptNo)
	// Rate falls back to the purchase order's rate.
	require.Equal(t, 30.0, receipt.Lines[0].Rate)

	submitted, err := svc.SubmitReceipt(ctx, receipt.ID, 1)
	require.NoError(t, err)
	require.Equal(t, ReceiptSubmitted, submitted.Status)

	require.Len(t, led.posted, 1)
	require.Equal(t, ledger.VoucherPurchaseReceipt, led.posted[0].VoucherType)
	require.Equal(t, []ledger.Line{{ItemID: 1, WarehouseID: 3, Qty: 6, Rate: 30}}, led.posted[0].Lines)
	require.Equal(t, 30.0, val.purchases[1])

	order, err = svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderPartiallyReceived, order.Status)
	require.Equal(t, 6.0, order.Lines[0].ReceivedQty)
}

func TestOrderCompletesWhenFullyReceived(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	order := orderedPO(t, svc)

	receipt, err := svc.CreateReceipt(ctx, CreateReceiptRequest{
		OrderID:     order.ID,
		WarehouseID: 3,
		Lines:       []ReceiptLineRequest{{ItemID: 1, Qty: 10}, {ItemID: 2, Qty: 5}},
	}, 1)
	require.NoError(t, err)
	_, err = svc.SubmitReceipt(ctx, receipt.ID, 1)
	require.NoError(t, err)

	order, err = svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderCompleted, order.Status)
}

func TestOverReceiptRejected(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	order := orderedPO(t, svc)

	_, err := svc.CreateReceipt(ctx, CreateReceiptRequest{
		OrderID:     order.ID,
		WarehouseID: 3,
		Lines:       []ReceiptLineRequest{{ItemID: 1, Qty: 11}},
	}, 1)
	require.ErrorIs(t, err, ErrOverReceipt)

	// Open quantity shrinks as receipts land.
	receipt, err := svc.CreateReceipt(ctx, CreateReceiptRequest{
		OrderID:     order.ID,
		WarehouseID: 3,
		Lines:       []ReceiptLineRequest{{ItemID: 1, Qty: 8}},
	}, 1)
	require.NoError(t, err)
	_, err = svc.SubmitReceipt(ctx, receipt.ID, 1)
	require.NoError(t, err)

	_, err = svc.CreateReceipt(ctx, CreateReceiptRequest{
		OrderID:     order.ID,
		WarehouseID: 3,
		Lines:       []ReceiptLineRequest{{ItemID: 1, Qty: 3}},
	}, 1)
	require.ErrorIs(t, err, ErrOverReceipt)
}

func TestCancelReceiptRestoresOrder(t *testing.T) {
	svc, led, _, _ := newTestService(t)
	ctx := context.Background()
	order := orderedPO(t, svc)

	receipt, err := svc.CreateReceipt(ctx, CreateReceiptRequest{
		OrderID:     order.ID,
		WarehouseID: 3,
		Lines:       []ReceiptLineRequest{{ItemID: 1, Qty: 10}, {ItemID: 2, Qty: 5}},
	}, 1)
	require.NoError(t, err)
	_, err = svc.SubmitReceipt(ctx, receipt.ID, 1)
	require.NoError(t, err)

	cancelled, err := svc.CancelReceipt(ctx, receipt.ID, 1)
	require.NoError(t, err)
	require.Equal(t, ReceiptCancelled, cancelled.Status)
	require.Equal(t, []string{receipt.ReceiptNo}, led.reversed)

	order, err = svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderOrdered, order.Status)
	require.Equal(t, 0.0, order.Lines[0].ReceivedQty)

	_, err = svc.CancelReceipt(ctx, receipt.ID, 1)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelOrderBlockedByReceipts(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	order := orderedPO(t, svc)

	receipt, err := svc.CreateReceipt(ctx, CreateReceiptRequest{
		OrderID:     order.ID,
		WarehouseID: 3,
		Lines:       []ReceiptLineRequest{{ItemID: 1, Qty: 2}},
	}, 1)
	require.NoError(t, err)
	_, err = svc.SubmitReceipt(ctx, receipt.ID, 1)
	require.NoError(t, err)

	_, err = svc.CancelOrder(ctx, order.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.CancelReceipt(ctx, receipt.ID, 1)
	require.NoError(t, err)
	cancelled, err := svc.CancelOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderCancelled, cancelled.Status)
}
