package orders

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tassili-erp/tassili-erp/internal/pricing"
)

type memoryRepo struct {
	orders map[int64]*SalesOrder
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: map[int64]*SalesOrder{}, nextID: 1}
}

func (m *memoryRepo) List(_ context.Context, req ListOrdersRequest) ([]SalesOrder, int, error) {
	var out []SalesOrder
	for _, o := range m.orders {
		if req.Status != "" && o.Status != req.Status {
			continue
		}
		if req.CustomerID > 0 && o.CustomerID != req.CustomerID {
			continue
		}
		out = append(out, *o)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (*SalesOrder, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *o
	clone.Lines = append([]Line(nil), o.Lines...)
	return &clone, nil
}

func (m *memoryRepo) Create(_ context.Context, order SalesOrder) (*SalesOrder, error) {
	order.ID = m.nextID
	m.nextID++
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	m.orders[order.ID] = &order
	clone := order
	return &clone, nil
}

func (m *memoryRepo) Update(_ context.Context, order SalesOrder) error {
	existing, ok := m.orders[order.ID]
	if !ok || existing.Status != StatusDraft {
		return ErrNotFound
	}
	order.OrderNo = existing.OrderNo
	order.Status = existing.Status
	order.CreatedAt = existing.CreatedAt
	m.orders[order.ID] = &order
	return nil
}

func (m *memoryRepo) SetStatus(_ context.Context, id int64, status Status, at time.Time) error {
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	switch status {
	case StatusOrdered:
		if o.SubmittedAt == nil {
			o.SubmittedAt = &at
		}
	case StatusCancelled:
		o.CancelledAt = &at
	}
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	o, ok := m.orders[id]
	if !ok || o.Status != StatusDraft {
		return ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *memoryRepo) AddDeliveredQty(_ context.Context, orderID, itemID int64, delta float64) error {
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	for i := range o.Lines {
		if o.Lines[i].ItemID == itemID {
			o.Lines[i].DeliveredQty += delta
			return nil
		}
	}
	return ErrNotFound
}

type allExist struct{}

func (allExist) Exists(context.Context, int64) (bool, error) { return true, nil }

type fakePricing struct {
	rates map[int64]float64
}

func (f *fakePricing) ResolveSelling(_ context.Context, itemID int64, _ *int64, _ time.Time) (pricing.ResolvedPrice, error) {
	rate, ok := f.rates[itemID]
	if !ok {
		return pricing.ResolvedPrice{}, pricing.ErrNoPrice
	}
	return pricing.ResolvedPrice{ItemID: itemID, Rate: rate, Currency: "DZD"}, nil
}

type fakeStock struct {
	qty map[int64]float64
}

func (f *fakeStock) AvailableQty(_ context.Context, itemID int64) (float64, error) {
	return f.qty[itemID], nil
}

type fakeNumbers struct{ n int }

func (f *fakeNumbers) Next(_ context.Context, prefix string) (string, error) {
	f.n++
	return fmt.Sprintf("%s-2026-%05d", prefix, f.n), nil
}

func newTestService(t *testing.T) (*Service, *fakePricing, *fakeStock) {
	t.Helper()
	pricingPort := &fakePricing{rates: map[int64]float64{}}
	stock := &fakeStock{qty: map[int64]float64{}}
	svc := NewService(slog.Default(), newMemoryRepo(), allExist{}, allExist{}, pricingPort, stock, &fakeNumbers{})
	return svc, pricingPort, stock
}

func TestCreateAutopricesZeroRateLines(t *testing.T) {
	svc, pricingPort, _ := newTestService(t)
	ctx := context.Background()
	pricingPort.rates[1] = 250

	order, err := svc.Create(ctx, CreateOrderRequest{
		CustomerID: 3,
		Lines: []OrderLineRequest{
			{ItemID: 1, Qty: 2},
			{ItemID: 2, Qty: 1, Rate: 99},
		},
	}, 1)
	require.NoError(t, err)
	require.Equal(t, "SO-2026-00001", order.OrderNo)
	require.Equal(t, StatusDraft, order.Status)
	require.Equal(t, 250.0, order.Lines[0].Rate)
	require.Equal(t, 99.0, order.Lines[1].Rate)
	require.Equal(t, 599.0, order.TotalAmount)
}

func TestCreateRejectsUnpricedAndInvalid(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateOrderRequest{CustomerID: 3}, 1)
	require.ErrorIs(t, err, ErrInvalidOrder)

	// No price list entry for item 5.
	_, err = svc.Create(ctx, CreateOrderRequest{
		CustomerID: 3,
		Lines:      []OrderLineRequest{{ItemID: 5, Qty: 1}},
	}, 1)
	require.ErrorIs(t, err, ErrInvalidOrder)

	past := time.Now().Add(-48 * time.Hour)
	_, err = svc.Create(ctx, CreateOrderRequest{
		CustomerID:       3,
		ExpectedDelivery: &past,
		Lines:            []OrderLineRequest{{ItemID: 5, Qty: 1, Rate: 10}},
	}, 1)
	require.ErrorIs(t, err, ErrInvalidOrder)
}

func TestSubmitWarnsOnShortage(t *testing.T) {
	svc, _, stock := newTestService(t)
	ctx := context.Background()
	stock.qty[1] = 3

	order, err := svc.Create(ctx, CreateOrderRequest{
		CustomerID: 3,
		Lines:      []OrderLineRequest{{ItemID: 1, Qty: 10, Rate: 50}},
	}, 1)
	require.NoError(t, err)

	result, err := svc.Submit(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOrdered, result.Order.Status)
	require.Len(t, result.Warnings, 1)

	// Submitting twice fails.
	_, err = svc.Submit(ctx, order.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestFulfillmentStatusTransitions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateOrderRequest{
		CustomerID: 3,
		Lines: []OrderLineRequest{
			{ItemID: 1, Qty: 10, Rate: 50},
			{ItemID: 2, Qty: 4, Rate: 20},
		},
	}, 1)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, order.ID)
	require.NoError(t, err)

	updated, err := svc.ApplyDelivery(ctx, order.ID, map[int64]float64{1: 6})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyDelivered, updated.Status)

	updated, err = svc.ApplyDelivery(ctx, order.ID, map[int64]float64{1: 4, 2: 4})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, updated.Status)

	// Cancelling a delivery rolls the status back.
	updated, err = svc.ApplyDelivery(ctx, order.ID, map[int64]float64{1: -10, 2: -4})
	require.NoError(t, err)
	require.Equal(t, StatusOrdered, updated.Status)
}

func TestCancelBlockedByDeliveries(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateOrderRequest{
		CustomerID: 3,
		Lines:      []OrderLineRequest{{ItemID: 1, Qty: 10, Rate: 50}},
	}, 1)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, order.ID)
	require.NoError(t, err)

	_, err = svc.ApplyDelivery(ctx, order.ID, map[int64]float64{1: 2})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, order.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	// Once the delivery is undone the order can be cancelled.
	_, err = svc.ApplyDelivery(ctx, order.ID, map[int64]float64{1: -2})
	require.NoError(t, err)
	cancelled, err := svc.Cancel(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
}

func TestOpenQuantities(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateOrderRequest{
		CustomerID: 3,
		Lines:      []OrderLineRequest{{ItemID: 1, Qty: 10, Rate: 50}},
	}, 1)
	require.NoError(t, err)

	// Draft orders cannot be delivered against.
	_, err = svc.OpenQuantities(ctx, order.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.Submit(ctx, order.ID)
	require.NoError(t, err)

	open, err := svc.OpenQuantities(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, map[int64]float64{1: 10}, open)

	_, err = svc.ApplyDelivery(ctx, order.ID, map[int64]float64{1: 4})
	require.NoError(t, err)
	open, err = svc.OpenQuantities(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, map[int64]float64{1: 6}, open)
}
