package pos

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
	invoices map[int64]*Invoice
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{invoices: map[int64]*Invoice{}, nextID: 1}
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		out = append(out, *inv)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *inv
	clone.Lines = append([]Line(nil), inv.Lines...)
	clone.Payments = append([]Payment(nil), inv.Payments...)
	return &clone, nil
}

func (m *memoryRepo) Create(_ context.Context, invoice Invoice) (*Invoice, error) {
	invoice.ID = m.nextID
	m.nextID++
	invoice.CreatedAt = time.Now()
	m.invoices[invoice.ID] = &invoice
	clone := invoice
	return &clone, nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	inv, ok := m.invoices[id]
	if !ok || inv.Status != StatusDraft {
		return ErrNotFound
	}
	delete(m.invoices, id)
	return nil
}

func (m *memoryRepo) Finalize(_ context.Context, invoice Invoice, at time.Time) error {
	existing, ok := m.invoices[invoice.ID]
	if !ok || existing.Status != StatusDraft {
		return ErrNotFound
	}
	invoice.Status = StatusPaid
	invoice.SubmittedAt = &at
	m.invoices[invoice.ID] = &invoice
	return nil
}

func (m *memoryRepo) SetStatus(_ context.Context, id int64, status Status, at time.Time) error {
	inv, ok := m.invoices[id]
	if !ok {
		return ErrNotFound
	}
	inv.Status = status
	if status == StatusCancelled {
		inv.CancelledAt = &at
	}
	return nil
}

func (m *memoryRepo) DailyTotals(_ context.Context, day time.Time) (int, float64, float64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)
	count := 0
	total, profit := 0.0, 0.0
	for _, inv := range m.invoices {
		if inv.Status != StatusPaid || inv.PostingDate.Before(start) || !inv.PostingDate.Before(end) {
			continue
		}
		count++
		total += inv.RoundedTotal
		profit += inv.Profit
	}
	return count, total, profit, nil
}

type fakeLedger struct {
	posted   []ledger.PostInput
	reversed []string
	postErr  error
}

func (f *fakeLedger) Post(_ context.Context, input ledger.PostInput) ([]ledger.Entry, error) {
	if f.postErr != nil {
		return nil, f.postErr
	}
	f.posted = append(f.posted, input)
	return nil, nil
}

func (f *fakeLedger) Reverse(_ context.Context, _ ledger.VoucherType, voucherNo string, _ int64) ([]ledger.Entry, error) {
	f.reversed = append(f.reversed, voucherNo)
	return nil, nil
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
	val := &fakeValuation{rates: map[int64]float64{}}
	pricingPort := &fakePricing{rates: map[int64]float64{}}
	svc := NewService(slog.Default(), newMemoryRepo(), led, val, pricingPort, allExist{}, allExist{}, allExist{}, &fakeNumbers{})
	return svc, led, val, pricingPort
}

func TestCreateRoundsTotalAndAutoprices(t *testing.T) {
	svc, _, _, pricingPort := newTestService(t)
	ctx := context.Background()
	pricingPort.rates[1] = 120.4

	invoice, err := svc.Create(ctx, CreateInvoiceRequest{
		WarehouseID: 1,
		Lines:       []LineRequest{{ItemID: 1, Qty: 3}},
		Payments:    []PaymentRequest{{Mode: PayCash, Amount: 362}},
	}, 1)
	require.NoError(t, err)
	require.Equal(t, "POS-2026-00001", invoice.InvoiceNo)
	require.Equal(t, 120.4, invoice.Lines[0].Rate)
	require.InDelta(t, 361.2, invoice.TotalAmount, 0.0001)
	require.Equal(t, 361.0, invoice.RoundedTotal)
	require.Equal(t, 362.0, invoice.PaidAmount)
}

func TestSubmitCapturesCostAndProfit(t *testing.T) {
	svc, led, val, _ := newTestService(t)
	ctx := context.Background()
	val.rates[1] = 70

	invoice, err := svc.Create(ctx, CreateInvoiceRequest{
		WarehouseID: 2,
		Lines:       []LineRequest{{ItemID: 1, Qty: 2, Rate: 100}},
		Payments:    []PaymentRequest{{Mode: PayCash, Amount: 200}},
	}, 1)
	require.NoError(t, err)

	paid, err := svc.Submit(ctx, invoice.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.Equal(t, 70.0, paid.Lines[0].CostRate)
	require.Equal(t, 140.0, paid.TotalCost)
	require.Equal(t, 60.0, paid.Profit)
	require.Equal(t, 30.0, paid.Margin)
	require.Equal(t, 0.0, paid.ChangeAmount)

	// Stock leaves the warehouse at cost, not at the selling rate.
	require.Len(t, led.posted, 1)
	require.Equal(t, ledger.VoucherPOSInvoice, led.posted[0].VoucherType)
	require.Equal(t, []ledger.Line{{ItemID: 1, WarehouseID: 2, Qty: -2, Rate: 70}}, led.posted[0].Lines)
	require.Equal(t, []int64{1}, val.recalced)
}

func TestSubmitRejectsUnderpayment(t *testing.T) {
	svc, led, _, _ := newTestService(t)
	ctx := context.Background()

	invoice, err := svc.Create(ctx, CreateInvoiceRequest{
		WarehouseID: 1,
		Lines:       []LineRequest{{ItemID: 1, Qty: 1, Rate: 500}},
		Payments:    []PaymentRequest{{Mode: PayCard, Amount: 400}},
	}, 1)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, invoice.ID, 1)
	require.ErrorIs(t, err, ErrUnderpaid)
	require.Empty(t, led.posted)
}

func TestSubmitChangeForOverpayment(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	invoice, err := svc.Create(ctx, CreateInvoiceRequest{
		WarehouseID: 1,
		Lines:       []LineRequest{{ItemID: 1, Qty: 1, Rate: 480}},
		Payments:    []PaymentRequest{{Mode: PayCash, Amount: 500}},
	}, 1)
	require.NoError(t, err)

	paid, err := svc.Submit(ctx, invoice.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 20.0, paid.ChangeAmount)
}

func TestSubmitFailsWhenLedgerRejects(t *testing.T) {
	svc, led, _, _ := newTestService(t)
	ctx := context.Background()
	led.postErr = ledger.ErrInsufficientStock

	invoice, err := svc.Create(ctx, CreateInvoiceRequest{
		WarehouseID: 1,
		Lines:       []LineRequest{{ItemID: 1, Qty: 1, Rate: 100}},
		Payments:    []PaymentRequest{{Mode: PayCash, Amount: 100}},
	}, 1)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, invoice.ID, 1)
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	// The invoice stays a draft.
	current, err := svc.Get(ctx, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, current.Status)
}

func TestCancelReversesPostings(t *testing.T) {
	svc, led, _, _ := newTestService(t)
	ctx := context.Background()

	invoice, err := svc.Create(ctx, CreateInvoiceRequest{
		WarehouseID: 1,
		Lines:       []LineRequest{{ItemID: 1, Qty: 1, Rate: 100}},
		Payments:    []PaymentRequest{{Mode: PayCash, Amount: 100}},
	}, 1)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, invoice.ID, 1)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, invoice.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, []string{invoice.InvoiceNo}, led.reversed)

	_, err = svc.Cancel(ctx, invoice.ID, 1)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestDailySummary(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	today := time.Now().UTC()

	for i := 0; i < 2; i++ {
		invoice, err := svc.Create(ctx, CreateInvoiceRequest{
			WarehouseID: 1,
			PostingDate: today,
			Lines:       []LineRequest{{ItemID: 1, Qty: 1, Rate: 100}},
			Payments:    []PaymentRequest{{Mode: PayCash, Amount: 100}},
		}, 1)
		require.NoError(t, err)
		_, err = svc.Submit(ctx, invoice.ID, 1)
		require.NoError(t, err)
	}

	summary, err := svc.Daily(ctx, today)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Invoices)
	require.Equal(t, 200.0, summary.Total)
}
