package pos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tassili-erp/tassili-erp/internal/ledger"
	"github.com/tassili-erp/tassili-erp/internal/pricing"
)

// LedgerPort posts and reverses ledger vouchers.
type LedgerPort interface {
	Post(ctx context.Context, input ledger.PostInput) ([]ledger.Entry, error)
	Reverse(ctx context.Context, voucherType ledger.VoucherType, voucherNo string, actorID int64) ([]ledger.Entry, error)
}

// ValuationPort values sold stock and recomputes rates after the sale.
type ValuationPort interface {
	CostBasis(ctx context.Context, itemID int64) (float64, error)
	Recalculate(ctx context.Context, itemID int64) (float64, error)
}

// PricingPort resolves selling rates for unpriced lines.
type PricingPort interface {
	ResolveSelling(ctx context.Context, itemID int64, customerID *int64, on time.Time) (pricing.ResolvedPrice, error)
}

// MasterPort answers existence checks against master data.
type MasterPort interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// NumberPort hands out document numbers.
type NumberPort interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// CreateInvoiceRequest carries a new draft invoice. The customer is
// optional; walk-in sales leave it empty.
type CreateInvoiceRequest struct {
	CustomerID  *int64           `json:"customer_id,omitempty"`
	WarehouseID int64            `json:"warehouse_id"`
	PostingDate time.Time        `json:"posting_date"`
	Lines       []LineRequest    `json:"lines"`
	Payments    []PaymentRequest `json:"payments"`
}

// LineRequest is one sold quantity. A zero rate asks the price list.
type LineRequest struct {
	ItemID int64   `json:"item_id"`
	Qty    float64 `json:"qty"`
	Rate   float64 `json:"rate"`
}

// PaymentRequest is one tender row.
type PaymentRequest struct {
	Mode   PaymentMode `json:"mode"`
	Amount float64     `json:"amount"`
}

// Service owns the POS invoice lifecycle.
type Service struct {
	logger     *slog.Logger
	repo       Repository
	ledger     LedgerPort
	valuation  ValuationPort
	pricing    PricingPort
	customers  MasterPort
	items      MasterPort
	warehouses MasterPort
	numbers    NumberPort
}

// NewService constructs the service.
func NewService(logger *slog.Logger, repo Repository, ledgerPort LedgerPort, valuation ValuationPort, pricingPort PricingPort, customers, items, warehouses MasterPort, numbers NumberPort) *Service {
	return &Service{
		logger:     logger,
		repo:       repo,
		ledger:     ledgerPort,
		valuation:  valuation,
		pricing:    pricingPort,
		customers:  customers,
		items:      items,
		warehouses: warehouses,
		numbers:    numbers,
	}
}

// List returns invoices matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	return s.repo.List(ctx, filter)
}

// Get returns one invoice with lines and payments.
func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a new draft invoice.
func (s *Service) Create(ctx context.Context, req CreateInvoiceRequest, createdBy int64) (*Invoice, error) {
	if req.WarehouseID <= 0 {
		return nil, fmt.Errorf("%w: warehouse is required", ErrInvalidInvoice)
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrInvalidInvoice)
	}
	ok, err := s.warehouses.Exists(ctx, req.WarehouseID)
	if err != nil {
		return nil, fmt.Errorf("verify warehouse: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: warehouse %d not found or disabled", ErrInvalidInvoice, req.WarehouseID)
	}
	if req.CustomerID != nil {
		ok, err := s.customers.Exists(ctx, *req.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("verify customer: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: customer %d not found or disabled", ErrInvalidInvoice, *req.CustomerID)
		}
	}

	postingDate := req.PostingDate
	if postingDate.IsZero() {
		postingDate = time.Now().UTC()
	}

	lines := make([]Line, 0, len(req.Lines))
	total := 0.0
	for _, lineReq := range req.Lines {
		if lineReq.ItemID <= 0 {
			return nil, fmt.Errorf("%w: line item is required", ErrInvalidInvoice)
		}
		if lineReq.Qty <= 0 {
			return nil, fmt.Errorf("%w: line quantity must be positive", ErrInvalidInvoice)
		}
		ok, err := s.items.Exists(ctx, lineReq.ItemID)
		if err != nil {
			return nil, fmt.Errorf("verify item: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: item %d not found or disabled", ErrInvalidInvoice, lineReq.ItemID)
		}

		rate := lineReq.Rate
		if rate == 0 {
			resolved, err := s.pricing.ResolveSelling(ctx, lineReq.ItemID, req.CustomerID, postingDate)
			if errors.Is(err, pricing.ErrNoPrice) {
				return nil, fmt.Errorf("%w: no selling price for item %d", ErrInvalidInvoice, lineReq.ItemID)
			}
			if err != nil {
				return nil, fmt.Errorf("resolve price: %w", err)
			}
			rate = resolved.Rate
		}
		amount := lineReq.Qty * rate
		total += amount
		lines = append(lines, Line{ItemID: lineReq.ItemID, Qty: lineReq.Qty, Rate: rate, Amount: amount})
	}

	payments := make([]Payment, 0, len(req.Payments))
	paid := 0.0
	for _, payReq := range req.Payments {
		if !payReq.Mode.Valid() {
			return nil, fmt.Errorf("%w: unknown payment mode %q", ErrInvalidInvoice, payReq.Mode)
		}
		if payReq.Amount <= 0 {
			return nil, fmt.Errorf("%w: payment amount must be positive", ErrInvalidInvoice)
		}
		paid += payReq.Amount
		payments = append(payments, Payment{Mode: payReq.Mode, Amount: payReq.Amount})
	}

	invoiceNo, err := s.numbers.Next(ctx, "POS")
	if err != nil {
		return nil, fmt.Errorf("generate invoice number: %w", err)
	}
	rounded := RoundTotal(total)

	return s.repo.Create(ctx, Invoice{
		InvoiceNo:    invoiceNo,
		CustomerID:   req.CustomerID,
		WarehouseID:  req.WarehouseID,
		PostingDate:  postingDate,
		Status:       StatusDraft,
		TotalAmount:  total,
		RoundedTotal: rounded,
		PaidAmount:   paid,
		Lines:        lines,
		Payments:     payments,
		CreatedBy:    createdBy,
	})
}

// Delete removes a draft invoice.
func (s *Service) Delete(ctx context.Context, id int64) error {
	invoice, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if invoice.Status != StatusDraft {
		return fmt.Errorf("%w: only drafts can be deleted", ErrInvalidState)
	}
	return s.repo.Delete(ctx, id)
}

// Submit captures the cost of each line at the current valuation rate,
// verifies the payments cover the rounded total, posts issues to the
// ledger and marks the invoice Paid.
func (s *Service) Submit(ctx context.Context, id int64, actorID int64) (*Invoice, error) {
	invoice, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != StatusDraft {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, invoice.InvoiceNo, invoice.Status)
	}
	if len(invoice.Payments) == 0 {
		return nil, fmt.Errorf("%w: at least one payment is required", ErrInvalidInvoice)
	}
	if invoice.PaidAmount < invoice.RoundedTotal-0.0001 {
		return nil, fmt.Errorf("%w: paid %.2f of %.2f", ErrUnderpaid, invoice.PaidAmount, invoice.RoundedTotal)
	}

	totalCost := 0.0
	ledgerLines := make([]ledger.Line, 0, len(invoice.Lines))
	for i := range invoice.Lines {
		line := &invoice.Lines[i]
		cost, err := s.valuation.CostBasis(ctx, line.ItemID)
		if err != nil {
			return nil, err
		}
		line.CostRate = cost
		totalCost += cost * line.Qty
		ledgerLines = append(ledgerLines, ledger.Line{
			ItemID:      line.ItemID,
			WarehouseID: invoice.WarehouseID,
			Qty:         -line.Qty,
			Rate:        cost,
		})
	}

	if _, err := s.ledger.Post(ctx, ledger.PostInput{
		VoucherType: ledger.VoucherPOSInvoice,
		VoucherNo:   invoice.InvoiceNo,
		PostedAt:    invoice.PostingDate,
		ActorID:     actorID,
		Lines:       ledgerLines,
	}); err != nil {
		return nil, err
	}

	for _, line := range invoice.Lines {
		if _, err := s.valuation.Recalculate(ctx, line.ItemID); err != nil {
			s.logger.Warn("valuation recalculate failed", slog.Int64("item_id", line.ItemID), slog.Any("error", err))
		}
	}

	invoice.TotalCost = totalCost
	invoice.Profit = invoice.TotalAmount - totalCost
	if invoice.TotalAmount > 0 {
		invoice.Margin = invoice.Profit / invoice.TotalAmount * 100
	}
	invoice.ChangeAmount = invoice.PaidAmount - invoice.RoundedTotal

	if err := s.repo.Finalize(ctx, *invoice, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Cancel reverses the stock postings of a paid invoice.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) (*Invoice, error) {
	invoice, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != StatusPaid {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, invoice.InvoiceNo, invoice.Status)
	}
	if _, err := s.ledger.Reverse(ctx, ledger.VoucherPOSInvoice, invoice.InvoiceNo, actorID); err != nil {
		return nil, err
	}
	for _, line := range invoice.Lines {
		if _, err := s.valuation.Recalculate(ctx, line.ItemID); err != nil {
			s.logger.Warn("valuation recalculate failed", slog.Int64("item_id", line.ItemID), slog.Any("error", err))
		}
	}
	if err := s.repo.SetStatus(ctx, id, StatusCancelled, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// DailySummary aggregates the paid invoices of one calendar day.
type DailySummary struct {
	Day      string  `json:"day"`
	Invoices int     `json:"invoices"`
	Total    float64 `json:"total"`
	Profit   float64 `json:"profit"`
}

// Daily returns the sales summary for a day.
func (s *Service) Daily(ctx context.Context, day time.Time) (DailySummary, error) {
	count, total, profit, err := s.repo.DailyTotals(ctx, day)
	if err != nil {
		return DailySummary{}, err
	}
	return DailySummary{
		Day:      day.Format("2006-01-02"),
		Invoices: count,
		Total:    total,
		Profit:   profit,
	}, nil
}
