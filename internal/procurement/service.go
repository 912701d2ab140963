package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tassili-erp/tassili-erp/internal/ledger"
	"github.com/tassili-erp/tassili-erp/internal/pricing"
)

// LedgerPort posts and reverses ledger vouchers.
type LedgerPort interface {
	Post(ctx context.Context, input ledger.PostInput) ([]ledger.Entry, error)
	Reverse(ctx context.Context, voucherType ledger.VoucherType, voucherNo string, actorID int64) ([]ledger.Entry, error)
}

// ValuationPort recomputes item rates after stock moves.
type ValuationPort interface {
	Recalculate(ctx context.Context, itemID int64) (float64, error)
	RecordPurchase(ctx context.Context, itemID int64, rate float64) error
}

// PricingPort resolves buying rates for autopriced lines.
type PricingPort interface {
	ResolveBuying(ctx context.Context, itemID int64, supplierID *int64, on time.Time) (pricing.ResolvedPrice, error)
}

// MasterPort answers existence checks against master data.
type MasterPort interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// NumberPort hands out document numbers.
type NumberPort interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// Service owns purchase orders and purchase receipts.
type Service struct {
	logger     *slog.Logger
	repo       Repository
	ledger     LedgerPort
	valuation  ValuationPort
	pricing    PricingPort
	suppliers  MasterPort
	items      MasterPort
	warehouses MasterPort
	numbers    NumberPort
	validate   *validator.Validate
}

// NewService constructs the service.
func NewService(logger *slog.Logger, repo Repository, ledgerPort LedgerPort, valuation ValuationPort, pricingPort PricingPort, suppliers, items, warehouses MasterPort, numbers NumberPort) *Service {
	return &Service{
		logger:     logger,
		repo:       repo,
		ledger:     ledgerPort,
		valuation:  valuation,
		pricing:    pricingPort,
		suppliers:  suppliers,
		items:      items,
		warehouses: warehouses,
		numbers:    numbers,
		validate:   validator.New(),
	}
}

// ListOrders returns purchase orders matching the filter.
func (s *Service) ListOrders(ctx context.Context, req ListOrdersRequest) ([]PurchaseOrder, int, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 {
		req.Limit = 20
	}
	return s.repo.ListOrders(ctx, req)
}

// GetOrder returns one purchase order with its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (*PurchaseOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

// CreateOrder stores a new draft. Lines without a rate are priced from
// the supplier's buying price list.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest, createdBy int64) (*PurchaseOrder, error) {
	order, err := s.buildOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	orderNo, err := s.numbers.Next(ctx, "PO")
	if err != nil {
		return nil, fmt.Errorf("generate order number: %w", err)
	}
	order.OrderNo = orderNo
	order.Status = OrderDraft
	order.CreatedBy = createdBy
	return s.repo.CreateOrder(ctx, *order)
}

// UpdateOrder replaces a draft's content.
func (s *Service) UpdateOrder(ctx context.Context, id int64, req CreateOrderRequest) (*PurchaseOrder, error) {
	existing, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != OrderDraft {
		return nil, fmt.Errorf("%w: only drafts can be edited", ErrInvalidState)
	}
	order, err := s.buildOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	order.ID = id
	if err := s.repo.UpdateOrder(ctx, *order); err != nil {
		return nil, err
	}
	return s.repo.GetOrder(ctx, id)
}

// DeleteOrder removes a draft.
func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	existing, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status != OrderDraft {
		return fmt.Errorf("%w: only drafts can be deleted", ErrInvalidState)
	}
	return s.repo.DeleteOrder(ctx, id)
}

// SubmitOrder moves a draft to Ordered.
func (s *Service) SubmitOrder(ctx context.Context, id int64) (*PurchaseOrder, error) {
	existing, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != OrderDraft {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, existing.OrderNo, existing.Status)
	}
	if err := s.repo.SetOrderStatus(ctx, id, OrderOrdered, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.repo.GetOrder(ctx, id)
}

// CancelOrder voids an order that has no receipts against it.
func (s *Service) CancelOrder(ctx context.Context, id int64) (*PurchaseOrder, error) {
	existing, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	switch existing.Status {
	case OrderCancelled, OrderCompleted:
		return nil, fmt.Errorf("%w: %s is already final", ErrInvalidState, existing.OrderNo)
	}
	for _, line := range existing.Lines {
		if line.ReceivedQty > 0.0001 {
			return nil, fmt.Errorf("%w: %s has receipts, cancel those first", ErrInvalidState, existing.OrderNo)
		}
	}
	if err := s.repo.SetOrderStatus(ctx, id, OrderCancelled, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.repo.GetOrder(ctx, id)
}

// ListReceipts returns purchase receipts matching the filter.
func (s *Service) ListReceipts(ctx context.Context, req ListReceiptsRequest) ([]PurchaseReceipt, int, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 {
		req.Limit = 20
	}
	return s.repo.ListReceipts(ctx, req)
}

// GetReceipt returns one purchase receipt with its lines.
func (s *Service) GetReceipt(ctx context.Context, id int64) (*PurchaseReceipt, error) {
	return s.repo.GetReceipt(ctx, id)
}

// CreateReceipt stores a new draft receipt against a submitted purchase
// order. Each line must fit within the order's open quantity.
func (s *Service) CreateReceipt(ctx context.Context, req CreateReceiptRequest, createdBy int64) (*PurchaseReceipt, error) {
	if req.OrderID <= 0 {
		return nil, fmt.Errorf("%w: purchase order is required", ErrInvalidDocument)
	}
	if req.WarehouseID <= 0 {
		return nil, fmt.Errorf("%w: warehouse is required", ErrInvalidDocument)
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrInvalidDocument)
	}
	ok, err := s.warehouses.Exists(ctx, req.WarehouseID)
	if err != nil {
		return nil, fmt.Errorf("verify warehouse: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: warehouse %d not found or disabled", ErrInvalidDocument, req.WarehouseID)
	}

	order, err := s.repo.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("verify order: %w", err)
	}
	switch order.Status {
	case OrderOrdered, OrderPartiallyReceived:
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, order.OrderNo, order.Status)
	}

	open := map[int64]float64{}
	rates := map[int64]float64{}
	for _, line := range order.Lines {
		open[line.ItemID] += line.Qty - line.ReceivedQty
		rates[line.ItemID] = line.Rate
	}

	seen := map[int64]bool{}
	lines := make([]ReceiptLine, 0, len(req.Lines))
	total := 0.0
	for _, lineReq := range req.Lines {
		if seen[lineReq.ItemID] {
			return nil, fmt.Errorf("%w: item %d appears twice", ErrInvalidDocument, lineReq.ItemID)
		}
		seen[lineReq.ItemID] = true
		if lineReq.Qty <= 0 {
			return nil, fmt.Errorf("%w: line quantity must be positive", ErrInvalidDocument)
		}
		remaining, onOrder := open[lineReq.ItemID]
		if !onOrder {
			return nil, fmt.Errorf("%w: item %d is not on order %s", ErrInvalidDocument, lineReq.ItemID, order.OrderNo)
		}
		if lineReq.Qty > remaining+0.0001 {
			return nil, fmt.Errorf("%w: item %d has %.2f open, requested %.2f", ErrOverReceipt, lineReq.ItemID, remaining, lineReq.Qty)
		}
		rate := lineReq.Rate
		if rate == 0 {
			rate = rates[lineReq.ItemID]
		}
		if rate <= 0 {
			return nil, fmt.Errorf("%w: item %d needs a positive rate", ErrInvalidDocument, lineReq.ItemID)
		}
		amount := lineReq.Qty * rate
		total += amount
		lines = append(lines, ReceiptLine{ItemID: lineReq.ItemID, Qty: lineReq.Qty, Rate: rate, Amount: amount})
	}

	postingDate := req.PostingDate
	if postingDate.IsZero() {
		postingDate = time.Now().UTC()
	}
	receiptNo, err := s.numbers.Next(ctx, "PRC")
	if err != nil {
		return nil, fmt.Errorf("generate receipt number: %w", err)
	}

	return s.repo.CreateReceipt(ctx, PurchaseReceipt{
		ReceiptNo:   receiptNo,
		OrderID:     req.OrderID,
		SupplierID:  order.SupplierID,
		WarehouseID: req.WarehouseID,
		PostingDate: postingDate,
		Status:      ReceiptDraft,
		Remarks:     req.Remarks,
		TotalAmount: total,
		Lines:       lines,
		CreatedBy:   createdBy,
	})
}

// DeleteReceipt removes a draft receipt.
func (s *Service) DeleteReceipt(ctx context.Context, id int64) error {
	receipt, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return err
	}
	if receipt.Status != ReceiptDraft {
		return fmt.Errorf("%w: only drafts can be deleted", ErrInvalidState)
	}
	return s.repo.DeleteReceipt(ctx, id)
}

// SubmitReceipt posts receipt entries at the purchase rate, refreshes the
// item valuation, records the purchase rate and advances the order.
func (s *Service) SubmitReceipt(ctx context.Context, id int64, actorID int64) (*PurchaseReceipt, error) {
	receipt, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	if receipt.Status != ReceiptDraft {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, receipt.ReceiptNo, receipt.Status)
	}

	order, err := s.repo.GetOrder(ctx, receipt.OrderID)
	if err != nil {
		return nil, err
	}
	open := map[int64]float64{}
	for _, line := range order.Lines {
		open[line.ItemID] += line.Qty - line.ReceivedQty
	}
	for _, line := range receipt.Lines {
		if line.Qty > open[line.ItemID]+0.0001 {
			return nil, fmt.Errorf("%w: item %d has %.2f open, receipt books %.2f", ErrOverReceipt, line.ItemID, open[line.ItemID], line.Qty)
		}
	}

	ledgerLines := make([]ledger.Line, 0, len(receipt.Lines))
	for _, line := range receipt.Lines {
		ledgerLines = append(ledgerLines, ledger.Line{
			ItemID:      line.ItemID,
			WarehouseID: receipt.WarehouseID,
			Qty:         line.Qty,
			Rate:        line.Rate,
		})
	}
	if _, err := s.ledger.Post(ctx, ledger.PostInput{
		VoucherType: ledger.VoucherPurchaseReceipt,
		VoucherNo:   receipt.ReceiptNo,
		PostedAt:    receipt.PostingDate,
		ActorID:     actorID,
		Lines:       ledgerLines,
	}); err != nil {
		return nil, err
	}

	for _, line := range receipt.Lines {
		if _, err := s.valuation.Recalculate(ctx, line.ItemID); err != nil {
			s.logger.Warn("valuation recalculate failed", slog.Int64("item_id", line.ItemID), slog.Any("error", err))
		}
		if err := s.valuation.RecordPurchase(ctx, line.ItemID, line.Rate); err != nil {
			s.logger.Warn("record purchase rate failed", slog.Int64("item_id", line.ItemID), slog.Any("error", err))
		}
		if err := s.repo.AddReceivedQty(ctx, receipt.OrderID, line.ItemID, line.Qty); err != nil {
			return nil, fmt.Errorf("apply receipt for item %d: %w", line.ItemID, err)
		}
	}

	if err := s.refreshOrderStatus(ctx, receipt.OrderID); err != nil {
		return nil, err
	}
	if err := s.repo.SetReceiptStatus(ctx, id, ReceiptSubmitted, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.repo.GetReceipt(ctx, id)
}

// CancelReceipt reverses the ledger postings and hands the received
// quantities back to the order.
func (s *Service) CancelReceipt(ctx context.Context, id int64, actorID int64) (*PurchaseReceipt, error) {
	receipt, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	if receipt.Status != ReceiptSubmitted {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, receipt.ReceiptNo, receipt.Status)
	}
	if _, err := s.ledger.Reverse(ctx, ledger.VoucherPurchaseReceipt, receipt.ReceiptNo, actorID); err != nil {
		return nil, err
	}
	for _, line := range receipt.Lines {
		if _, err := s.valuation.Recalculate(ctx, line.ItemID); err != nil {
			s.logger.Warn("valuation recalculate failed", slog.Int64("item_id", line.ItemID), slog.Any("error", err))
		}
		if err := s.repo.AddReceivedQty(ctx, receipt.OrderID, line.ItemID, -line.Qty); err != nil {
			return nil, fmt.Errorf("revert receipt for item %d: %w", line.ItemID, err)
		}
	}
	if err := s.refreshOrderStatus(ctx, receipt.OrderID); err != nil {
		return nil, err
	}
	if err := s.repo.SetReceiptStatus(ctx, id, ReceiptCancelled, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.repo.GetReceipt(ctx, id)
}

func (s *Service) refreshOrderStatus(ctx context.Context, orderID int64) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	switch order.Status {
	case OrderOrdered, OrderPartiallyReceived, OrderCompleted:
	default:
		return nil
	}

	allDone := true
	anyReceived := false
	for _, line := range order.Lines {
		if !line.FullyReceived() {
			allDone = false
		}
		if line.ReceivedQty > 0.0001 {
			anyReceived = true
		}
	}
	status := OrderOrdered
	switch {
	case allDone:
		status = OrderCompleted
	case anyReceived:
		status = OrderPartiallyReceived
	}
	if status == order.Status {
		return nil
	}
	return s.repo.SetOrderStatus(ctx, orderID, status, time.Now().UTC())
}

func (s *Service) buildOrder(ctx context.Context, req CreateOrderRequest) (*PurchaseOrder, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDocument, validationMessage(err))
	}
	ok, err := s.suppliers.Exists(ctx, req.SupplierID)
	if err != nil {
		return nil, fmt.Errorf("verify supplier: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: supplier %d not found or disabled", ErrInvalidDocument, req.SupplierID)
	}

	orderDate := req.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now().UTC()
	}
	if req.ExpectedReceipt != nil && req.ExpectedReceipt.Before(orderDate) {
		return nil, fmt.Errorf("%w: expected receipt precedes order date", ErrInvalidDocument)
	}

	seen := map[int64]bool{}
	lines := make([]OrderLine, 0, len(req.Lines))
	total := 0.0
	for _, lineReq := range req.Lines {
		if seen[lineReq.ItemID] {
			return nil, fmt.Errorf("%w: item %d appears twice", ErrInvalidDocument, lineReq.ItemID)
		}
		seen[lineReq.ItemID] = true

		ok, err := s.items.Exists(ctx, lineReq.ItemID)
		if err != nil {
			return nil, fmt.Errorf("verify item: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: item %d not found or disabled", ErrInvalidDocument, lineReq.ItemID)
		}

		rate := lineReq.Rate
		if rate == 0 {
			resolved, err := s.pricing.ResolveBuying(ctx, lineReq.ItemID, &req.SupplierID, orderDate)
			if errors.Is(err, pricing.ErrNoPrice) {
				return nil, fmt.Errorf("%w: no buying price for item %d", ErrInvalidDocument, lineReq.ItemID)
			}
			if err != nil {
				return nil, fmt.Errorf("resolve price: %w", err)
			}
			rate = resolved.Rate
		}

		amount := lineReq.Qty * rate
		total += amount
		lines = append(lines, OrderLine{ItemID: lineReq.ItemID, Qty: lineReq.Qty, Rate: rate, Amount: amount})
	}

	return &PurchaseOrder{
		SupplierID:      req.SupplierID,
		OrderDate:       orderDate,
		ExpectedReceipt: req.ExpectedReceipt,
		Remarks:         req.Remarks,
		TotalAmount:     total,
		Lines:           lines,
	}, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Sprintf("field %s failed %s", verrs[0].Field(), verrs[0].Tag())
	}
	return err.Error()
}
