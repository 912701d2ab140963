package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tassili-erp/tassili-erp/internal/pricing"
)

// MasterPort answers existence checks against master data.
type MasterPort interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// PricingPort resolves selling rates for autopriced lines.
type PricingPort interface {
	ResolveSelling(ctx context.Context, itemID int64, customerID *int64, on time.Time) (pricing.ResolvedPrice, error)
}

// StockPort reads availability for advisory warnings at submit time.
type StockPort interface {
	AvailableQty(ctx context.Context, itemID int64) (float64, error)
}

// NumberPort hands out document numbers.
type NumberPort interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// Service owns the sales order lifecycle.
type Service struct {
	logger    *slog.Logger
	repo      Repository
	customers MasterPort
	items     MasterPort
	pricing   PricingPort
	stock     StockPort
	numbers   NumberPort
	validate  *validator.Validate
}

// NewService constructs the service.
func NewService(logger *slog.Logger, repo Repository, customers, items MasterPort, pricingPort PricingPort, stock StockPort, numbers NumberPort) *Service {
	return &Service{
		logger:    logger,
		repo:      repo,
		customers: customers,
		items:     items,
		pricing:   pricingPort,
		stock:     stock,
		numbers:   numbers,
		validate:  validator.New(),
	}
}

// List returns sales orders matching the filter.
func (s *Service) List(ctx context.Context, req ListOrdersRequest) ([]SalesOrder, int, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 {
		req.Limit = 20
	}
	return s.repo.List(ctx, req)
}

// Get returns one sales order with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a new draft. Lines without a rate are priced from the
// customer's price list.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest, createdBy int64) (*SalesOrder, error) {
	order, err := s.buildOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	orderNo, err := s.numbers.Next(ctx, "SO")
	if err != nil {
		return nil, fmt.Errorf("generate order number: %w", err)
	}
	order.OrderNo = orderNo
	order.Status = StatusDraft
	order.CreatedBy = createdBy
	return s.repo.Create(ctx, *order)
}

// Update replaces a draft's content.
func (s *Service) Update(ctx context.Context, id int64, req CreateOrderRequest) (*SalesOrder, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != StatusDraft {
		return nil, fmt.Errorf("%w: only drafts can be edited", ErrInvalidState)
	}
	order, err := s.buildOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	order.ID = id
	if err := s.repo.Update(ctx, *order); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a draft.
func (s *Service) Delete(ctx context.Context, id int64) error {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status != StatusDraft {
		return fmt.Errorf("%w: only drafts can be deleted", ErrInvalidState)
	}
	return s.repo.Delete(ctx, id)
}

// Submit moves a draft to Ordered. Stock shortages are reported as
// warnings only; the delivery note is where availability is enforced.
func (s *Service) Submit(ctx context.Context, id int64) (*SubmitResult, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != StatusDraft {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, existing.OrderNo, existing.Status)
	}

	var warnings []string
	for _, line := range existing.Lines {
		qty, err := s.stock.AvailableQty(ctx, line.ItemID)
		if err != nil {
			s.logger.Warn("availability check failed", slog.Int64("item_id", line.ItemID), slog.Any("error", err))
			continue
		}
		if qty < line.Qty {
			warnings = append(warnings, fmt.Sprintf("item %d: ordered %.2f but only %.2f in stock", line.ItemID, line.Qty, qty))
		}
	}

	if err := s.repo.SetStatus(ctx, id, StatusOrdered, time.Now().UTC()); err != nil {
		return nil, err
	}
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Order: order, Warnings: warnings}, nil
}

// Cancel voids an order that has no deliveries against it.
func (s *Service) Cancel(ctx context.Context, id int64) (*SalesOrder, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch existing.Status {
	case StatusCancelled, StatusCompleted:
		return nil, fmt.Errorf("%w: %s is already final", ErrInvalidState, existing.OrderNo)
	}
	for _, line := range existing.Lines {
		if line.DeliveredQty > 0.0001 {
			return nil, fmt.Errorf("%w: %s has deliveries, cancel those first", ErrInvalidState, existing.OrderNo)
		}
	}
	if err := s.repo.SetStatus(ctx, id, StatusCancelled, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// OpenQuantities returns the undelivered quantity per item of a submitted
// order. Delivery notes draw against these.
func (s *Service) OpenQuantities(ctx context.Context, id int64) (map[int64]float64, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case StatusOrdered, StatusPartiallyDelivered:
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, order.OrderNo, order.Status)
	}
	open := make(map[int64]float64, len(order.Lines))
	for _, line := range order.Lines {
		open[line.ItemID] += line.Qty - line.DeliveredQty
	}
	return open, nil
}

// LineRate returns the agreed rate for an item on the order.
func (s *Service) LineRate(ctx context.Context, id, itemID int64) (float64, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	for _, line := range order.Lines {
		if line.ItemID == itemID {
			return line.Rate, nil
		}
	}
	return 0, fmt.Errorf("%w: item %d is not on order %s", ErrInvalidOrder, itemID, order.OrderNo)
}

// ApplyDelivery adjusts delivered quantities and recomputes the order
// status. Negative deltas come from cancelled delivery notes.
func (s *Service) ApplyDelivery(ctx context.Context, id int64, deltas map[int64]float64) (*SalesOrder, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case StatusOrdered, StatusPartiallyDelivered, StatusCompleted:
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, order.OrderNo, order.Status)
	}

	for itemID, delta := range deltas {
		if delta == 0 {
			continue
		}
		if err := s.repo.AddDeliveredQty(ctx, id, itemID, delta); err != nil {
			return nil, fmt.Errorf("apply delivery for item %d: %w", itemID, err)
		}
	}

	order, err = s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	status := fulfillmentStatus(order.Lines)
	if status != order.Status {
		if err := s.repo.SetStatus(ctx, id, status, time.Now().UTC()); err != nil {
			return nil, err
		}
		order.Status = status
	}
	return order, nil
}

func fulfillmentStatus(lines []Line) Status {
	allDone := true
	anyDelivered := false
	for _, line := range lines {
		if !line.FullyDelivered() {
			allDone = false
		}
		if line.DeliveredQty > 0.0001 {
			anyDelivered = true
		}
	}
	switch {
	case allDone:
		return StatusCompleted
	case anyDelivered:
		return StatusPartiallyDelivered
	default:
		return StatusOrdered
	}
}

func (s *Service) buildOrder(ctx context.Context, req CreateOrderRequest) (*SalesOrder, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOrder, validationMessage(err))
	}
	ok, err := s.customers.Exists(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("verify customer: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: customer %d not found or disabled", ErrInvalidOrder, req.CustomerID)
	}

	orderDate := req.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now().UTC()
	}
	if req.ExpectedDelivery != nil && req.ExpectedDelivery.Before(orderDate) {
		return nil, fmt.Errorf("%w: expected delivery precedes order date", ErrInvalidOrder)
	}

	seen := map[int64]bool{}
	lines := make([]Line, 0, len(req.Lines))
	total := 0.0
	for _, lineReq := range req.Lines {
		if seen[lineReq.ItemID] {
			return nil, fmt.Errorf("%w: item %d appears twice", ErrInvalidOrder, lineReq.ItemID)
		}
		seen[lineReq.ItemID] = true

		ok, err := s.items.Exists(ctx, lineReq.ItemID)
		if err != nil {
			return nil, fmt.Errorf("verify item: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: item %d not found or disabled", ErrInvalidOrder, lineReq.ItemID)
		}

		rate := lineReq.Rate
		if rate == 0 {
			resolved, err := s.pricing.ResolveSelling(ctx, lineReq.ItemID, &req.CustomerID, orderDate)
			if errors.Is(err, pricing.ErrNoPrice) {
				return nil, fmt.Errorf("%w: no selling price for item %d", ErrInvalidOrder, lineReq.ItemID)
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

	return &SalesOrder{
		CustomerID:       req.CustomerID,
		OrderDate:        orderDate,
		ExpectedDelivery: req.ExpectedDelivery,
		Remarks:          req.Remarks,
		TotalAmount:      total,
		Lines:            lines,
	}, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Sprintf("field %s failed %s", verrs[0].Field(), verrs[0].Tag())
	}
	return err.Error()
}
