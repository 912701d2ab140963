package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tassili-erp/tassili-erp/internal/ledger"
	"github.com/tassili-erp/tassili-erp/internal/sales/orders"
)

// OrderPort is the slice of the sales order service a delivery note needs.
type OrderPort interface {
	Get(ctx context.Context, id int64) (*orders.SalesOrder, error)
	OpenQuantities(ctx context.Context, id int64) (map[int64]float64, error)
	LineRate(ctx context.Context, id, itemID int64) (float64, error)
	ApplyDelivery(ctx context.Context, id int64, deltas map[int64]float64) (*orders.SalesOrder, error)
}

// LedgerPort posts and reverses ledger vouchers and reads balances.
type LedgerPort interface {
	Post(ctx context.Context, input ledger.PostInput) ([]ledger.Entry, error)
	Reverse(ctx context.Context, voucherType ledger.VoucherType, voucherNo string, actorID int64) ([]ledger.Entry, error)
	Balance(ctx context.Context, itemID, warehouseID int64) (ledger.Balance, error)
}

// ValuationPort values issues and recomputes rates after stock moves.
type ValuationPort interface {
	CostBasis(ctx context.Context, itemID int64) (float64, error)
	Recalculate(ctx context.Context, itemID int64) (float64, error)
}

// MasterPort answers existence checks against master data.
type MasterPort interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// NumberPort hands out document numbers.
type NumberPort interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// CreateNoteRequest carries a new draft delivery note.
type CreateNoteRequest struct {
	OrderID     int64         `json:"order_id"`
	WarehouseID int64         `json:"warehouse_id"`
	PostingDate time.Time     `json:"posting_date"`
	Remarks     string        `json:"remarks,omitempty"`
	Lines       []LineRequest `json:"lines"`
}

// LineRequest is one shipped quantity.
type LineRequest struct {
	ItemID int64   `json:"item_id"`
	Qty    float64 `json:"qty"`
	Batch  string  `json:"batch,omitempty"`
}

// Service owns the delivery note lifecycle.
type Service struct {
	logger       *slog.Logger
	repo         Repository
	orders       OrderPort
	ledger       LedgerPort
	valuation    ValuationPort
	warehouses   MasterPort
	numbers      NumberPort
	enforceAvail bool
}

// NewService constructs the service. When enforceAvailability is set a
// note cannot be submitted if the warehouse lacks stock.
func NewService(logger *slog.Logger, repo Repository, orderPort OrderPort, ledgerPort LedgerPort, valuation ValuationPort, warehouses MasterPort, numbers NumberPort, enforceAvailability bool) *Service {
	return &Service{
		logger:       logger,
		repo:         repo,
		orders:       orderPort,
		ledger:       ledgerPort,
		valuation:    valuation,
		warehouses:   warehouses,
		numbers:      numbers,
		enforceAvail: enforceAvailability,
	}
}

// List returns delivery notes matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]DeliveryNote, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	return s.repo.List(ctx, filter)
}

// Get returns one delivery note with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*DeliveryNote, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a new draft against a submitted sales order. Each line
// must fit within the order's undelivered quantity.
func (s *Service) Create(ctx context.Context, req CreateNoteRequest, createdBy int64) (*DeliveryNote, error) {
	if req.OrderID <= 0 {
		return nil, fmt.Errorf("%w: order is required", ErrInvalidNote)
	}
	if req.WarehouseID <= 0 {
		return nil, fmt.Errorf("%w: warehouse is required", ErrInvalidNote)
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrInvalidNote)
	}
	ok, err := s.warehouses.Exists(ctx, req.WarehouseID)
	if err != nil {
		return nil, fmt.Errorf("verify warehouse: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: warehouse %d not found or disabled", ErrInvalidNote, req.WarehouseID)
	}

	order, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("verify order: %w", err)
	}
	open, err := s.orders.OpenQuantities(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	seen := map[int64]bool{}
	lines := make([]Line, 0, len(req.Lines))
	total := 0.0
	for _, lineReq := range req.Lines {
		if seen[lineReq.ItemID] {
			return nil, fmt.Errorf("%w: item %d appears twice", ErrInvalidNote, lineReq.ItemID)
		}
		seen[lineReq.ItemID] = true
		if lineReq.Qty <= 0 {
			return nil, fmt.Errorf("%w: line quantity must be positive", ErrInvalidNote)
		}
		remaining, ok := open[lineReq.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: item %d is not on order %s", ErrInvalidNote, lineReq.ItemID, order.OrderNo)
		}
		if lineReq.Qty > remaining+0.0001 {
			return nil, fmt.Errorf("%w: item %d has %.2f open, requested %.2f", ErrOverDelivery, lineReq.ItemID, remaining, lineReq.Qty)
		}
		rate, err := s.orders.LineRate(ctx, req.OrderID, lineReq.ItemID)
		if err != nil {
			return nil, err
		}
		amount := lineReq.Qty * rate
		total += amount
		lines = append(lines, Line{ItemID: lineReq.ItemID, Qty: lineReq.Qty, Rate: rate, Amount: amount, Batch: lineReq.Batch})
	}

	postingDate := req.PostingDate
	if postingDate.IsZero() {
		postingDate = time.Now().UTC()
	}
	noteNo, err := s.numbers.Next(ctx, "DN")
	if err != nil {
		return nil, fmt.Errorf("generate note number: %w", err)
	}

	return s.repo.Create(ctx, DeliveryNote{
		NoteNo:      noteNo,
		OrderID:     req.OrderID,
		CustomerID:  order.CustomerID,
		WarehouseID: req.WarehouseID,
		PostingDate: postingDate,
		Status:      StatusDraft,
		Remarks:     req.Remarks,
		TotalAmount: total,
		Lines:       lines,
		CreatedBy:   createdBy,
	})
}

// Delete removes a draft.
func (s *Service) Delete(ctx context.Context, id int64) error {
	note, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if note.Status != StatusDraft {
		return fmt.Errorf("%w: only drafts can be deleted", ErrInvalidState)
	}
	return s.repo.Delete(ctx, id)
}

// Submit posts issue entries at cost basis, advances the order's
// fulfillment and marks the note submitted.
func (s *Service) Submit(ctx context.Context, id int64, actorID int64) (*DeliveryNote, error) {
	note, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if note.Status != StatusDraft {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, note.NoteNo, note.Status)
	}

	// The order may have moved since the draft was created.
	open, err := s.orders.OpenQuantities(ctx, note.OrderID)
	if err != nil {
		return nil, err
	}
	for _, line := range note.Lines {
		if line.Qty > open[line.ItemID]+0.0001 {
			return nil, fmt.Errorf("%w: item %d has %.2f open, note ships %.2f", ErrOverDelivery, line.ItemID, open[line.ItemID], line.Qty)
		}
	}

	if s.enforceAvail {
		for _, line := range note.Lines {
			balance, err := s.ledger.Balance(ctx, line.ItemID, note.WarehouseID)
			if err != nil {
				return nil, err
			}
			if balance.Qty < line.Qty-0.0001 {
				return nil, fmt.Errorf("%w: item %d has %.2f in warehouse %d", ledger.ErrInsufficientStock, line.ItemID, balance.Qty, note.WarehouseID)
			}
		}
	}

	ledgerLines := make([]ledger.Line, 0, len(note.Lines))
	deltas := make(map[int64]float64, len(note.Lines))
	for _, line := range note.Lines {
		cost, err := s.valuation.CostBasis(ctx, line.ItemID)
		if err != nil {
			return nil, err
		}
		ledgerLines = append(ledgerLines, ledger.Line{
			ItemID:      line.ItemID,
			WarehouseID: note.WarehouseID,
			Qty:         -line.Qty,
			Rate:        cost,
			Batch:       line.Batch,
		})
		deltas[line.ItemID] = line.Qty
	}

	if _, err := s.ledger.Post(ctx, ledger.PostInput{
		VoucherType: ledger.VoucherDeliveryNote,
		VoucherNo:   note.NoteNo,
		PostedAt:    note.PostingDate,
		ActorID:     actorID,
		Lines:       ledgerLines,
	}); err != nil {
		return nil, err
	}

	s.recalc(ctx, note.Lines)
	if _, err := s.orders.ApplyDelivery(ctx, note.OrderID, deltas); err != nil {
		return nil, err
	}
	if err := s.repo.SetStatus(ctx, id, StatusSubmitted, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Cancel reverses the ledger postings and hands the shipped quantities
// back to the order.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) (*DeliveryNote, error) {
	note, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if note.Status != StatusSubmitted {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, note.NoteNo, note.Status)
	}
	if _, err := s.ledger.Reverse(ctx, ledger.VoucherDeliveryNote, note.NoteNo, actorID); err != nil {
		return nil, err
	}
	s.recalc(ctx, note.Lines)

	deltas := make(map[int64]float64, len(note.Lines))
	for _, line := range note.Lines {
		deltas[line.ItemID] = -line.Qty
	}
	if _, err := s.orders.ApplyDelivery(ctx, note.OrderID, deltas); err != nil {
		return nil, err
	}
	if err := s.repo.SetStatus(ctx, id, StatusCancelled, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) recalc(ctx context.Context, lines []Line) {
	for _, line := range lines {
		if _, err := s.valuation.Recalculate(ctx, line.ItemID); err != nil {
			s.logger.Warn("valuation recalculate failed", slog.Int64("item_id", line.ItemID), slog.Any("error", err))
		}
	}
}
