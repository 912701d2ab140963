package stockentry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tassili-erp/tassili-erp/internal/ledger"
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
	CostBasis(ctx context.Context, itemID int64) (float64, error)
}

// MasterPort answers existence checks against master data.
type MasterPort interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// NumberPort hands out document numbers.
type NumberPort interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// Service owns the stock entry lifecycle.
type Service struct {
	logger     *slog.Logger
	repo       Repository
	ledger     LedgerPort
	valuation  ValuationPort
	items      MasterPort
	warehouses MasterPort
	numbers    NumberPort
}

// NewService constructs the service.
func NewService(logger *slog.Logger, repo Repository, ledgerPort LedgerPort, valuation ValuationPort, items, warehouses MasterPort, numbers NumberPort) *Service {
	return &Service{logger: logger, repo: repo, ledger: ledgerPort, valuation: valuation, items: items, warehouses: warehouses, numbers: numbers}
}

// List returns stock entries matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]StockEntry, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	if filter.EntryType != "" && !filter.EntryType.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown entry type %q", ErrInvalidEntry, filter.EntryType)
	}
	return s.repo.List(ctx, filter)
}

// Get returns one stock entry with its lines.
func (s *Service) Get(ctx context.Context, id int64) (StockEntry, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a new draft.
func (s *Service) Create(ctx context.Context, entry StockEntry, actorID int64) (StockEntry, error) {
	if err := s.validate(ctx, &entry); err != nil {
		return StockEntry{}, err
	}
	entryNo, err := s.numbers.Next(ctx, "STE")
	if err != nil {
		return StockEntry{}, err
	}
	entry.EntryNo = entryNo
	entry.Status = StatusDraft
	entry.CreatedBy = actorID
	if entry.PostingDate.IsZero() {
		entry.PostingDate = time.Now().UTC()
	}
	return s.repo.Create(ctx, entry)
}

// Update replaces a draft's content. Submitted documents are immutable.
func (s *Service) Update(ctx context.Context, id int64, entry StockEntry) (StockEntry, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return StockEntry{}, err
	}
	if existing.Status != StatusDraft {
		return StockEntry{}, fmt.Errorf("%w: only drafts can be edited", ErrInvalidState)
	}
	if err := s.validate(ctx, &entry); err != nil {
		return StockEntry{}, err
	}
	entry.ID = id
	if entry.PostingDate.IsZero() {
		entry.PostingDate = existing.PostingDate
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		return StockEntry{}, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a draft. Submitted documents must be cancelled instead.
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

// Submit posts the entry to the stock ledger and recomputes valuation
// rates. Transfers move stock at the item's current cost basis; issue rows
// without a rate are valued at cost basis as well.
func (s *Service) Submit(ctx context.Context, id int64, actorID int64) (StockEntry, error) {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return StockEntry{}, err
	}
	if entry.Status != StatusDraft {
		return StockEntry{}, fmt.Errorf("%w: %s is %s", ErrInvalidState, entry.EntryNo, entry.Status)
	}
	if err := s.validate(ctx, &entry); err != nil {
		return StockEntry{}, err
	}

	lines, err := s.ledgerLines(ctx, entry)
	if err != nil {
		return StockEntry{}, err
	}
	if _, err := s.ledger.Post(ctx, ledger.PostInput{
		VoucherType: ledger.VoucherStockEntry,
		VoucherNo:   entry.EntryNo,
		PostedAt:    entry.PostingDate,
		ActorID:     actorID,
		Lines:       lines,
	}); err != nil {
		return StockEntry{}, err
	}

	s.recalcAfterMove(ctx, entry)
	if entry.EntryType == TypePurchase {
		for _, line := range entry.Lines {
			if err := s.valuation.RecordPurchase(ctx, line.ItemID, line.Rate); err != nil {
				s.logger.Warn("record purchase rate failed", slog.Int64("item_id", line.ItemID), slog.Any("error", err))
			}
		}
	}

	now := time.Now().UTC()
	if err := s.repo.SetStatus(ctx, id, StatusSubmitted, now); err != nil {
		return StockEntry{}, err
	}
	return s.repo.Get(ctx, id)
}

// Cancel reverses the ledger postings of a submitted entry.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) (StockEntry, error) {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return StockEntry{}, err
	}
	if entry.Status != StatusSubmitted {
		return StockEntry{}, fmt.Errorf("%w: %s is %s", ErrInvalidState, entry.EntryNo, entry.Status)
	}
	if _, err := s.ledger.Reverse(ctx, ledger.VoucherStockEntry, entry.EntryNo, actorID); err != nil {
		return StockEntry{}, err
	}
	s.recalcAfterMove(ctx, entry)

	now := time.Now().UTC()
	if err := s.repo.SetStatus(ctx, id, StatusCancelled, now); err != nil {
		return StockEntry{}, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) ledgerLines(ctx context.Context, entry StockEntry) ([]ledger.Line, error) {
	lines := make([]ledger.Line, 0, len(entry.Lines)*2)
	for _, line := range entry.Lines {
		switch entry.EntryType {
		case TypeReceipt, TypeManufacture, TypePurchase:
			lines = append(lines, ledger.Line{
				ItemID:      line.ItemID,
				WarehouseID: *entry.TargetWarehouseID,
				Qty:         line.Qty,
				Rate:        line.Rate,
				Batch:       line.Batch,
			})
		case TypeIssue:
			rate := line.Rate
			if rate == 0 {
				cost, err := s.valuation.CostBasis(ctx, line.ItemID)
				if err != nil {
					return nil, err
				}
				rate = cost
			}
			lines = append(lines, ledger.Line{
				ItemID:      line.ItemID,
				WarehouseID: *entry.SourceWarehouseID,
				Qty:         -line.Qty,
				Rate:        rate,
				Batch:       line.Batch,
			})
		case TypeTransfer:
			cost, err := s.valuation.CostBasis(ctx, line.ItemID)
			if err != nil {
				return nil, err
			}
			lines = append(lines,
				ledger.Line{ItemID: line.ItemID, WarehouseID: *entry.SourceWarehouseID, Qty: -line.Qty, Rate: cost, Batch: line.Batch},
				ledger.Line{ItemID: line.ItemID, WarehouseID: *entry.TargetWarehouseID, Qty: line.Qty, Rate: cost, Batch: line.Batch},
			)
		}
	}
	return lines, nil
}

func (s *Service) recalcAfterMove(ctx context.Context, entry StockEntry) {
	for _, line := range entry.Lines {
		if _, err := s.valuation.Recalculate(ctx, line.ItemID); err != nil {
			s.logger.Warn("valuation recalculate failed", slog.Int64("item_id", line.ItemID), slog.Any("error", err))
		}
	}
}

func (s *Service) validate(ctx context.Context, entry *StockEntry) error {
	if !entry.EntryType.Valid() {
		return fmt.Errorf("%w: unknown entry type %q", ErrInvalidEntry, entry.EntryType)
	}
	if len(entry.Lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrInvalidEntry)
	}

	switch entry.EntryType {
	case TypeReceipt, TypeManufacture, TypePurchase:
		if entry.TargetWarehouseID == nil {
			return fmt.Errorf("%w: %s requires a target warehouse", ErrInvalidEntry, entry.EntryType)
		}
		if entry.SourceWarehouseID != nil {
			return fmt.Errorf("%w: %s must not set a source warehouse", ErrInvalidEntry, entry.EntryType)
		}
	case TypeIssue:
		if entry.SourceWarehouseID == nil {
			return fmt.Errorf("%w: Issue requires a source warehouse", ErrInvalidEntry)
		}
		if entry.TargetWarehouseID != nil {
			return fmt.Errorf("%w: Issue must not set a target warehouse", ErrInvalidEntry)
		}
	case TypeTransfer:
		if entry.SourceWarehouseID == nil || entry.TargetWarehouseID == nil {
			return fmt.Errorf("%w: Transfer requires source and target warehouses", ErrInvalidEntry)
		}
		if *entry.SourceWarehouseID == *entry.TargetWarehouseID {
			return fmt.Errorf("%w: Transfer warehouses must differ", ErrInvalidEntry)
		}
	}

	for _, warehouseID := range []*int64{entry.SourceWarehouseID, entry.TargetWarehouseID} {
		if warehouseID == nil {
			continue
		}
		ok, err := s.warehouses.Exists(ctx, *warehouseID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: warehouse %d not found or disabled", ErrInvalidEntry, *warehouseID)
		}
	}

	total := 0.0
	for i := range entry.Lines {
		line := &entry.Lines[i]
		if line.ItemID == 0 {
			return fmt.Errorf("%w: line item is required", ErrInvalidEntry)
		}
		if line.Qty <= 0 {
			return fmt.Errorf("%w: line quantity must be positive", ErrInvalidEntry)
		}
		if line.Rate < 0 {
			return fmt.Errorf("%w: line rate cannot be negative", ErrInvalidEntry)
		}
		if entry.EntryType.Receives() && entry.EntryType != TypeTransfer && line.Rate == 0 {
			return fmt.Errorf("%w: received stock needs a rate", ErrInvalidEntry)
		}
		ok, err := s.items.Exists(ctx, line.ItemID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: item %d not found or disabled", ErrInvalidEntry, line.ItemID)
		}
		line.Amount = line.Qty * line.Rate
		total += line.Amount
	}
	entry.TotalAmount = total
	return nil
}
