package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tassili-erp/tassili-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Balance(ctx context.Context, itemID, warehouseID int64) (Balance, error)
	ItemTotals(ctx context.Context, itemID int64) (qty, value float64, err error)
	StockCard(ctx context.Context, filter StockCardFilter) ([]Entry, error)
	VoucherEntries(ctx context.Context, voucherType VoucherType, voucherNo string) ([]Entry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts posting outcomes.
type MetricsPort interface {
	CountPosting(voucherType, outcome string)
}

// Service posts and reverses stock ledger entries.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	metrics     MetricsPort
	allowNeg    bool
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, metrics MetricsPort, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, metrics: metrics, allowNeg: cfg.AllowNegativeStock}
}

// Post writes all lines of a voucher in a single transaction. Either every
// line lands or none does.
func (s *Service) Post(ctx context.Context, input PostInput) ([]Entry, error) {
	if !input.VoucherType.Valid() || input.VoucherNo == "" {
		return nil, ErrVoucherRequired
	}
	if len(input.Lines) == 0 {
		return nil, errors.New("ledger: at least one line required")
	}
	for _, line := range input.Lines {
		if line.ItemID == 0 || line.WarehouseID == 0 {
			return nil, errors.New("ledger: item and warehouse required")
		}
		if line.Qty == 0 {
			return nil, ErrInvalidQuantity
		}
		if line.Rate < 0 {
			return nil, ErrInvalidRate
		}
	}
	postedAt := input.PostedAt
	if postedAt.IsZero() {
		postedAt = time.Now().UTC()
	}

	key := fmt.Sprintf("POST:%s:%s", input.VoucherType, input.VoucherNo)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "ledger"); err != nil {
			return nil, err
		}
		insertedKey = true
	}

	entries := make([]Entry, 0, len(input.Lines))
	for _, line := range input.Lines {
		entries = append(entries, Entry{
			ItemID:      line.ItemID,
			WarehouseID: line.WarehouseID,
			PostedAt:    postedAt,
			VoucherType: input.VoucherType,
			VoucherNo:   input.VoucherNo,
			Qty:         line.Qty,
			Rate:        line.Rate,
			ValueDiff:   line.Qty * line.Rate,
			Batch:       line.Batch,
			CreatedBy:   input.ActorID,
		})
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertEntries(ctx, entries); err != nil {
			return err
		}
		if s.allowNeg {
			return nil
		}
		for _, line := range input.Lines {
			if line.Qty >= 0 {
				continue
			}
			qty, err := tx.BalanceQty(ctx, line.ItemID, line.WarehouseID)
			if err != nil {
				return err
			}
			if qty < -0.0001 {
				return fmt.Errorf("%w: item %d in warehouse %d", ErrInsufficientStock, line.ItemID, line.WarehouseID)
			}
		}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		if s.metrics != nil {
			s.metrics.CountPosting(string(input.VoucherType), "rejected")
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.CountPosting(string(input.VoucherType), "posted")
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "ledger:post",
			Entity:   "stock_ledger",
			EntityID: fmt.Sprintf("%s:%s", input.VoucherType, input.VoucherNo),
			Meta:     map[string]any{"lines": len(input.Lines)},
		})
	}
	return entries, nil
}

// Reverse cancels a posted voucher: the live entries are marked cancelled
// and matching inverse rows are appended so the trail stays complete.
// Reversing an already cancelled voucher fails.
func (s *Service) Reverse(ctx context.Context, voucherType VoucherType, voucherNo string, actorID int64) ([]Entry, error) {
	if !voucherType.Valid() || voucherNo == "" {
		return nil, ErrVoucherRequired
	}

	key := fmt.Sprintf("REVERSE:%s:%s", voucherType, voucherNo)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "ledger"); err != nil {
			return nil, err
		}
		insertedKey = true
	}

	var reversals []Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		live, err := tx.LiveEntriesForUpdate(ctx, voucherType, voucherNo)
		if err != nil {
			return err
		}
		if len(live) == 0 {
			return fmt.Errorf("%w: %s %s", ErrAlreadyCancelled, voucherType, voucherNo)
		}
		now := time.Now().UTC()
		ids := make([]int64, 0, len(live))
		reversals = make([]Entry, 0, len(live))
		for _, entry := range live {
			ids = append(ids, entry.ID)
			reversals = append(reversals, Entry{
				ItemID:      entry.ItemID,
				WarehouseID: entry.WarehouseID,
				PostedAt:    now,
				VoucherType: voucherType,
				VoucherNo:   voucherNo,
				Qty:         -entry.Qty,
				Rate:        entry.Rate,
				ValueDiff:   -entry.ValueDiff,
				Batch:       entry.Batch,
				Cancelled:   true,
				CreatedBy:   actorID,
			})
		}
		if err := tx.MarkCancelled(ctx, ids); err != nil {
			return err
		}
		return tx.InsertEntries(ctx, reversals)
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		if s.metrics != nil {
			s.metrics.CountPosting(string(voucherType), "reverse_rejected")
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.CountPosting(string(voucherType), "reversed")
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "ledger:reverse",
			Entity:   "stock_ledger",
			EntityID: fmt.Sprintf("%s:%s", voucherType, voucherNo),
			Meta:     map[string]any{"lines": len(reversals)},
		})
	}
	return reversals, nil
}

// Balance returns the current quantity and value of an item in a warehouse.
func (s *Service) Balance(ctx context.Context, itemID, warehouseID int64) (Balance, error) {
	if itemID == 0 || warehouseID == 0 {
		return Balance{}, errors.New("ledger: item and warehouse required")
	}
	return s.repo.Balance(ctx, itemID, warehouseID)
}

// ItemTotals aggregates an item's quantity and value across all warehouses.
func (s *Service) ItemTotals(ctx context.Context, itemID int64) (qty, value float64, err error) {
	if itemID == 0 {
		return 0, 0, errors.New("ledger: item required")
	}
	return s.repo.ItemTotals(ctx, itemID)
}

// AvailableQty returns total live stock for an item across warehouses.
func (s *Service) AvailableQty(ctx context.Context, itemID int64) (float64, error) {
	qty, _, err := s.ItemTotals(ctx, itemID)
	return qty, err
}

// StockCard lists ledger entries chronologically for one item and warehouse.
func (s *Service) StockCard(ctx context.Context, filter StockCardFilter) ([]Entry, error) {
	if filter.ItemID == 0 || filter.WarehouseID == 0 {
		return nil, errors.New("ledger: item and warehouse required")
	}
	return s.repo.StockCard(ctx, filter)
}

// VoucherEntries lists every entry of a voucher, cancelled rows included.
func (s *Service) VoucherEntries(ctx context.Context, voucherType VoucherType, voucherNo string) ([]Entry, error) {
	if !voucherType.Valid() || voucherNo == "" {
		return nil, ErrVoucherRequired
	}
	return s.repo.VoucherEntries(ctx, voucherType, voucherNo)
}
