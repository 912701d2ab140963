package reports

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Service runs the reporting queries.
type Service struct {
	repo Repository
}

// NewService constructs the service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// StockBalance lists live stock per item and warehouse.
func (s *Service) StockBalance(ctx context.Context, warehouseID int64) ([]StockBalanceRow, error) {
	return s.repo.StockBalance(ctx, warehouseID)
}

// ItemMovement lists ledger entries newest first together with the inbound,
// outbound and net totals for the same filter. Both queries run concurrently.
func (s *Service) ItemMovement(ctx context.Context, filter MovementFilter) ([]MovementRow, MovementSummary, error) {
	var (
		rows    []MovementRow
		summary MovementSummary
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.repo.ItemMovement(ctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		summary, err = s.repo.MovementSummary(ctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, MovementSummary{}, err
	}
	return rows, summary, nil
}

// LowStock lists items below their reorder level.
func (s *Service) LowStock(ctx context.Context) ([]LowStockRow, error) {
	return s.repo.LowStock(ctx)
}

// Overview gathers the dashboard figures. The independent aggregates run
// concurrently.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	var overview Overview
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		items, warehouses, err := s.repo.Counts(ctx)
		if err != nil {
			return err
		}
		overview.ItemCount = items
		overview.WarehouseCount = warehouses
		return nil
	})
	g.Go(func() error {
		value, err := s.repo.StockValue(ctx)
		if err != nil {
			return err
		}
		overview.StockValue = value
		return nil
	})
	g.Go(func() error {
		low, err := s.repo.LowStock(ctx)
		if err != nil {
			return err
		}
		overview.LowStockItems = len(low)
		return nil
	})
	g.Go(func() error {
		sales, purchase, err := s.repo.OpenOrderCounts(ctx)
		if err != nil {
			return err
		}
		overview.OpenSalesOrders = sales
		overview.OpenPurchaseOrders = purchase
		return nil
	})

	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return overview, nil
}
