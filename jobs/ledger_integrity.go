package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/tassili-erp/tassili-erp/internal/jobs"
)

// LedgerIntegrityJob scans the stock ledger for balances that should be
// impossible (negative quantity or value on an item and warehouse pair) and
// for items whose cached valuation rate has drifted from the ledger-derived
// weighted average. Findings are logged and counted, never auto-corrected.
type LedgerIntegrityJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerIntegrityJob wires dependencies for the integrity handler.
func NewLedgerIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Pool: pool, Logger: logger, Metrics: metrics}
}

type balanceDiscrepancy struct {
	ItemID      int64
	WarehouseID int64
	Qty         float64
	Value       float64
}

// Handle processes ledger integrity tasks.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLedgerIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	start := time.Now()
	logger.Info("starting ledger integrity scan")

	found, err := j.scan(ctx)
	if err != nil {
		resultErr = err
		logger.Error("ledger integrity scan", slog.Any("error", err))
		return resultErr
	}

	for _, d := range found {
		logger.Warn("stock balance discrepancy",
			slog.Int64("item_id", d.ItemID),
			slog.Int64("warehouse_id", d.WarehouseID),
			slog.Float64("qty", d.Qty),
			slog.Float64("value", d.Value))
	}
	j.metrics().AddDiscrepancies("negative_balance", len(found))

	drifted, err := j.scanValuationDrift(ctx)
	if err != nil {
		resultErr = err
		logger.Error("valuation drift scan", slog.Any("error", err))
		return resultErr
	}
	for _, d := range drifted {
		logger.Warn("valuation rate drift",
			slog.Int64("item_id", d.ItemID),
			slog.Float64("snapshot_rate", d.SnapshotRate),
			slog.Float64("ledger_rate", d.LedgerRate))
	}
	j.metrics().AddDiscrepancies("valuation_drift", len(drifted))

	logger.Info("completed ledger integrity scan",
		slog.Int("discrepancies", len(found)+len(drifted)),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

type valuationDrift struct {
	ItemID       int64
	SnapshotRate float64
	LedgerRate   float64
}

func (j *LedgerIntegrityJob) scanValuationDrift(ctx context.Context) ([]valuationDrift, error) {
	rows, err := j.Pool.Query(ctx, `SELECT i.id, i.valuation_rate, SUM(e.value_diff) / SUM(e.qty) AS ledger_rate
FROM items i
JOIN stock_ledger_entries e ON e.item_id = i.id AND NOT e.cancelled
GROUP BY i.id, i.valuation_rate
HAVING SUM(e.qty) > 0.0001
   AND ABS(i.valuation_rate - SUM(e.value_diff) / SUM(e.qty)) > 0.01
ORDER BY i.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drifted := []valuationDrift{}
	for rows.Next() {
		var d valuationDrift
		if err := rows.Scan(&d.ItemID, &d.SnapshotRate, &d.LedgerRate); err != nil {
			return nil, err
		}
		drifted = append(drifted, d)
	}
	return drifted, rows.Err()
}

func (j *LedgerIntegrityJob) scan(ctx context.Context) ([]balanceDiscrepancy, error) {
	rows, err := j.Pool.Query(ctx, `SELECT item_id, warehouse_id, SUM(qty) AS qty, SUM(value_diff) AS value
FROM stock_ledger_entries
WHERE NOT cancelled
GROUP BY item_id, warehouse_id
HAVING SUM(qty) < -0.0001 OR SUM(value_diff) < -0.01
ORDER BY item_id, warehouse_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := []balanceDiscrepancy{}
	for rows.Next() {
		var d balanceDiscrepancy
		if err := rows.Scan(&d.ItemID, &d.WarehouseID, &d.Qty, &d.Value); err != nil {
			return nil, err
		}
		found = append(found, d)
	}
	return found, rows.Err()
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
