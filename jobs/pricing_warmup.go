package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tassili-erp/tassili-erp/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PriceWarmer pre-resolves prices into the cache.
type PriceWarmer interface {
	Warmup(ctx context.Context) (int, error)
}

// PricingWarmupJob fills the price cache with the default selling price of
// every active item so the first POS sale of the day does not pay the
// resolution cost.
type PricingWarmupJob struct {
	Pricing PriceWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPricingWarmupJob wires dependencies for the warmup handler.
func NewPricingWarmupJob(pricing PriceWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *PricingWarmupJob {
	return &PricingWarmupJob{
		Pricing: pricing,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes pricing warmup tasks.
func (j *PricingWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pricing == nil {
		return errors.New("pricing warmup: handler not configured")
	}
	var payload PricingWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskPricingWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	start := j.now()
	logger.Info("starting pricing warmup")

	warmed, err := j.Pricing.Warmup(ctx)
	if err != nil {
		resultErr = err
		logger.Error("pricing warmup", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed pricing warmup",
		slog.Int("items", warmed),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *PricingWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPricingWarmup))
	}
	return slog.Default().With(slog.String("job", TaskPricingWarmup))
}

func (j *PricingWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PricingWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
