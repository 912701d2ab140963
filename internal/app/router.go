package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tassili-erp/tassili-erp/internal/ledger"
	"github.com/tassili-erp/tassili-erp/internal/masterdata"
	"github.com/tassili-erp/tassili-erp/internal/observability"
	"github.com/tassili-erp/tassili-erp/internal/pos"
	"github.com/tassili-erp/tassili-erp/internal/pricing"
	"github.com/tassili-erp/tassili-erp/internal/procurement"
	"github.com/tassili-erp/tassili-erp/internal/reports"
	"github.com/tassili-erp/tassili-erp/internal/sales/delivery"
	"github.com/tassili-erp/tassili-erp/internal/sales/orders"
	"github.com/tassili-erp/tassili-erp/internal/stockentry"
	"github.com/tassili-erp/tassili-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	MasterDataHandler  *masterdata.Handler
	LedgerHandler      *ledger.Handler
	StockEntryHandler  *stockentry.Handler
	OrdersHandler      *orders.Handler
	DeliveryHandler    *delivery.Handler
	ProcurementHandler *procurement.Handler
	POSHandler         *pos.Handler
	PricingHandler     *pricing.Handler
	ReportsHandler     *reports.Handler
	JobHandler         *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with Tassili defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.MasterDataHandler != nil {
		r.Route("/masterdata", params.MasterDataHandler.MountRoutes)
	}
	if params.LedgerHandler != nil {
		r.Route("/ledger", params.LedgerHandler.MountRoutes)
	}
	if params.StockEntryHandler != nil {
		r.Route("/stock-entries", params.StockEntryHandler.MountRoutes)
	}
	if params.OrdersHandler != nil {
		r.Route("/sales/orders", params.OrdersHandler.MountRoutes)
	}
	if params.DeliveryHandler != nil {
		r.Route("/sales/deliveries", params.DeliveryHandler.MountRoutes)
	}
	if params.ProcurementHandler != nil {
		r.Route("/procurement", params.ProcurementHandler.MountRoutes)
	}
	if params.POSHandler != nil {
		r.Route("/pos", params.POSHandler.MountRoutes)
	}
	if params.PricingHandler != nil {
		r.Route("/pricing", params.PricingHandler.MountRoutes)
	}
	if params.ReportsHandler != nil {
		r.Route("/reports", params.ReportsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
