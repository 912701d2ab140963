package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tassili-erp/tassili-erp/internal/app"
	"github.com/tassili-erp/tassili-erp/internal/ledger"
	"github.com/tassili-erp/tassili-erp/internal/masterdata"
	"github.com/tassili-erp/tassili-erp/internal/masterdata/customers"
	"github.com/tassili-erp/tassili-erp/internal/masterdata/items"
	"github.com/tassili-erp/tassili-erp/internal/masterdata/suppliers"
	"github.com/tassili-erp/tassili-erp/internal/masterdata/warehouses"
	"github.com/tassili-erp/tassili-erp/internal/observability"
	"github.com/tassili-erp/tassili-erp/internal/platform/cache"
	"github.com/tassili-erp/tassili-erp/internal/platform/db"
	"github.com/tassili-erp/tassili-erp/internal/pos"
	"github.com/tassili-erp/tassili-erp/internal/pricing"
	"github.com/tassili-erp/tassili-erp/internal/procurement"
	"github.com/tassili-erp/tassili-erp/internal/reports"
	"github.com/tassili-erp/tassili-erp/internal/sales/delivery"
	"github.com/tassili-erp/tassili-erp/internal/sales/orders"
	"github.com/tassili-erp/tassili-erp/internal/shared"
	"github.com/tassili-erp/tassili-erp/internal/stockentry"
	"github.com/tassili-erp/tassili-erp/internal/valuation"
	"github.com/tassili-erp/tassili-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	numberSeries := shared.NewNumberSeries(dbpool)

	itemsRepo := items.NewRepository(dbpool)
	itemsService := items.NewService(itemsRepo)
	warehousesService := warehouses.NewService(warehouses.NewRepository(dbpool))
	customersService := customers.NewService(customers.NewRepository(dbpool))
	suppliersService := suppliers.NewService(suppliers.NewRepository(dbpool))

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, idempotencyStore, metrics, ledger.ServiceConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
	})

	valuationEngine := valuation.NewEngine(ledgerService, itemsRepo)

	priceCache := pricing.NewCache(redisClient, cfg.PriceCacheTTL)
	pricingService := pricing.NewService(logger, pricing.NewRepository(dbpool), priceCache, cfg.DefaultCurrency)

	stockEntryService := stockentry.NewService(logger, stockentry.NewRepository(dbpool),
		ledgerService, valuationEngine, itemsService, warehousesService, numberSeries)

	ordersService := orders.NewService(logger, orders.NewRepository(dbpool),
		customersService, itemsService, pricingService, ledgerService, numberSeries)

	deliveryService := delivery.NewService(logger, delivery.NewRepository(dbpool),
		ordersService, ledgerService, valuationEngine, warehousesService, numberSeries,
		cfg.EnforceAvailability)

	procurementService := procurement.NewService(logger, procurement.NewRepository(dbpool),
		ledgerService, valuationEngine, pricingService, suppliersService, itemsService,
		warehousesService, numberSeries)

	posService := pos.NewService(logger, pos.NewRepository(dbpool),
		ledgerService, valuationEngine, pricingService, customersService, itemsService,
		warehousesService, numberSeries)

	reportsService := reports.NewService(reports.NewRepository(dbpool))

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	masterDataHandler := &masterdata.Handler{
		Items:      items.NewHandler(logger, itemsService),
		Warehouses: warehouses.NewHandler(logger, warehousesService),
		Customers:  customers.NewHandler(logger, customersService),
		Suppliers:  suppliers.NewHandler(logger, suppliersService),
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		MasterDataHandler:  masterDataHandler,
		LedgerHandler:      ledger.NewHandler(logger, ledgerService),
		StockEntryHandler:  stockentry.NewHandler(logger, stockEntryService),
		OrdersHandler:      orders.NewHandler(logger, ordersService),
		DeliveryHandler:    delivery.NewHandler(logger, deliveryService),
		ProcurementHandler: procurement.NewHandler(logger, procurementService),
		POSHandler:         pos.NewHandler(logger, posService),
		PricingHandler:     pricing.NewHandler(logger, pricingService),
		ReportsHandler:     reports.NewHandler(logger, reportsService),
		JobHandler:         jobs.NewHandler(inspector, jobClient, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
