package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tassili-erp/tassili-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for ledger queries.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balance", h.handleBalance)
	r.Get("/availability", h.handleAvailability)
	r.Get("/stock-card", h.handleStockCard)
	r.Get("/vouchers/{type}/{no}", h.handleVoucher)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	itemID := queryInt(r, "item_id")
	warehouseID := queryInt(r, "warehouse_id")
	if itemID == 0 || warehouseID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item_id and warehouse_id are required")
		return
	}
	balance, err := h.service.Balance(r.Context(), itemID, warehouseID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	itemID := queryInt(r, "item_id")
	if itemID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item_id is required")
		return
	}
	qty, err := h.service.AvailableQty(r.Context(), itemID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"item_id": itemID, "available_qty": qty})
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	filter := StockCardFilter{
		ItemID:      queryInt(r, "item_id"),
		WarehouseID: queryInt(r, "warehouse_id"),
		Limit:       int(queryInt(r, "limit")),
	}
	if filter.ItemID == 0 || filter.WarehouseID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item_id and warehouse_id are required")
		return
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	entries, err := h.service.StockCard(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleVoucher(w http.ResponseWriter, r *http.Request) {
	voucherType := VoucherType(chi.URLParam(r, "type"))
	voucherNo := chi.URLParam(r, "no")
	entries, err := h.service.VoucherEntries(r.Context(), voucherType, voucherNo)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrAlreadyCancelled):
		httpx.Problem(w, http.StatusConflict, "Already Cancelled", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidRate), errors.Is(err, ErrVoucherRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("ledger request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func queryInt(r *http.Request, name string) int64 {
	value, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return value
}
