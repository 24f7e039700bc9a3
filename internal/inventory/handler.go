package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/items/{itemID}", func(r chi.Router) {
		r.Post("/stock/add", h.handleAddStock)
		r.Post("/stock/deduct", h.handleDeductStock)
		r.Post("/stock/adjust", h.handleAdjustStock)
		r.Get("/valuation", h.handleValuation)
		r.Get("/transactions", h.handleTransactions)
	})
	r.Get("/alerts", h.handleAlerts)
}

type addStockRequest struct {
	WarehouseID    string          `json:"warehouse_id" validate:"required,uuid"`
	Quantity       decimal.Decimal `json:"quantity"`
	PurchasePrice  decimal.Decimal `json:"purchase_price"`
	PurchaseDate   *time.Time      `json:"purchase_date"`
	Type           string          `json:"type" validate:"omitempty,oneof=purchase grn return adjustment adjustment_increase"`
	ReferenceID    string          `json:"reference_id" validate:"max=64"`
	ReferenceType  string          `json:"reference_type" validate:"max=32"`
	Notes          string          `json:"notes" validate:"max=500"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=128"`
}

type deductStockRequest struct {
	WarehouseID    string          `json:"warehouse_id" validate:"required,uuid"`
	Quantity       decimal.Decimal `json:"quantity"`
	Type           string          `json:"type" validate:"omitempty,oneof=sale adjustment adjustment_decrease damage expired"`
	ReferenceID    string          `json:"reference_id" validate:"max=64"`
	ReferenceType  string          `json:"reference_type" validate:"max=32"`
	Notes          string          `json:"notes" validate:"max=500"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=128"`
}

type adjustStockRequest struct {
	WarehouseID    string              `json:"warehouse_id" validate:"required,uuid"`
	Quantity       decimal.Decimal     `json:"quantity"`
	Type           string              `json:"adjustment_type" validate:"required,oneof=adjustment_increase return adjustment_decrease damage expired"`
	Reason         string              `json:"reason" validate:"required,max=500"`
	PurchasePrice  decimal.NullDecimal `json:"purchase_price"`
	IdempotencyKey string              `json:"idempotency_key" validate:"max=128"`
}

func (h *Handler) handleAddStock(w http.ResponseWriter, r *http.Request) {
	tenant, itemID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req addStockRequest
	if !httpx.DecodeAndValidate(w, r, &req) {
		return
	}
	input := AddStockInput{
		OrgID:          tenant.OrgID,
		ItemID:         itemID,
		WarehouseID:    uuid.MustParse(req.WarehouseID),
		Quantity:       req.Quantity,
		PurchasePrice:  req.PurchasePrice,
		Type:           TransactionType(req.Type),
		ReferenceID:    req.ReferenceID,
		ReferenceType:  req.ReferenceType,
		Notes:          req.Notes,
		ActorID:        tenant.UserID,
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
	}
	if req.PurchaseDate != nil {
		input.PurchaseDate = req.PurchaseDate.UTC()
	}
	batch, err := h.service.AddStock(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, batch)
}

func (h *Handler) handleDeductStock(w http.ResponseWriter, r *http.Request) {
	tenant, itemID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req deductStockRequest
	if !httpx.DecodeAndValidate(w, r, &req) {
		return
	}
	res, err := h.service.DeductStock(r.Context(), DeductStockInput{
		OrgID:          tenant.OrgID,
		ItemID:         itemID,
		WarehouseID:    uuid.MustParse(req.WarehouseID),
		Quantity:       req.Quantity,
		Type:           TransactionType(req.Type),
		ReferenceID:    req.ReferenceID,
		ReferenceType:  req.ReferenceType,
		Notes:          req.Notes,
		ActorID:        tenant.UserID,
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	tenant, itemID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req adjustStockRequest
	if !httpx.DecodeAndValidate(w, r, &req) {
		return
	}
	res, err := h.service.AdjustStock(r.Context(), AdjustStockInput{
		OrgID:          tenant.OrgID,
		ItemID:         itemID,
		WarehouseID:    uuid.MustParse(req.WarehouseID),
		Quantity:       req.Quantity,
		Type:           TransactionType(req.Type),
		Reason:         req.Reason,
		UserID:         tenant.UserID,
		PurchasePrice:  req.PurchasePrice,
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleValuation(w http.ResponseWriter, r *http.Request) {
	tenant, itemID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var warehouseID *uuid.UUID
	if raw := r.URL.Query().Get("warehouse_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warehouse_id")
			return
		}
		warehouseID = &id
	}
	val, err := h.service.CalculateFIFOValuation(r.Context(), tenant.OrgID, itemID, warehouseID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, val)
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	tenant, itemID, ok := h.scope(w, r)
	if !ok {
		return
	}
	filter := TransactionFilter{OrgID: tenant.OrgID, ItemID: itemID}
	q := r.URL.Query()
	if raw := q.Get("warehouse_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warehouse_id")
			return
		}
		filter.WarehouseID = id
	}
	if raw := q.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			filter.Limit = v
		}
	}
	rows, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if rows == nil {
		rows = []StockTransaction{}
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrTenantMissing.Error())
		return
	}
	filter := AlertFilter{OrgID: tenant.OrgID}
	q := r.URL.Query()
	filter.OpenOnly, _ = strconv.ParseBool(q.Get("open"))
	if raw := q.Get("item_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item_id")
			return
		}
		filter.ItemID = id
	}
	alerts, err := h.service.ListAlerts(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []StockAlert{}
	}
	httpx.JSON(w, http.StatusOK, alerts)
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (shared.Tenant, uuid.UUID, bool) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrTenantMissing.Error())
		return shared.Tenant{}, uuid.Nil, false
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return shared.Tenant{}, uuid.Nil, false
	}
	return tenant, itemID, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var short *InsufficientStockError
	switch {
	case errors.As(err, &short):
		fields := map[string]string{
			"available": short.Available.String(),
			"required":  short.Required.String(),
		}
		if short.WarehouseID != uuid.Nil {
			fields["warehouse_id"] = short.WarehouseID.String()
		}
		httpx.ProblemFields(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error(), fields)
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost),
		errors.Is(err, ErrMissingIdentifiers), errors.Is(err, ErrInvalidTransactionType),
		errors.Is(err, ErrInvalidAdjustmentType), errors.Is(err, ErrReasonRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error("inventory request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func idempotencyKey(r *http.Request, body string) string {
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		return key
	}
	return body
}
