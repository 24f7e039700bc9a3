package documents

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/numbering"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// Handler wires HTTP endpoints for invoices and quotations.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the documents handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/{kind}", func(r chi.Router) {
		r.Get("/next-number", h.handleNextNumber)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Delete("/{id}", h.handleDelete)
	})
}

type createRequest struct {
	CustomerName string          `json:"customer_name" validate:"required,max=200"`
	Total        decimal.Decimal `json:"total"`
	IssueDate    *time.Time      `json:"issue_date"`
	Notes        string          `json:"notes" validate:"max=1000"`
}

func (h *Handler) handleNextNumber(w http.ResponseWriter, r *http.Request) {
	tenant, docType, ok := h.scope(w, r)
	if !ok {
		return
	}
	number, err := h.service.PreviewNextNumber(r.Context(), tenant.OrgID, docType)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"number": number})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	tenant, docType, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req createRequest
	if !httpx.DecodeAndValidate(w, r, &req) {
		return
	}
	input := CreateInput{
		OrgID:        tenant.OrgID,
		ActorID:      tenant.UserID,
		CustomerName: req.CustomerName,
		Total:        req.Total,
		Notes:        req.Notes,
	}
	if req.IssueDate != nil {
		input.IssueDate = req.IssueDate.UTC()
	}
	var (
		doc Document
		err error
	)
	if docType == numbering.DocumentQuotation {
		doc, err = h.service.CreateQuotation(r.Context(), input)
	} else {
		doc, err = h.service.CreateInvoice(r.Context(), input)
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	tenant, docType, ok := h.scope(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid document id")
		return
	}
	doc, err := h.service.Get(r.Context(), tenant.OrgID, docType, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	tenant, docType, ok := h.scope(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid document id")
		return
	}
	if err := h.service.Delete(r.Context(), tenant.OrgID, docType, id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (shared.Tenant, numbering.DocumentType, bool) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrTenantMissing.Error())
		return shared.Tenant{}, "", false
	}
	switch chi.URLParam(r, "kind") {
	case "invoices":
		return tenant, numbering.DocumentInvoice, true
	case "quotations":
		return tenant, numbering.DocumentQuotation, true
	}
	httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown document kind")
	return shared.Tenant{}, "", false
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMissingOrganization),
		errors.Is(err, numbering.ErrInvalidFiscalYearStart), errors.Is(err, numbering.ErrUnknownDocumentType):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, numbering.ErrOrganizationNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNumberExhausted):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("documents request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
