package documents

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-crm/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-crm/internal/tenant"
)

// Formatter renders amounts and dates for responses.
type Formatter interface {
	Currency(amount decimal.Decimal, code string) string
	Date(t *time.Time) string
}

// Handler exposes the document API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	format  Formatter
}

// NewHandler constructs the document handler.
func NewHandler(logger *slog.Logger, service *Service, format Formatter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, format: format}
}

var errorRules = []httpx.Rule{
	{Target: httpx.ErrBadRequest, Status: http.StatusBadRequest, Title: "Bad Request"},
	{Target: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
	{Target: ErrIndexOutOfRange, Status: http.StatusBadRequest, Title: "Item Index Out Of Range"},
	{Target: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Target: ErrInvalidTransition, Status: http.StatusConflict, Title: "Invalid Status Transition"},
	{Target: ErrStaleVersion, Status: http.StatusConflict, Title: "Stale Version"},
	{Target: ErrComputation, Status: http.StatusUnprocessableEntity, Title: "Invalid Amount"},
}

// MountRoutes registers document routes. The router must carry the tenant
// scope in the request context (see tenant.FromPath).
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/documents", h.list)
	r.Post("/documents", h.create)
	r.Route("/documents/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/items", h.addItem)
		r.Patch("/items/{index}", h.updateItem)
		r.Delete("/items/{index}", h.removeItem)
		r.Put("/discount", h.setDiscount)
		r.Put("/taxes", h.setTaxes)
		r.Post("/status", h.changeStatus)
		r.Post("/payments", h.recordPayment)
		r.Post("/convert", h.convert)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	filter, err := parseListFilter(r)
	if err != nil {
		h.fail(w, r, "list documents", err)
		return
	}
	views, err := h.service.List(r.Context(), scope, filter)
	if err != nil {
		h.fail(w, r, "list documents", err)
		return
	}
	out := make([]documentResponse, 0, len(views))
	for _, v := range views {
		out = append(out, h.response(v))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{Kind: Kind(q.Get("kind")), Status: Status(q.Get("status"))}
	ints := []struct {
		name string
		dst  *int
	}{
		{"limit", &filter.Limit},
		{"offset", &filter.Offset},
	}
	for _, p := range ints {
		if raw := q.Get(p.name); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return ListFilter{}, fmt.Errorf("%w: %s must be a number", ErrValidation, p.name)
			}
			*p.dst = v
		}
	}
	if raw := q.Get("client_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ListFilter{}, fmt.Errorf("%w: client_id must be a number", ErrValidation)
		}
		filter.ClientID = id
	}
	return filter, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, "create document", err)
		return
	}
	v, err := h.service.Create(r.Context(), scope, in)
	if err != nil {
		h.fail(w, r, "create document", err)
		return
	}
	h.respond(w, http.StatusCreated, v)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	v, err := h.service.Get(r.Context(), scope, id)
	if err != nil {
		h.fail(w, r, "get document", err)
		return
	}
	h.respond(w, http.StatusOK, v)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var in AddItemInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, "add item", err)
		return
	}
	v, err := h.service.AddItem(r.Context(), scope, id, ifMatch(r), in)
	h.finish(w, r, "add item", v, err)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	index, err := pathInt(r, "index")
	if err != nil {
		h.fail(w, r, "update item", err)
		return
	}
	var patch ItemPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		h.fail(w, r, "update item", err)
		return
	}
	v, err := h.service.UpdateItem(r.Context(), scope, id, ifMatch(r), int(index), patch)
	h.finish(w, r, "update item", v, err)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	index, err := pathInt(r, "index")
	if err != nil {
		h.fail(w, r, "remove item", err)
		return
	}
	v, err := h.service.RemoveItem(r.Context(), scope, id, ifMatch(r), int(index))
	h.finish(w, r, "remove item", v, err)
}

func (h *Handler) setDiscount(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var in DiscountSpec
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, "set discount", err)
		return
	}
	v, err := h.service.SetDiscount(r.Context(), scope, id, ifMatch(r), in)
	h.finish(w, r, "set discount", v, err)
}

type taxesRequest struct {
	Taxes []TaxSpec `json:"taxes"`
}

func (h *Handler) setTaxes(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var in taxesRequest
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, "set taxes", err)
		return
	}
	v, err := h.service.SetTaxes(r.Context(), scope, id, ifMatch(r), in.Taxes)
	h.finish(w, r, "set taxes", v, err)
}

type statusRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var in statusRequest
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, "change status", err)
		return
	}
	v, err := h.service.ChangeStatus(r.Context(), scope, id, ifMatch(r), in.Status)
	h.finish(w, r, "change status", v, err)
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var in paymentRequest
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, "record payment", err)
		return
	}
	v, err := h.service.RecordPayment(r.Context(), scope, id, ifMatch(r), in.Amount)
	h.finish(w, r, "record payment", v, err)
}

type convertRequest struct {
	DueDate *time.Time `json:"due_date,omitempty"`
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var in convertRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &in); err != nil {
			h.fail(w, r, "convert document", err)
			return
		}
	}
	v, err := h.service.ConvertToInvoice(r.Context(), scope, id, in.DueDate)
	if err != nil {
		h.fail(w, r, "convert document", err)
		return
	}
	h.respond(w, http.StatusCreated, v)
}

func (h *Handler) finish(w http.ResponseWriter, r *http.Request, msg string, v View, err error) {
	if err != nil {
		h.fail(w, r, msg, err)
		return
	}
	h.respond(w, http.StatusOK, v)
}

func (h *Handler) respond(w http.ResponseWriter, status int, v View) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(v.Version, 10)))
	httpx.JSON(w, status, h.response(v))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	for _, rule := range errorRules {
		if errors.Is(err, rule.Target) {
			httpx.RespondError(w, err, errorRules...)
			return
		}
	}
	h.logger.ErrorContext(r.Context(), msg, slog.Any("error", err), slog.String("path", r.URL.Path))
	httpx.RespondError(w, err)
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (tenant.Scope, bool) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Tenant", tenant.ErrInvalidScope.Error())
		return 0, false
	}
	return scope, true
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (tenant.Scope, int64, bool) {
	scope, ok := h.scope(w, r)
	if !ok {
		return 0, 0, false
	}
	id, err := pathInt(r, "id")
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "document id must be a positive number")
		return 0, 0, false
	}
	return scope, id, true
}

func pathInt(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", ErrValidation, name)
	}
	return v, nil
}

// ifMatch reads the expected version from an If-Match header such as "3"
// or W/"3". A missing or unparsable header yields 0.
func ifMatch(r *http.Request) int64 {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

type lineResponse struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Quantity      string `json:"quantity"`
	Unit          string `json:"unit"`
	UnitPrice     string `json:"unit_price"`
	TaxRate       string `json:"tax_rate"`
	Amount        string `json:"amount"`
	CatalogItemID *int64 `json:"catalog_item_id,omitempty"`
}

type formattedResponse struct {
	SubTotal   string `json:"sub_total"`
	Total      string `json:"total"`
	Balance    string `json:"balance,omitempty"`
	ValidUntil string `json:"valid_until,omitempty"`
	DueDate    string `json:"due_date,omitempty"`
}

type documentResponse struct {
	ID             int64             `json:"id"`
	ClientID       int64             `json:"client_id"`
	Number         string            `json:"number"`
	Kind           Kind              `json:"kind"`
	Status         Status            `json:"status"`
	DisplayStatus  Status            `json:"display_status"`
	Currency       string            `json:"currency"`
	Items          []lineResponse    `json:"items"`
	Discount       DiscountSpec      `json:"discount"`
	Taxes          []TaxSpec         `json:"taxes"`
	SubTotal       string            `json:"sub_total"`
	DiscountAmount string            `json:"discount_amount"`
	TaxAmount      string            `json:"tax_amount"`
	Total          string            `json:"total"`
	AmountPaid     string            `json:"amount_paid,omitempty"`
	Balance        string            `json:"balance,omitempty"`
	ValidUntil     *time.Time        `json:"valid_until,omitempty"`
	DueDate        *time.Time        `json:"due_date,omitempty"`
	Version        int64             `json:"version"`
	Formatted      formattedResponse `json:"formatted"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func money(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

func (h *Handler) response(v View) documentResponse {
	rounded := v.Totals().Rounded()
	out := documentResponse{
		ID:             v.ID,
		ClientID:       v.ClientID,
		Number:         v.Number,
		Kind:           v.Kind,
		Status:         v.Status,
		DisplayStatus:  v.DisplayStatus,
		Currency:       v.Currency,
		Items:          make([]lineResponse, 0, len(v.Items)),
		Discount:       v.Discount,
		Taxes:          v.Taxes,
		SubTotal:       money(rounded.SubTotal),
		DiscountAmount: money(rounded.DiscountAmount),
		TaxAmount:      money(rounded.TaxAmount),
		Total:          money(rounded.Total),
		ValidUntil:     v.ValidUntil,
		DueDate:        v.DueDate,
		Version:        v.Version,
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
	if out.Taxes == nil {
		out.Taxes = []TaxSpec{}
	}
	for _, line := range v.Items {
		out.Items = append(out.Items, lineResponse{
			Name:          line.Name,
			Description:   line.Description,
			Quantity:      line.Quantity.String(),
			Unit:          line.Unit,
			UnitPrice:     line.UnitPrice.String(),
			TaxRate:       line.TaxRate.String(),
			Amount:        money(line.Amount),
			CatalogItemID: line.CatalogItemID,
		})
	}
	if v.Kind == KindInvoice {
		out.AmountPaid = money(v.AmountPaid)
		out.Balance = money(v.Balance())
	}
	if h.format != nil {
		out.Formatted = formattedResponse{
			SubTotal:   h.format.Currency(v.SubTotal, v.Currency),
			Total:      h.format.Currency(v.Total, v.Currency),
			ValidUntil: h.format.Date(v.ValidUntil),
			DueDate:    h.format.Date(v.DueDate),
		}
		if v.Kind == KindInvoice {
			out.Formatted.Balance = h.format.Currency(v.Balance(), v.Currency)
		}
	}
	return out
}
