package summary

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-crm/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-crm/internal/tenant"
)

// Handler serves client dashboards.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the summary handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the summary route under a tenant scoped router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/clients/{client}/summary", h.clientSummary)
}

func (h *Handler) clientSummary(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Tenant", tenant.ErrInvalidScope.Error())
		return
	}
	clientID, err := strconv.ParseInt(chi.URLParam(r, "client"), 10, 64)
	if err != nil || clientID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", ErrInvalidClient.Error())
		return
	}
	dash, err := h.service.ClientDashboard(r.Context(), scope, clientID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "client summary", slog.Any("error", err), slog.Int64("client_id", clientID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}
