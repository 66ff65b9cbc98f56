package http

import (
	"errors"
	"net/http"

	"github.com/dejobratic/storefront/internal/auth"
	"github.com/dejobratic/storefront/internal/httpapi"
	"github.com/dejobratic/storefront/internal/loyalty/app"
	"github.com/dejobratic/storefront/internal/loyalty/domain"
	"github.com/dejobratic/storefront/internal/validation"
	"github.com/gorilla/mux"
)

// Handler exposes loyalty balances. Points only move through checkout or
// the admin adjustment route.
type Handler struct {
	service *app.Service
}

func NewHandler(service *app.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(routes httpapi.Routes) {
	routes.Customer.HandleFunc("/v1/loyalty", h.getOwnSummary).Methods(http.MethodGet)

	routes.Admin.HandleFunc("/v1/admin/loyalty/{customer}", h.getSummary).Methods(http.MethodGet)
	routes.Admin.HandleFunc("/v1/admin/loyalty/{customer}/earn", h.adjust).Methods(http.MethodPost)
}

func (h *Handler) getOwnSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	h.writeSummary(w, r, id.CustomerID)
}

func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	h.writeSummary(w, r, mux.Vars(r)["customer"])
}

func (h *Handler) writeSummary(w http.ResponseWriter, r *http.Request, customerID string) {
	summary, err := h.service.Summary(r.Context(), customerID)
	if err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var input app.AdjustInput
	if err := httpapi.DecodeJSON(r, &input); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	customerID := mux.Vars(r)["customer"]
	balance, err := h.service.Adjust(r.Context(), customerID, input)
	if err != nil {
		var verr *validation.Error
		switch {
		case errors.As(err, &verr):
			httpapi.WriteInvalid(w, verr)
		case errors.Is(err, domain.ErrInvalidAmount):
			httpapi.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			httpapi.WriteError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"customer_id": customerID, "balance": balance})
}
