package http

import (
	"errors"
	"net/http"

	"github.com/dejobratic/storefront/internal/coupons/app"
	"github.com/dejobratic/storefront/internal/coupons/domain"
	"github.com/dejobratic/storefront/internal/coupons/ports"
	"github.com/dejobratic/storefront/internal/httpapi"
	"github.com/dejobratic/storefront/internal/validation"
	"github.com/gorilla/mux"
)

// Handler exposes coupon preview, administration and welcome issuance.
type Handler struct {
	service *app.Service
}

func NewHandler(service *app.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(routes httpapi.Routes) {
	routes.Customer.HandleFunc("/v1/coupons/validate", h.validateCoupon).Methods(http.MethodPost)

	routes.Admin.HandleFunc("/v1/admin/coupons", h.createCoupon).Methods(http.MethodPost)
	routes.Admin.HandleFunc("/v1/admin/coupons", h.listCoupons).Methods(http.MethodGet)
	routes.Admin.HandleFunc("/v1/admin/coupons/{code}", h.getCoupon).Methods(http.MethodGet)
	routes.Admin.HandleFunc("/v1/admin/coupons/{code}", h.deactivateCoupon).Methods(http.MethodDelete)
	routes.Admin.HandleFunc("/v1/admin/coupons/{code}/usages", h.listUsages).Methods(http.MethodGet)

	routes.Internal.HandleFunc("/v1/internal/customers/{id}/welcome-coupon", h.issueWelcomeCoupon).Methods(http.MethodPost)
}

type validateRequest struct {
	Code        string `json:"code" validate:"required"`
	OrderAmount int64  `json:"order_amount" validate:"gte=0"`
}

func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.Struct(req); err != nil {
		writeServiceError(w, err)
		return
	}

	quote, err := h.service.Quote(r.Context(), req.Code, req.OrderAmount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"quote": quote})
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var input app.CreateCouponInput
	if err := httpapi.DecodeJSON(r, &input); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	coupon, err := h.service.Create(r.Context(), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, map[string]any{"coupon": coupon})
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	filter := ports.ListFilter{
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Page:       httpapi.QueryInt(r, "page", 1),
		PageSize:   httpapi.QueryInt(r, "page_size", 20),
	}

	coupons, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"coupons": coupons})
}

func (h *Handler) getCoupon(w http.ResponseWriter, r *http.Request) {
	coupon, err := h.service.Get(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"coupon": coupon})
}

func (h *Handler) deactivateCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Deactivate(r.Context(), mux.Vars(r)["code"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listUsages(w http.ResponseWriter, r *http.Request) {
	usages, err := h.service.Usages(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"usages": usages})
}

func (h *Handler) issueWelcomeCoupon(w http.ResponseWriter, r *http.Request) {
	coupon, err := h.service.IssueWelcomeCoupon(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, map[string]any{"coupon": coupon})
}

func writeServiceError(w http.ResponseWriter, err error) {
	var verr *validation.Error
	var rej *domain.RejectionError
	switch {
	case errors.As(err, &verr):
		httpapi.WriteInvalid(w, verr)
	case errors.As(err, &rej):
		httpapi.WriteJSON(w, http.StatusUnprocessableEntity, httpapi.ErrorBody{Error: rej.Error(), Code: string(rej.Reason)})
	case errors.Is(err, ports.ErrNotFound):
		httpapi.WriteError(w, http.StatusNotFound, "coupon not found")
	case errors.Is(err, ports.ErrDuplicateCode):
		httpapi.WriteError(w, http.StatusConflict, err.Error())
	default:
		httpapi.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
