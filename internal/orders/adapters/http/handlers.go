package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dejobratic/storefront/internal/auth"
	"github.com/dejobratic/storefront/internal/httpapi"
	"github.com/dejobratic/storefront/internal/orders/app"
	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/app/queries"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/shipping"
	"github.com/dejobratic/storefront/internal/validation"
	"github.com/gorilla/mux"
)

// TrackingSyncer pulls the latest carrier tracking for an order.
type TrackingSyncer interface {
	Sync(ctx context.Context, number string) (*domain.Order, error)
}

// Handler exposes HTTP endpoints for checkout and order operations.
type Handler struct {
	service *app.Service
	tracker TrackingSyncer
}

// NewHandler constructs a Handler. tracker may be nil when no carrier is configured.
func NewHandler(service *app.Service, tracker TrackingSyncer) *Handler {
	return &Handler{service: service, tracker: tracker}
}

// Register binds the order handlers to the route groups.
func (h *Handler) Register(routes httpapi.Routes) {
	routes.Customer.HandleFunc("/v1/checkout", h.checkout).Methods(http.MethodPost)
	routes.Customer.HandleFunc("/v1/orders", h.listOwnOrders).Methods(http.MethodGet)
	routes.Customer.HandleFunc("/v1/orders/{number}", h.getOwnOrder).Methods(http.MethodGet)
	routes.Customer.HandleFunc("/v1/orders/{number}/cancel", h.cancelOrder).Methods(http.MethodPost)

	routes.Admin.HandleFunc("/v1/admin/orders", h.listOrders).Methods(http.MethodGet)
	routes.Admin.HandleFunc("/v1/admin/orders/{number}", h.getOrder).Methods(http.MethodGet)
	routes.Admin.HandleFunc("/v1/admin/orders/{number}/status", h.updateStatus).Methods(http.MethodPatch)
	routes.Admin.HandleFunc("/v1/admin/orders/{number}/tracking", h.updateTracking).Methods(http.MethodPut)
	routes.Admin.HandleFunc("/v1/admin/orders/{number}/shipment", h.retryShipment).Methods(http.MethodPost)
	if h.tracker != nil {
		routes.Admin.HandleFunc("/v1/admin/orders/{number}/tracking/sync", h.syncTracking).Methods(http.MethodPost)
	}
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var cmd commands.PlaceOrderCommand
	if err := httpapi.DecodeJSON(r, &cmd); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	cmd.CustomerID = id.CustomerID
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		cmd.IdempotencyKey = key
	}

	result, err := h.service.Checkout(r.Context(), cmd)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
		w.Header().Set("Idempotent-Replayed", "true")
	}
	httpapi.WriteJSON(w, status, map[string]any{"order": result.Order})
}

func (h *Handler) listOwnOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	h.writeList(w, r, id.CustomerID)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	h.writeList(w, r, r.URL.Query().Get("customer_id"))
}

func (h *Handler) writeList(w http.ResponseWriter, r *http.Request, customerID string) {
	query := queries.ListOrdersQuery{
		CustomerID: customerID,
		Page:       httpapi.QueryInt(r, "page", 1),
		PageSize:   httpapi.QueryInt(r, "page_size", 20),
	}
	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		status := domain.OrderStatus(statusParam)
		if !status.Valid() {
			httpapi.WriteInvalid(w, validation.Field("status", "unknown status"))
			return
		}
		query.Status = &status
	}

	orders, err := h.service.ListOrders(r.Context(), query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) getOwnOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	h.writeOrder(w, r, id.CustomerID)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	h.writeOrder(w, r, "")
}

func (h *Handler) writeOrder(w http.ResponseWriter, r *http.Request, customerID string) {
	order, err := h.service.GetOrder(r.Context(), mux.Vars(r)["number"], customerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	order, err := h.service.CancelOrder(r.Context(), mux.Vars(r)["number"], id.CustomerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"order": order})
}

type statusRequest struct {
	Status domain.OrderStatus `json:"status" validate:"required"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.Struct(req); err != nil {
		writeServiceError(w, err)
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), mux.Vars(r)["number"], req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) updateTracking(w http.ResponseWriter, r *http.Request) {
	var update commands.TrackingUpdate
	if err := httpapi.DecodeJSON(r, &update); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.service.RecordTracking(r.Context(), mux.Vars(r)["number"], update)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) retryShipment(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.RetryShipment(r.Context(), mux.Vars(r)["number"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) syncTracking(w http.ResponseWriter, r *http.Request) {
	order, err := h.tracker.Sync(r.Context(), mux.Vars(r)["number"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"order": order})
}

func writeServiceError(w http.ResponseWriter, err error) {
	var cerr *commands.CheckoutError
	var verr *validation.Error
	var carrierErr *shipping.CarrierError
	switch {
	case errors.As(err, &cerr):
		switch cerr.Kind {
		case commands.KindInvalidInput:
			httpapi.WriteJSON(w, http.StatusBadRequest, httpapi.ErrorBody{
				Error:  cerr.Error(),
				Code:   string(cerr.Kind),
				Fields: cerr.Fields,
			})
		case commands.KindRejected:
			httpapi.WriteJSON(w, http.StatusUnprocessableEntity, httpapi.ErrorBody{Error: cerr.Error(), Code: cerr.Reason})
		case commands.KindPaymentNotAuthentic:
			httpapi.WriteJSON(w, http.StatusPaymentRequired, httpapi.ErrorBody{Error: cerr.Error(), Code: string(cerr.Kind)})
		default:
			httpapi.WriteError(w, http.StatusInternalServerError, "internal error")
		}
	case errors.As(err, &verr):
		httpapi.WriteInvalid(w, verr)
	case errors.Is(err, queries.ErrMissingOrderNumber):
		httpapi.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ports.ErrNotFound):
		httpapi.WriteError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, commands.ErrInvalidTransition), errors.Is(err, commands.ErrNotCancellable), errors.Is(err, ports.ErrConflict):
		httpapi.WriteJSON(w, http.StatusConflict, httpapi.ErrorBody{Error: err.Error(), Code: "invalid_transition"})
	case errors.Is(err, shipping.ErrNoShipment):
		httpapi.WriteJSON(w, http.StatusConflict, httpapi.ErrorBody{Error: err.Error(), Code: "no_shipment"})
	case errors.Is(err, ports.ErrNoCarrier):
		httpapi.WriteError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &carrierErr):
		httpapi.WriteJSON(w, http.StatusBadGateway, httpapi.ErrorBody{Error: carrierErr.Error(), Code: carrierErr.Code})
	case errors.Is(err, context.DeadlineExceeded):
		httpapi.WriteError(w, http.StatusGatewayTimeout, "upstream timeout")
	default:
		httpapi.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
