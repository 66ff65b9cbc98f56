package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/dejobratic/storefront/internal/auth"
	"github.com/dejobratic/storefront/internal/cart"
	"github.com/dejobratic/storefront/internal/httpapi"
	"github.com/dejobratic/storefront/internal/validation"
)

type Handler struct {
	store cart.Store
}

func NewHandler(store cart.Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Register(routes httpapi.Routes) {
	routes.Customer.HandleFunc("/v1/cart", h.getCart).Methods(http.MethodGet)
	routes.Customer.HandleFunc("/v1/cart", h.replaceCart).Methods(http.MethodPut)
	routes.Customer.HandleFunc("/v1/cart", h.clearCart).Methods(http.MethodDelete)
}

type replaceRequest struct {
	Items []cart.Item `json:"items" validate:"max=50,dive"`
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	c, err := h.store.Get(r.Context(), id.CustomerID)
	if err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"cart": c})
}

func (h *Handler) replaceCart(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req replaceRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.Struct(req); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			httpapi.WriteInvalid(w, verr)
			return
		}
		httpapi.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	c := cart.Cart{CustomerID: id.CustomerID, Items: req.Items, UpdatedAt: time.Now().UTC()}
	if err := h.store.Replace(r.Context(), c); err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"cart": c})
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	if err := h.store.Clear(r.Context(), id.CustomerID); err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
