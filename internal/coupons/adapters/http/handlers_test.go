package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dejobratic/storefront/internal/coupons/adapters/memory"
	"github.com/dejobratic/storefront/internal/coupons/app"
	"github.com/dejobratic/storefront/internal/httpapi"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	svc := app.NewService(memory.NewRepository(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	router := mux.NewRouter()
	NewHandler(svc).Register(httpapi.Routes{Customer: router, Admin: router, Internal: router})
	return router
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func TestCouponLifecycle(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/admin/coupons",
		`{"code":"festive","discount_type":"percentage","value":"10","max_discount":20000}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/v1/coupons/validate", `{"code":"FESTIVE","order_amount":500000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Quote struct {
			Valid    bool  `json:"valid"`
			Discount int64 `json:"discount"`
		} `json:"quote"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Quote.Valid)
	assert.Equal(t, int64(20000), body.Quote.Discount)

	rec = do(t, router, http.MethodDelete, "/v1/admin/coupons/festive", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodPost, "/v1/coupons/validate", `{"code":"FESTIVE","order_amount":500000}`)
	assert.Contains(t, rec.Body.String(), `"reason":"INACTIVE"`)
}

func TestCouponErrors(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "invalid create payload", method: http.MethodPost, path: "/v1/admin/coupons", body: `{"code":"X"}`, want: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, path: "/v1/coupons/validate", body: `{"code":"A","foo":1}`, want: http.StatusBadRequest},
		{name: "missing coupon", method: http.MethodGet, path: "/v1/admin/coupons/NOPE", want: http.StatusNotFound},
		{name: "deactivate missing coupon", method: http.MethodDelete, path: "/v1/admin/coupons/NOPE", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestIssueWelcomeCoupon(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/internal/customers/cust-9/welcome-coupon", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"WELCOME5-`)
	assert.Contains(t, rec.Body.String(), `"max_uses":1`)
}
