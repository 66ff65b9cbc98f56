package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthenticator() *Authenticator {
	return NewAuthenticator("test-secret", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParseToken(t *testing.T) {
	a := newAuthenticator()

	t.Run("round trips subject and role", func(t *testing.T) {
		token, err := a.IssueToken("cust-1", RoleAdmin, time.Minute)
		require.NoError(t, err)

		id, err := a.ParseToken(token)
		require.NoError(t, err)
		assert.Equal(t, Identity{CustomerID: "cust-1", Role: RoleAdmin}, id)
		assert.True(t, id.IsAdmin())
	})

	t.Run("defaults the role to customer", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "cust-2",
			"exp": time.Now().Add(time.Minute).Unix(),
		})
		raw, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)

		id, err := a.ParseToken(raw)
		require.NoError(t, err)
		assert.Equal(t, RoleCustomer, id.Role)
	})

	t.Run("rejects expired tokens", func(t *testing.T) {
		token, err := a.IssueToken("cust-1", RoleCustomer, -time.Minute)
		require.NoError(t, err)

		_, err = a.ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects tokens signed with another secret", func(t *testing.T) {
		other := NewAuthenticator("other", slog.New(slog.NewTextHandler(io.Discard, nil)))
		token, err := other.IssueToken("cust-1", RoleCustomer, time.Minute)
		require.NoError(t, err)

		_, err = a.ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestMiddleware(t *testing.T) {
	a := newAuthenticator()

	router := mux.NewRouter()
	router.Use(a.Middleware())
	router.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		id, _ := FromContext(r.Context())
		_, _ = io.WriteString(w, id.CustomerID)
	})
	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(RequireRole(RoleAdmin))
	admin.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	customerToken, err := a.IssueToken("cust-1", RoleCustomer, time.Minute)
	require.NoError(t, err)
	adminToken, err := a.IssueToken("ops", RoleAdmin, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "missing header", path: "/me", want: http.StatusUnauthorized},
		{name: "wrong scheme", path: "/me", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "garbage token", path: "/me", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "customer", path: "/me", header: "Bearer " + customerToken, want: http.StatusOK},
		{name: "customer on admin route", path: "/admin/ping", header: "Bearer " + customerToken, want: http.StatusForbidden},
		{name: "admin on admin route", path: "/admin/ping", header: "Bearer " + adminToken, want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
