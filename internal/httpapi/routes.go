package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// Routes groups the subrouters each bounded context registers on. Handlers
// register full paths on them.
type Routes struct {
	// Customer routes act on behalf of the authenticated customer.
	Customer *mux.Router
	// Admin routes require the admin role.
	Admin *mux.Router
	// Internal routes are called by other services.
	Internal *mux.Router
}

// NewRoutes splits root into the three groups by path prefix. authenticate
// runs on every group; admin and internal are the role checks of their
// groups. The admin and internal groups are matched before the customer one.
func NewRoutes(root *mux.Router, authenticate, admin, internal mux.MiddlewareFunc) Routes {
	adminRouter := root.MatcherFunc(hasPrefix("/v1/admin/")).Subrouter()
	adminRouter.Use(authenticate, admin)

	internalRouter := root.MatcherFunc(hasPrefix("/v1/internal/")).Subrouter()
	internalRouter.Use(authenticate, internal)

	customerRouter := root.MatcherFunc(hasPrefix("/v1/")).Subrouter()
	customerRouter.Use(authenticate)

	return Routes{Customer: customerRouter, Admin: adminRouter, Internal: internalRouter}
}

func hasPrefix(prefix string) mux.MatcherFunc {
	return func(r *http.Request, _ *mux.RouteMatch) bool {
		return strings.HasPrefix(r.URL.Path, prefix)
	}
}
