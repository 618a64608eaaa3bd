package tenant

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-crm/internal/platform/httpx"
)

type ctxKey struct{}

// WithScope stores scope in ctx.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, ctxKey{}, scope)
}

// FromContext returns the scope stored by FromPath, if any.
func FromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(ctxKey{}).(Scope)
	return scope, ok && scope > 0
}

// FromPath parses the chi URL parameter named param into the request
// context and rejects requests without a valid scope.
func FromPath(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, err := Parse(chi.URLParam(r, param))
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Invalid Tenant", err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), scope)))
		})
	}
}
