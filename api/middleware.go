package api

import (
	"context"
	"net/http"
	"strings"
)

// Headers set by the authentication gateway in front of this service.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderActorID  = "X-Actor-ID"
)

type ctxKey int

const (
	tenantKey ctxKey = iota
	actorKey
)

// RequireTenant rejects requests without a tenant and stores the tenant and
// actor on the request context.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.TrimSpace(r.Header.Get(HeaderTenantID))
		if tenant == "" {
			writeError(w, http.StatusUnauthorized, "Missing tenant", nil)
			return
		}
		actor := strings.TrimSpace(r.Header.Get(HeaderActorID))

		ctx := context.WithValue(r.Context(), tenantKey, tenant)
		ctx = context.WithValue(ctx, actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantFrom returns the tenant stored by RequireTenant.
func TenantFrom(ctx context.Context) string {
	s, _ := ctx.Value(tenantKey).(string)
	return s
}

// ActorFrom returns the acting user stored by RequireTenant, possibly empty.
func ActorFrom(ctx context.Context) string {
	s, _ := ctx.Value(actorKey).(string)
	return s
}
