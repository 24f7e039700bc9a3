package shared

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

const (
	// HeaderOrgID carries the tenant resolved by the gateway.
	HeaderOrgID = "X-Org-ID"
	// HeaderUserID carries the acting user.
	HeaderUserID = "X-User-ID"
)

// ErrTenantMissing indicates a request without a resolvable organization.
var ErrTenantMissing = errors.New("organization id missing or invalid")

// Tenant identifies the organization and actor of a request.
type Tenant struct {
	OrgID  uuid.UUID
	UserID uuid.UUID
}

type tenantContextKey struct{}

// ContextWithTenant stores the tenant in context.
func ContextWithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// TenantFromContext extracts the tenant from context.
func TenantFromContext(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(tenantContextKey{}).(Tenant)
	return t, ok && t.OrgID != uuid.Nil
}

// TenantMiddleware resolves the tenant from request headers. Authentication
// happens upstream; requests without a valid org id are rejected.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID, err := uuid.Parse(r.Header.Get(HeaderOrgID))
		if err != nil || orgID == uuid.Nil {
			http.Error(w, ErrTenantMissing.Error(), http.StatusUnauthorized)
			return
		}
		tenant := Tenant{OrgID: orgID}
		if userID, err := uuid.Parse(r.Header.Get(HeaderUserID)); err == nil {
			tenant.UserID = userID
		}
		next.ServeHTTP(w, r.WithContext(ContextWithTenant(r.Context(), tenant)))
	})
}
