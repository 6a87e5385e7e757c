package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Middleware validates JWTs, enforces RBAC and keeps callers inside the tenants this
// deployment serves.
type Middleware struct {
	secret  []byte
	policy  Policy
	tenants map[string]bool
	logger  *zap.Logger
}

// MiddlewareOption configures the middleware.
type MiddlewareOption func(*Middleware)

// WithTenants restricts tokens to the given tenants. Empty allows any tenant.
func WithTenants(tenants ...string) MiddlewareOption {
	return func(m *Middleware) {
		for _, tenant := range tenants {
			if tenant = strings.TrimSpace(tenant); tenant != "" {
				m.tenants[tenant] = true
			}
		}
	}
}

// WithDenyLogger logs rejected requests.
func WithDenyLogger(logger *zap.Logger) MiddlewareOption {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = logger.Named("auth")
		}
	}
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{secret: secret, policy: policy, tenants: map[string]bool{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wrap applies auth and RBAC to the handler. The caller's tenant, role and subject are put
// on the request context for TenantOr and SubjectFromContext.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		required, ok := m.policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := ParseJWT(extractBearer(r), m.secret)
		if err != nil {
			m.deny(w, r, http.StatusUnauthorized, "unauthorized", "", "")
			return
		}
		if len(m.tenants) > 0 && !m.tenants[claims.TenantID] {
			m.deny(w, r, http.StatusForbidden, "tenant not served", claims.TenantID, claims.Subject)
			return
		}
		role, _ := NormalizeRole(claims.Role)
		if !RoleAtLeast(role, required) {
			m.deny(w, r, http.StatusForbidden, "forbidden", claims.TenantID, claims.Subject)
			return
		}
		ctx := WithIdentity(r.Context(), claims.TenantID, role, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) deny(w http.ResponseWriter, r *http.Request, status int, reason, tenantID, subject string) {
	m.logger.Info("request denied",
		zap.Int("status", status),
		zap.String("reason", reason),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("tenant_id", tenantID),
		zap.String("subject", subject))
	http.Error(w, reason, status)
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
