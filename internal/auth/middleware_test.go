package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	billing "jpusap-cobranzas/internal/billing/domain"
)

func TestAuthMiddleware_NoToken(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ExemptPath(t *testing.T) {
	mw := NewMiddleware([]byte("test-secret"), NewDefaultPolicy([]string{"/healthz"}, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAuthMiddleware_RoleMatrix(t *testing.T) {
	secret := []byte("test-secret")
	cases := []struct {
		name   string
		role   string
		method string
		path   string
		want   int
	}{
		{"viewer reads debt", "viewer", http.MethodGet, "/api/v1/members/m-1/debt", http.StatusOK},
		{"viewer cannot register payment", "viewer", http.MethodPost, "/api/v1/payments", http.StatusForbidden},
		{"operator registers payment", "operator", http.MethodPost, "/api/v1/payments", http.StatusOK},
		{"operator cannot approve", "operator", http.MethodPost, "/api/v1/payments/p-1/approve", http.StatusForbidden},
		{"approver approves", "approver", http.MethodPost, "/api/v1/payments/p-1/approve", http.StatusOK},
		{"approver rejects", "approver", http.MethodPost, "/api/v1/payments/p-1/reject", http.StatusOK},
		{"approver cannot delete", "approver", http.MethodDelete, "/api/v1/payments/p-1", http.StatusForbidden},
		{"admin deletes", "admin", http.MethodDelete, "/api/v1/payments/p-1", http.StatusOK},
		{"operator cannot void charge", "operator", http.MethodPost, "/api/v1/charges/c-1/void", http.StatusForbidden},
		{"viewer cannot export", "viewer", http.MethodGet, "/api/v1/reports/debtors.xlsx", http.StatusForbidden},
		{"viewer reads report", "viewer", http.MethodGet, "/api/v1/reports/debtors", http.StatusOK},
		{"operator exports", "operator", http.MethodGet, "/api/v1/reports/debtors.pdf", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotTenant string
			mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
			handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotTenant = TenantIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "tenant-a", tc.role))
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.Code)
			}
			if tc.want == http.StatusOK && gotTenant != "tenant-a" {
				t.Fatalf("expected tenant in context, got %q", gotTenant)
			}
		})
	}
}

func TestAuthMiddleware_TenantScope(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil), WithTenants("tenant-a", " "), WithDenyLogger(nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for tenant, want := range map[string]int{"tenant-a": http.StatusOK, "tenant-b": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/members/m-1/debt", nil)
		req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, tenant, "viewer"))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != want {
			t.Fatalf("%s: expected %d, got %d", tenant, want, resp.Code)
		}
	}
}

func TestIssueJWT_RoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueJWT(secret, "tenant-a", RoleApprover, "user-9", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ParseJWT(token, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.TenantID != "tenant-a" || claims.Role != "approver" || claims.Subject != "user-9" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := ParseJWT(token, []byte("other")); err == nil {
		t.Fatalf("expected signature error")
	}
	if _, err := IssueJWT(secret, "tenant-a", Role("root"), "u", time.Hour); err == nil {
		t.Fatalf("expected invalid role error")
	}
}

type stubMembers map[string]*billing.Member

func (s stubMembers) Get(_ context.Context, id string) (*billing.Member, error) {
	return s[id], nil
}

func TestMemberChecker(t *testing.T) {
	checker := NewMemberChecker(stubMembers{
		"m-1": {ID: "m-1", TenantID: "tenant-a"},
	})
	ctx := context.Background()
	if err := checker.EnsureMemberTenant(ctx, "tenant-a", "m-1"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := checker.EnsureMemberTenant(ctx, "tenant-b", "m-1"); err != ErrTenantMismatch {
		t.Fatalf("expected tenant mismatch, got %v", err)
	}
	if err := checker.EnsureMemberTenant(ctx, "tenant-a", "m-404"); err != ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func mustToken(t *testing.T, secret []byte, tenantID, role string) string {
	t.Helper()
	claims := Claims{
		TenantID: tenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
