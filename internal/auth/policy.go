package auth

import (
	"net/http"
	"strings"
)

const apiPrefix = "/api/v1/"

// Policy determines required roles by request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds a default policy with exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt returns true when a request should skip auth/RBAC.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves required role for the request.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	path := r.URL.Path
	method := r.Method
	if !strings.HasPrefix(path, apiPrefix) {
		return "", false
	}
	rest := strings.Trim(strings.TrimPrefix(path, apiPrefix), "/")
	parts := strings.Split(rest, "/")

	switch parts[0] {
	case "payments":
		switch {
		case method == http.MethodDelete:
			return RoleAdmin, true
		case len(parts) == 3 && (parts[2] == "approve" || parts[2] == "reject"):
			return RoleApprover, true
		case method == http.MethodPost:
			return RoleOperator, true
		}
		return RoleViewer, true
	case "charges":
		if len(parts) == 3 && parts[2] == "void" {
			return RoleAdmin, true
		}
		if method == http.MethodGet {
			return RoleViewer, true
		}
		return RoleAdmin, true
	case "reports":
		if isExport(path) {
			return RoleOperator, true
		}
		return RoleViewer, true
	case "reminders":
		return RoleOperator, true
	case "maintenance":
		return RoleAdmin, true
	}

	if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
		return RoleViewer, true
	}
	return RoleOperator, true
}

func isExport(path string) bool {
	return strings.HasSuffix(path, ".csv") || strings.HasSuffix(path, ".xlsx") || strings.HasSuffix(path, ".pdf")
}
