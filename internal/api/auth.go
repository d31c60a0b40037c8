package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/AaronLay10/SentientTimeline/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// Credentials holds basic auth users for the mutating endpoints.
type Credentials struct {
	AdminUser    string
	AdminPass    string
	OperatorUser string
	OperatorPass string
}

// LoadCredentials reads credentials from the environment. Each variable
// supports the *_FILE convention.
func LoadCredentials() (Credentials, error) {
	var c Credentials
	for _, v := range []struct {
		key string
		dst *string
	}{
		{"SENTIENT_ADMIN_USER", &c.AdminUser},
		{"SENTIENT_ADMIN_PASS", &c.AdminPass},
		{"SENTIENT_OPERATOR_USER", &c.OperatorUser},
		{"SENTIENT_OPERATOR_PASS", &c.OperatorPass},
	} {
		val, err := config.ResolveSecret(v.key)
		if err != nil {
			return Credentials{}, fmt.Errorf("failed to resolve %s: %w", v.key, err)
		}
		*v.dst = val
	}
	return c, nil
}

// Enabled reports whether auth is configured. Auth is enabled only if
// admin credentials are set; otherwise every request is treated as admin.
func (c Credentials) Enabled() bool {
	return c.AdminUser != "" && c.AdminPass != ""
}

// authenticate checks basic auth credentials and returns the role if valid.
// Returns empty string if credentials are invalid.
func (c Credentials) authenticate(r *http.Request) Role {
	if !c.Enabled() {
		return RoleAdmin
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}

	if secureCompare(user, c.AdminUser) && secureCompare(pass, c.AdminPass) {
		return RoleAdmin
	}

	if c.OperatorUser != "" && c.OperatorPass != "" {
		if secureCompare(user, c.OperatorUser) && secureCompare(pass, c.OperatorPass) {
			return RoleOperator
		}
	}

	return ""
}

// secureCompare performs constant-time string comparison.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requireAuth returns 401 Unauthorized with WWW-Authenticate header.
func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Sentient Timeline"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireRole wraps a handler and requires one of the specified roles.
func (c Credentials) RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := c.authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// RequireAnyRole wraps a handler requiring admin OR operator role.
func (c Credentials) RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return c.RequireRole(handler, RoleAdmin, RoleOperator)
}

// RequireAdmin wraps a handler requiring admin role only.
func (c Credentials) RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return c.RequireRole(handler, RoleAdmin)
}
