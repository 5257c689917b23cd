package server

import (
	"net/http"

	"github.com/jrsteele09/tutorhub-auth/auth"
	"github.com/jrsteele09/tutorhub-auth/tenants"
)

// ProtectedHandlerFunc is a handler that runs only after the gate admitted the
// request. It must scope all work to ac.Tenant.
type ProtectedHandlerFunc func(w http.ResponseWriter, r *http.Request, ac *auth.AuthorizedContext)

func tenantRequest(r *http.Request, mode tenants.Mode) tenants.Request {
	if mode == tenants.ModeHost {
		return tenants.Request{Mode: tenants.ModeHost, Host: r.Host}
	}
	return tenants.Request{Mode: tenants.ModePath, PathSlug: r.PathValue("tenant")}
}

// RequireRole runs the gate for every request and hands the authorized
// context to handler. A denial is written as a JSON error.
func (s *Server) RequireRole(mode tenants.Mode, roles auth.RoleSet, handler ProtectedHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, err := s.deps.Gate.RequireRole(r.Context(), auth.Request{
			SessionToken: sessionToken(r),
			Tenant:       tenantRequest(r, mode),
		}, roles)
		if err != nil {
			writeError(w, r, err)
			return
		}
		handler(w, r, ac)
	}
}
