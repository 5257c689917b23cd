package server

import (
	"net/http"

	"github.com/jrsteele09/tutorhub-auth/auth"
	"github.com/jrsteele09/tutorhub-auth/tenants"
)

func (s *Server) initRoutes() {
	// PARENT MAGIC LINKS
	s.RegisterRouteHandler("POST "+RouteMagicLinkRequest, ChainMiddleware(s.MagicLinkRequestHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteMagicLinkConsume, ChainMiddleware(s.MagicLinkConsumeHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteParentVerify, ChainMiddleware(s.ParentVerifyHandler(), s.HTMLMiddleWare()...))

	// STAFF
	s.RegisterRouteHandler("POST "+RouteStaffLogin, ChainMiddleware(s.StaffLoginHandler(), s.APIMiddleware()...))
	s.RegisterProtected("POST "+RouteStaffLogout, tenants.ModePath, auth.AnyRole, s.LogoutHandler)
	s.RegisterProtected("GET "+RouteStaffMe, tenants.ModePath, auth.AnyRole, s.MeHandler)

	// SSO
	s.RegisterRouteHandler("GET "+RouteSSOStart, ChainMiddleware(s.SSOStartHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteSSOCallback, ChainMiddleware(s.SSOCallbackHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteSSOCallback, ChainMiddleware(s.SSOCallbackHandler(), s.HTMLMiddleWare()...)) // For form_post response mode

	// AREA CONTEXT
	s.RegisterProtected("GET "+RouteAdminContext, tenants.ModePath, auth.AdminAreaRoles, s.AreaContextHandler("admin"))
	s.RegisterProtected("GET "+RouteTutorContext, tenants.ModePath, auth.TutorAreaRoles, s.AreaContextHandler("tutor"))
	s.RegisterProtected("GET "+RouteParentContext, tenants.ModeHost, auth.ParentRoles, s.AreaContextHandler("parent"))

	// OPS
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	if s.deps.Metrics != nil {
		s.mux.Handle("GET "+RouteMetrics, s.deps.Metrics.Handler())
		s.routes = append(s.routes, "GET "+RouteMetrics)
	}

	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(s.NotFoundHandler(), s.CorsMiddleware))
	s.RegisterRouteFunc("/", s.NotFoundHandler())
}

func (s *Server) NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "not found"})
	}
}
