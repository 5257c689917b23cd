package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Parent magic link routes (tenant from path)
	RouteMagicLinkRequest = "/{tenant}/api/parent-auth/magic-link"
	RouteMagicLinkConsume = "/{tenant}/api/parent-auth/magic-link/consume"
	RouteParentVerify     = "/{tenant}/parent/auth/verify"

	// Staff auth routes
	RouteStaffLogin  = "/{tenant}/api/auth/login"
	RouteStaffLogout = "/{tenant}/api/auth/logout"
	RouteStaffMe     = "/{tenant}/api/auth/me"

	// Staff SSO routes
	RouteSSOStart    = "/{tenant}/auth/sso/start"
	RouteSSOCallback = "/auth/sso/callback"

	// Area context routes
	RouteAdminContext  = "/{tenant}/api/admin/context"
	RouteTutorContext  = "/{tenant}/api/tutor/context"
	RouteParentContext = "/api/parent/context" // Tenant from host

	// Ops
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)

// Tenant-relative landing paths
const (
	pathAdminHome   = "/admin"
	pathParentLogin = "/parent/login"
)
