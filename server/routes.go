package server

import (
	"net/http"

	"github.com/jrsteele09/go-alert-web/guard"
	"github.com/jrsteele09/go-alert-web/permissions"
	"github.com/jrsteele09/go-alert-web/users"
)

func (s *Server) initRoutes() {
	// Static assets, no session needed
	s.RegisterRouteHandler("GET /static/", FileServerHandler())
	s.RegisterRouteFunc("GET /favicon.svg", StaticFileHandler("favicon.svg"))

	s.RegisterRouteHandler("GET /{$}", ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare(s.OptionalSession)...))

	// LOGIN
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginPageUIHandler(), s.HTMLMiddleWare(s.OptionalSession)...))
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginSubmissionHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshProfileHandler(), s.HTMLMiddleWare()...))

	// REGISTRATION
	s.RegisterRouteHandler("GET "+RouteRegister, ChainMiddleware(s.RegisterGetHandler(), s.HTMLMiddleWare(s.OptionalSession)...))
	s.RegisterRouteHandler("POST "+RouteAuthRegister, ChainMiddleware(s.RegisterPostHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteAPIValidatePassword, ChainMiddleware(s.ValidatePasswordHandler(), s.HTMLMiddleWare()...))

	// Dashboards (one per role, each only for its own role)
	s.RegisterRouteHandler("GET "+RouteDashboard, ChainMiddleware(s.DashboardHandler("Citizen dashboard"), s.HTMLMiddleWare(s.RequireAccess(guard.Roles(users.RoleCitizen)))...))
	s.RegisterRouteHandler("GET "+RouteOperatorDashboard, ChainMiddleware(s.DashboardHandler("Operator console"), s.HTMLMiddleWare(s.RequireAccess(guard.Roles(users.RoleOperator)))...))
	s.RegisterRouteHandler("GET "+RouteAuthorityDashboard, ChainMiddleware(s.DashboardHandler("Authority dashboard"), s.HTMLMiddleWare(s.RequireAccess(guard.Roles(users.RoleAuthority)))...))
	s.RegisterRouteHandler("GET "+RouteAdminDashboard, ChainMiddleware(s.DashboardHandler("Administration"), s.HTMLMiddleWare(s.RequireAccess(guard.Roles(users.RoleAdmin)))...))

	// Feature pages
	s.RegisterRouteHandler("GET "+RouteAlerts, ChainMiddleware(s.FeaturePageHandler("Active alerts"), s.HTMLMiddleWare(s.OptionalSession)...))
	s.RegisterRouteHandler("GET "+RouteAlertsNew, ChainMiddleware(s.FeaturePageHandler("Issue an alert"), s.HTMLMiddleWare(s.RequireAccess(guard.ForCapability(permissions.CreateAlerts)))...))
	s.RegisterRouteHandler("GET "+RouteIncidentsReport, ChainMiddleware(s.FeaturePageHandler("Report an incident"), s.HTMLMiddleWare(s.RequireAccess(guard.ForCapability(permissions.ReportIncidents)))...))
	s.RegisterRouteHandler("GET "+RouteIncidentsVerify, ChainMiddleware(s.FeaturePageHandler("Verify incidents"), s.HTMLMiddleWare(s.RequireAccess(guard.ForCapability(permissions.VerifyIncidents)))...))
	s.RegisterRouteHandler("GET "+RouteAnalytics, ChainMiddleware(s.FeaturePageHandler("Analytics"), s.HTMLMiddleWare(s.RequireAccess(guard.ForCapability(permissions.ViewAnalytics)))...))
	s.RegisterRouteHandler("GET "+RouteAdminUsers, ChainMiddleware(s.FeaturePageHandler("Manage users"), s.HTMLMiddleWare(s.RequireAccess(guard.ForCapability(permissions.ManageUsers)))...))

	// Profile
	s.RegisterRouteHandler("GET "+RouteProfile, ChainMiddleware(s.ProfileGetHandler(), s.HTMLMiddleWare(s.RequireAccess(guard.ForCapability(permissions.ManageProfile)))...))
	s.RegisterRouteHandler("POST "+RouteProfile, ChainMiddleware(s.ProfilePostHandler(), s.HTMLMiddleWare(s.RequireAccess(guard.ForCapability(permissions.ManageProfile)))...))

	// JSON API for scripts on other origins
	s.RegisterRouteHandler("GET "+RouteAPISession, ChainMiddleware(s.SessionStatusHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPICapabilities, ChainMiddleware(s.CapabilitiesHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {}, s.APIMiddleware()...))
}
