package server

import "github.com/jrsteele09/go-alert-web/users"

// Route path constants
const (
	// Auth Routes - Login & Logout
	RouteLogin       = "/login"
	RouteAuthLogin   = "/auth/login"
	RouteAuthLogout  = "/auth/logout"
	RouteAuthRefresh = "/auth/refresh"

	// Auth Routes - Registration
	RouteRegister     = "/register"
	RouteAuthRegister = "/auth/register"

	// Dashboards, one per role
	RouteDashboard          = users.RouteCitizenDashboard
	RouteAuthorityDashboard = users.RouteAuthorityDashboard
	RouteOperatorDashboard  = users.RouteOperatorDashboard
	RouteAdminDashboard     = users.RouteAdminDashboard

	// Feature pages
	RouteAlerts          = "/alerts"
	RouteAlertsNew       = "/alerts/new"
	RouteIncidentsReport = "/incidents/report"
	RouteIncidentsVerify = "/incidents/verify"
	RouteAnalytics       = "/analytics"
	RouteAdminUsers      = "/admin/users"
	RouteProfile         = "/profile"

	// API Routes
	RouteAPISession          = "/api/session"
	RouteAPICapabilities     = "/api/capabilities"
	RouteAPIValidatePassword = "/api/validate-password"
)
