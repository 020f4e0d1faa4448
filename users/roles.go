package users

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the closed set of account roles assigned by the alert service
type Role string

const (
	RoleAdmin     Role = "admin"     // Platform administrators, manage users and configuration
	RoleAuthority Role = "authority" // Disaster management authorities, issue official alerts
	RoleOperator  Role = "operator"  // Emergency operators, triage and verify incident reports
	RoleCitizen   Role = "citizen"   // Members of the public
)

// AllRoles lists every role in privilege order, highest first
var AllRoles = []Role{RoleAdmin, RoleAuthority, RoleOperator, RoleCitizen}

// Default landing routes
const (
	RouteAdminDashboard     = "/admin/dashboard"
	RouteAuthorityDashboard = "/authority/dashboard"
	RouteOperatorDashboard  = "/operator/dashboard"
	RouteCitizenDashboard   = "/dashboard"
)

// landingRoutes is the only role to landing route table in the codebase
var landingRoutes = map[Role]string{
	RoleAdmin:     RouteAdminDashboard,
	RoleAuthority: RouteAuthorityDashboard,
	RoleOperator:  RouteOperatorDashboard,
	RoleCitizen:   RouteCitizenDashboard,
}

// legacy spellings still emitted by older API versions
var roleAliases = map[string]Role{
	"administrator":      RoleAdmin,
	"authorities":        RoleAuthority,
	"responder":          RoleOperator,
	"emergency_operator": RoleOperator,
	"user":               RoleCitizen,
	"citizen_user":       RoleCitizen,
}

// ParseRole normalises a role string. Unknown roles are rejected rather than mapped to a default.
func ParseRole(s string) (Role, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	r := Role(v)
	if r.Valid() {
		return r, nil
	}
	if alias, ok := roleAliases[v]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) Valid() bool {
	_, ok := landingRoutes[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// LandingRoute returns the default dashboard for a role
func LandingRoute(r Role) string {
	if route, ok := landingRoutes[r]; ok {
		return route
	}
	return RouteCitizenDashboard
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
