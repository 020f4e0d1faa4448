// Package permissions maps a user's role and verification state to capabilities.
//
// Every capability is an explicit allow-list of roles. Admin has no implicit
// super-user rights and is listed wherever it participates.
package permissions

import (
	"slices"

	"github.com/jrsteele09/go-alert-web/users"
)

type Capability string

const (
	ViewAlerts         Capability = "viewAlerts"
	ViewSafetyGuides   Capability = "viewSafetyGuides"
	ReportIncidents    Capability = "reportIncidents"
	CreateAlerts       Capability = "createAlerts"
	VerifyIncidents    Capability = "verifyIncidents"
	ManageUsers        Capability = "manageUsers"
	ViewAnalytics      Capability = "viewAnalytics"
	GenerateReports    Capability = "generateReports"
	ManageSafetyGuides Capability = "manageSafetyGuides"
	UseChat            Capability = "useChat"
	ManageProfile      Capability = "manageProfile"
)

type rule struct {
	roles    []users.Role
	public   bool // granted to everyone, signed in or not
	verified bool // additionally requires a verified account
}

var (
	allRoles       = []users.Role{users.RoleAdmin, users.RoleAuthority, users.RoleOperator, users.RoleCitizen}
	authorityRoles = []users.Role{users.RoleAdmin, users.RoleAuthority}
)

var table = map[Capability]rule{
	ViewAlerts:         {public: true},
	ViewSafetyGuides:   {public: true},
	ReportIncidents:    {roles: allRoles, verified: true},
	CreateAlerts:       {roles: authorityRoles, verified: true},
	VerifyIncidents:    {roles: []users.Role{users.RoleAdmin, users.RoleAuthority, users.RoleOperator}},
	ManageUsers:        {roles: []users.Role{users.RoleAdmin}},
	ViewAnalytics:      {roles: authorityRoles},
	GenerateReports:    {roles: authorityRoles},
	ManageSafetyGuides: {roles: authorityRoles},
	UseChat:            {roles: allRoles},
	ManageProfile:      {roles: allRoles},
}

// All returns every capability in a stable order
func All() []Capability {
	out := make([]Capability, 0, len(table))
	for c := range table {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Can reports whether user holds capability c. A nil user is anonymous.
// Unknown capabilities and unknown roles are always denied.
func Can(user *users.User, c Capability) bool {
	r, ok := table[c]
	if !ok {
		return false
	}
	if r.public {
		return true
	}
	if user == nil || !user.Role.Valid() {
		return false
	}
	if r.verified && !user.Verified {
		return false
	}
	return slices.Contains(r.roles, user.Role)
}

// Evaluate computes every capability for user
func Evaluate(user *users.User) map[Capability]bool {
	out := make(map[Capability]bool, len(table))
	for c := range table {
		out[c] = Can(user, c)
	}
	return out
}

// RolesFor returns the roles allowed c. Public capabilities and unknown ones return nil.
func RolesFor(c Capability) []users.Role {
	r, ok := table[c]
	if !ok || r.public {
		return nil
	}
	return slices.Clone(r.roles)
}

func RequiresVerified(c Capability) bool {
	return table[c].verified
}

func IsPublic(c Capability) bool {
	return table[c].public
}
