package mockapi

import (
	"fmt"

	"github.com/jrsteele09/go-alert-web/users"
)

// SeedAccount describes a development account created by Seed
type SeedAccount struct {
	ID       string
	Username string
	Role     users.Role
	Verified bool
	Blocked  bool
	District string
}

// SeedAccounts covers every role plus an unverified and a blocked citizen
var SeedAccounts = []SeedAccount{
	{ID: "user-admin", Username: "admin", Role: users.RoleAdmin, Verified: true},
	{ID: "user-authority", Username: "authority", Role: users.RoleAuthority, Verified: true, District: "central"},
	{ID: "user-operator", Username: "operator", Role: users.RoleOperator, Verified: true, District: "central"},
	{ID: "user-citizen", Username: "citizen", Role: users.RoleCitizen, Verified: true, District: "north"},
	{ID: "user-pending", Username: "pending", Role: users.RoleCitizen, Verified: false, District: "south"},
	{ID: "user-blocked", Username: "blocked", Role: users.RoleCitizen, Verified: true, Blocked: true},
}

// Seed creates the development accounts, all sharing password
func Seed(repo users.UserRepo, password string) error {
	hash, err := users.HashPassword(password)
	if err != nil {
		return fmt.Errorf("[mockapi Seed] hash password: %w", err)
	}
	for _, a := range SeedAccounts {
		u := &users.User{
			ID:           a.ID,
			Username:     a.Username,
			Email:        a.Username + "@alerts.example.org",
			Role:         a.Role,
			Verified:     a.Verified,
			Blocked:      a.Blocked,
			District:     a.District,
			PasswordHash: hash,
			NotificationPreferences: users.NotificationPreferences{
				Email:       true,
				Push:        true,
				MinSeverity: "moderate",
			},
		}
		if err := repo.Upsert(u); err != nil {
			return fmt.Errorf("[mockapi Seed] %s: %w", a.Username, err)
		}
	}
	return nil
}
