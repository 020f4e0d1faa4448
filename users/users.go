package users

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// NotificationPreferences controls how alerts reach the user
type NotificationPreferences struct {
	Email       bool   `json:"email"`
	SMS         bool   `json:"sms"`
	Push        bool   `json:"push"`
	MinSeverity string `json:"minSeverity,omitempty"` // low, moderate, severe, extreme
}

// Location is the user's last shared position, used for proximity alerts
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type User struct {
	ID                      string                  `json:"id"`                      // Unique identifier for the user
	Username                string                  `json:"username"`                // Unique username
	Email                   string                  `json:"email"`                   // User's email address
	Role                    Role                    `json:"role"`                    // Server assigned role, display and gating data only
	Verified                bool                    `json:"verified"`                // Verified, cleared server-side by an administrator
	District                string                  `json:"district,omitempty"`      // Home district for regional alerts
	NotificationPreferences NotificationPreferences `json:"notificationPreferences"` // Alert delivery channels
	Location                *Location               `json:"location,omitempty"`      // Optional last known location
	PasswordHash            string                  `json:"-"`                       // Hashed password - never serialize
	Blocked                 bool                    `json:"-"`                       // Blocked from logging in
}

// Clone returns a deep copy so callers can never mutate session state through a snapshot
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Location != nil {
		loc := *u.Location
		c.Location = &loc
	}
	return &c
}

// DisplayName is the name shown in page headers
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// SameIdentity reports whether other is the same account with the same role
func (u *User) SameIdentity(other *User) bool {
	if u == nil || other == nil {
		return false
	}
	return u.ID == other.ID && u.Role == other.Role
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

// ValidateUsername accepts 3 to 32 letters, digits, dots, dashes and underscores
func ValidateUsername(username string) error {
	if len(username) < 3 || len(username) > 32 {
		return fmt.Errorf("username must be between 3 and 32 characters")
	}
	for _, char := range username {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && !strings.ContainsRune("._-", char) {
			return fmt.Errorf("username may only contain letters, numbers, dots, dashes and underscores")
		}
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
