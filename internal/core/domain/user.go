package domain

import (
	"strings"
	"time"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User models a credential record: identity plus the secret used to prove it.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Active       bool      `json:"is_active"`
	Verified     bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ValidRole reports whether role is one of the roles a user may register with.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}

// IsEmail classifies a login identifier. Anything containing both "@" and "."
// is looked up by email, everything else by username.
func IsEmail(identifier string) bool {
	return strings.Contains(identifier, "@") && strings.Contains(identifier, ".")
}
