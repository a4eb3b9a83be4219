package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Purpose distinguishes tokens that share one encoding but must never be
// accepted in place of each other.
type Purpose string

const (
	PurposeAccess        Purpose = "access"
	PurposeEmailVerify   Purpose = "email_verify"
	PurposePasswordReset Purpose = "password_reset"
)

// Claims is the decoded payload of a token issued by the TokenService.
type Claims struct {
	Subject   string
	UserID    string
	Role      string
	Purpose   Purpose
	ExpiresAt time.Time
	IssuedAt  time.Time
	TokenID   string
}

// Remaining returns how long the token stays valid after now. Zero or negative
// means it is already dead.
func (c Claims) Remaining(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

// Denylist markers.
const (
	MarkerRevoked  = "revoked"
	MarkerConsumed = "consumed"
)

// TokenKey derives the denylist key for a token. The raw token never leaves
// the process as a key.
func TokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
