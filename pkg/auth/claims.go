package auth

import "errors"

var (
	// ErrInvalidToken is returned for malformed or forged tokens
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned once a token's exp claim has passed
	ErrExpiredToken = errors.New("token expired")
)

// Role is the authorization role carried in a token
type Role string

const (
	RoleUser   Role = "user"
	RoleExpert Role = "expert"
	RoleAdmin  Role = "admin"
)

// Claims identifies the caller of an API request
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role,omitempty"`
}

// HasRole reports whether the caller holds role. Admins hold every role.
func (c *Claims) HasRole(role Role) bool {
	if c == nil {
		return false
	}
	if c.Role == RoleAdmin {
		return true
	}
	if c.Role == "" {
		return role == RoleUser
	}
	return c.Role == role
}
