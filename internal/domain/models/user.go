package models

import "time"

// AuthType tells how an account authenticates.
type AuthType string

const (
	AuthTypePassword AuthType = "password"
	AuthTypeGoogle   AuthType = "google"
)

// Role is the coarse authorization level carried in access tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents an account. PassHash is empty for accounts created
// through an external identity provider.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Username  string
	PassHash  []byte
	AuthType  AuthType
	Role      Role
	Verified  bool

	VerificationCode          string
	VerificationCodeCreatedAt *time.Time

	PasswordResetHash      string
	PasswordResetExpiresAt *time.Time

	CreatedAt time.Time
}
