package models

import "time"

// RevokeReason explains why a refresh token was terminated.
type RevokeReason string

const (
	RevokeReasonRotated       RevokeReason = "ROTATED"
	RevokeReasonLogout        RevokeReason = "LOGOUT"
	RevokeReasonReuseDetected RevokeReason = "REUSE_DETECTED"
	RevokeReasonUserNotFound  RevokeReason = "USER_NOT_FOUND"
)

// RefreshToken represents a refresh token stored in the database.
// Everything except the revoke/replace fields is immutable after creation;
// those are set exactly once, together, and never unset.
type RefreshToken struct {
	ID           string
	UserID       string
	FamilyID     string
	TokenHash    string
	CreatedByIP  string
	UserAgent    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	RevokedByIP  string
	RevokeReason RevokeReason
	ReplacedByID string
}

// Expired reports whether the token's lifetime has elapsed.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Active reports whether the token can still be rotated: not revoked,
// not superseded and not expired.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && t.ReplacedByID == "" && !t.Expired(now)
}
