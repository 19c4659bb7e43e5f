package storage

import "errors"

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrTokenNotFound     = errors.New("refresh token not found")
	// ErrTokenNotActive is returned by conditional token updates when the
	// record was revoked or replaced between lookup and write.
	ErrTokenNotActive = errors.New("refresh token no longer active")
)
