package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"userservice/internal/domain/models"
	"userservice/internal/lib/sl"
	"userservice/internal/storage"
)

// Login authenticates by email or username plus password and starts a
// new session. Accounts created through an external provider cannot log
// in with a password, and unverified accounts are rejected before the
// password is even checked.
func (a *Auth) Login(ctx context.Context, identifier, password, ip, userAgent string) (*Session, error) {
	const op = "auth.Login"
	log := a.logger.With(slog.String("op", op))
	log.Info("login request", slog.String("identifier", identifier))

	user, err := a.users.UserByEmail(ctx, identifier)
	if errors.Is(err, storage.ErrUserNotFound) {
		user, err = a.users.UserByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if user.AuthType != models.AuthTypePassword {
		log.Warn("password login on externally-authenticated account")
		return nil, fmt.Errorf("%s: %w", op, ErrWrongAuthMethod)
	}

	if !user.Verified {
		log.Warn("user not verified")
		return nil, fmt.Errorf("%s: %w", op, ErrNotVerified)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Warn("invalid password", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	session, err := a.startSession(ctx, user, ip, userAgent)
	if err != nil {
		log.Error("failed to start session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.String("userID", user.ID))

	return session, nil
}

// IssueSession starts a session for an identity already verified by an
// external provider. The provider handshake itself happens outside this
// service; by the time this runs the callback has yielded a user id.
func (a *Auth) IssueSession(ctx context.Context, userID, ip, userAgent string) (*Session, error) {
	const op = "auth.IssueSession"
	log := a.logger.With(slog.String("op", op), slog.String("userID", userID))
	log.Info("issue session request")

	user, err := a.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	session, err := a.startSession(ctx, user, ip, userAgent)
	if err != nil {
		log.Error("failed to start session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("session issued")

	return session, nil
}
