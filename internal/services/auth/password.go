package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"userservice/internal/lib/secret"
	"userservice/internal/lib/sl"
	"userservice/internal/storage"
)

// ForgotPassword stores a single-use reset secret and emails the raw
// token. It never reports whether the email exists: unknown or
// unverified accounts return success without issuing anything, so the
// endpoint cannot be used to enumerate accounts.
func (a *Auth) ForgotPassword(ctx context.Context, email, callbackURL string) error {
	const op = "auth.ForgotPassword"
	log := a.logger.With(slog.String("op", op), slog.String("email", email))
	log.Info("forgot password request")

	user, err := a.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("user not found, skipping")
			return nil
		}
		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if !user.Verified {
		log.Info("user not verified, skipping")
		return nil
	}

	rawToken, err := secret.NewToken()
	if err != nil {
		log.Error("failed to generate reset token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	expiresAt := time.Now().Add(a.cfg.ResetTokenTTL)
	user.PasswordResetHash = a.hasher.Sum(rawToken)
	user.PasswordResetExpiresAt = &expiresAt

	if err := a.users.UpdateUser(ctx, user); err != nil {
		log.Error("failed to save reset token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.notifier.SendPasswordReset(ctx, user.Email, rawToken, callbackURL); err != nil {
		log.Warn("failed to send password reset email", sl.Err(err))
	}

	log.Info("password reset token issued")

	return nil
}

// ResetPassword burns the reset secret and sets the new password. The
// lookup matches email, digest and expiry together, and any mismatch
// collapses into the same not-found failure. Secret clearing and the
// password change land in one user update, so a replayable token can
// never survive a successful password change.
func (a *Auth) ResetPassword(ctx context.Context, email, rawToken, newPassword string) error {
	const op = "auth.ResetPassword"
	log := a.logger.With(slog.String("op", op), slog.String("email", email))
	log.Info("reset password request")

	user, err := a.users.UserByResetToken(ctx, email, a.hasher.Sum(rawToken), time.Now())
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("no matching reset token")
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to look up reset token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	user.PassHash = passHash
	user.PasswordResetHash = ""
	user.PasswordResetExpiresAt = nil

	if err := a.users.UpdateUser(ctx, user); err != nil {
		log.Error("failed to save user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password reset", slog.String("userID", user.ID))

	return nil
}
