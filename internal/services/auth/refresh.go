package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"userservice/internal/domain/models"
	"userservice/internal/lib/jwt"
	"userservice/internal/lib/secret"
	"userservice/internal/lib/sl"
	"userservice/internal/storage"
)

// Refresh rotates a refresh token: the presented token is terminated,
// a successor is issued in the same family and a fresh access token is
// minted.
//
// Presenting a token that was already rotated or revoked is treated as
// reuse: only an attacker holding a stale copy (or a revocation that
// already fired) can produce it, so the whole family is revoked before
// the call fails. Expired and unknown tokens fail identically so the
// caller cannot probe which it was.
func (a *Auth) Refresh(ctx context.Context, rawToken, ip, userAgent string) (*TokenPair, error) {
	const op = "auth.Refresh"
	log := a.logger.With(slog.String("op", op))
	log.Info("refresh request")

	current, err := a.tokens.TokenByHash(ctx, a.hasher.Sum(rawToken))
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			log.Warn("refresh token not found")
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
		}
		log.Error("failed to get refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(slog.String("familyID", current.FamilyID))
	now := time.Now()

	if current.Expired(now) {
		log.Warn("refresh token expired")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
	}

	if current.RevokedAt != nil || current.ReplacedByID != "" {
		// Reuse of a terminal token. Burn the rest of the family: the
		// attacker may also hold the tokens that descended from this one.
		log.Warn("refresh token reuse detected, revoking family",
			slog.String("userID", current.UserID))
		if err := a.tokens.RevokeFamily(ctx, current.UserID, current.FamilyID,
			models.RevokeReasonReuseDetected, ip, now); err != nil {
			log.Error("failed to revoke family", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
	}

	user, err := a.users.UserByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("token owner no longer exists, revoking family")
			if revErr := a.tokens.RevokeFamily(ctx, current.UserID, current.FamilyID,
				models.RevokeReasonUserNotFound, ip, now); revErr != nil {
				log.Error("failed to revoke family", sl.Err(revErr))
				return nil, fmt.Errorf("%s: %w", op, revErr)
			}
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	nextRaw, err := secret.NewToken()
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	next := &models.RefreshToken{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		FamilyID:    current.FamilyID,
		TokenHash:   a.hasher.Sum(nextRaw),
		CreatedByIP: ip,
		UserAgent:   userAgent,
		CreatedAt:   now,
		ExpiresAt:   now.Add(a.cfg.RefreshTokenTTL),
	}

	// The successor is written before the presented token is marked
	// rotated. A crash in between leaves an extra active record in the
	// family; the first reuse of the stale token burns the whole family,
	// orphan included.
	if err := a.tokens.SaveToken(ctx, next); err != nil {
		log.Error("failed to save refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.tokens.MarkRotated(ctx, current.ID, next.ID, ip, now); err != nil {
		if errors.Is(err, storage.ErrTokenNotActive) {
			// A concurrent rotation of the same token won the conditional
			// update. That is the reuse race: at most one caller may win,
			// and the family is burned for everyone.
			log.Warn("lost rotation race, revoking family",
				slog.String("userID", current.UserID))
			if revErr := a.tokens.RevokeFamily(ctx, current.UserID, current.FamilyID,
				models.RevokeReasonReuseDetected, ip, now); revErr != nil {
				log.Error("failed to revoke family", sl.Err(revErr))
				return nil, fmt.Errorf("%s: %w", op, revErr)
			}
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
		}
		log.Error("failed to mark token rotated", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	accessToken, err := jwt.NewToken(user, a.cfg.AccessSecret, a.cfg.AccessTokenTTL)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("tokens refreshed", slog.String("userID", user.ID))

	return &TokenPair{AccessToken: accessToken, RefreshToken: nextRaw}, nil
}

// Logout revokes the whole family of the presented token. An unknown
// token is treated as already logged out: a missing or garbled cookie
// should never block sign-out.
func (a *Auth) Logout(ctx context.Context, rawToken, ip string) error {
	const op = "auth.Logout"
	log := a.logger.With(slog.String("op", op))
	log.Info("logout request")

	token, err := a.tokens.TokenByHash(ctx, a.hasher.Sum(rawToken))
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			log.Info("refresh token not found, nothing to revoke")
			return nil
		}
		log.Error("failed to get refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.tokens.RevokeFamily(ctx, token.UserID, token.FamilyID,
		models.RevokeReasonLogout, ip, time.Now()); err != nil {
		log.Error("failed to revoke family", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged out",
		slog.String("userID", token.UserID),
		slog.String("familyID", token.FamilyID))

	return nil
}

// issueRefreshToken starts a new token family and returns the raw
// secret. Only the keyed hash is stored.
func (a *Auth) issueRefreshToken(ctx context.Context, userID, ip, userAgent string) (string, error) {
	rawToken, err := secret.NewToken()
	if err != nil {
		return "", err
	}

	now := time.Now()
	token := &models.RefreshToken{
		ID:          uuid.NewString(),
		UserID:      userID,
		FamilyID:    uuid.NewString(),
		TokenHash:   a.hasher.Sum(rawToken),
		CreatedByIP: ip,
		UserAgent:   userAgent,
		CreatedAt:   now,
		ExpiresAt:   now.Add(a.cfg.RefreshTokenTTL),
	}

	if err := a.tokens.SaveToken(ctx, token); err != nil {
		return "", err
	}

	return rawToken, nil
}
