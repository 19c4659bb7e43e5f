// Package auth implements the credential and session lifecycle:
// registration with email verification, password login, refresh token
// rotation with family-wide reuse containment, and password reset.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"userservice/internal/domain/models"
	"userservice/internal/lib/secret"
)

type Auth struct {
	logger   *slog.Logger
	users    UserStore
	tokens   TokenStore
	notifier Notifier
	hasher   secret.Hasher
	cfg      Config
}

// Config carries the keys and TTLs injected at construction. There are
// no process-wide defaults; every component gets its copy explicitly.
type Config struct {
	AccessSecret        string
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	VerificationCodeTTL time.Duration
	ResetTokenTTL       time.Duration
	TokenPepper         string
}

type UserStore interface {
	SaveUser(ctx context.Context, user *models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	UserByResetToken(ctx context.Context, email, resetHash string, now time.Time) (*models.User, error)
}

type TokenStore interface {
	SaveToken(ctx context.Context, token *models.RefreshToken) error
	TokenByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	// MarkRotated terminates a token and links its successor. The write is
	// conditional on the record still being unrevoked and unreplaced;
	// storage.ErrTokenNotActive reports a lost race.
	MarkRotated(ctx context.Context, id, replacedByID, ip string, at time.Time) error
	// RevokeFamily revokes every active token in the family. Idempotent.
	RevokeFamily(ctx context.Context, userID, familyID string, reason models.RevokeReason, ip string, at time.Time) error
}

type Notifier interface {
	SendVerificationCode(ctx context.Context, email, code string) error
	SendPasswordReset(ctx context.Context, email, rawToken, callbackURL string) error
}

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailTaken          = errors.New("email already registered")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrAlreadyVerified     = errors.New("user already verified")
	ErrNotVerified         = errors.New("email not verified")
	ErrWrongAuthMethod     = errors.New("account uses an external sign-in provider")
	ErrCodeNotFound        = errors.New("no verification code on file")
	ErrCodeExpired         = errors.New("verification code expired")
	ErrCodeMismatch        = errors.New("verification code mismatch")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// Session is what a caller gets back from any operation that starts or
// continues a session. The refresh token is the raw value, returned
// exactly once and never persisted.
type Session struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
}

// TokenPair is the result of a rotation.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// New returns a new instance of the Auth service.
func New(
	logger *slog.Logger,
	users UserStore,
	tokens TokenStore,
	notifier Notifier,
	cfg Config,
) *Auth {
	return &Auth{
		logger:   logger,
		users:    users,
		tokens:   tokens,
		notifier: notifier,
		hasher:   secret.NewHasher(cfg.TokenPepper),
		cfg:      cfg,
	}
}
