package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"userservice/internal/domain/models"
	"userservice/internal/lib/jwt"
	"userservice/internal/lib/secret"
	"userservice/internal/lib/sl"
	"userservice/internal/storage"
)

// RegisterInput is the validated registration payload.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Username  string
	Password  string
}

type RegisterStatus string

const (
	RegisterStatusCreated RegisterStatus = "created"
	RegisterStatusResent  RegisterStatus = "resent"
)

type RegisterResult struct {
	Status RegisterStatus
	UserID string
}

// Register creates an unverified account and emails a verification
// code. Registering an email that already exists unverified resends a
// fresh code instead of failing, so an abandoned signup can be resumed.
func (a *Auth) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	const op = "auth.Register"
	log := a.logger.With(slog.String("op", op), slog.String("email", input.Email))
	log.Info("register request")

	byEmail, err := a.users.UserByEmail(ctx, input.Email)
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		log.Error("failed to look up email", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if byEmail != nil && byEmail.Verified {
		log.Warn("email already registered")
		return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}

	byUsername, err := a.users.UserByUsername(ctx, input.Username)
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		log.Error("failed to look up username", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if byUsername != nil && byUsername.Verified {
		log.Warn("username already taken")
		return nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
	}

	code, err := secret.NewVerificationCode()
	if err != nil {
		log.Error("failed to generate verification code", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := time.Now()

	// Email exists but is not verified: resend a fresh code.
	if byEmail != nil {
		byEmail.VerificationCode = code
		byEmail.VerificationCodeCreatedAt = &now
		if err := a.users.UpdateUser(ctx, byEmail); err != nil {
			log.Error("failed to update verification code", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.sendVerificationCode(ctx, log, byEmail.Email, code)
		log.Info("verification code resent", slog.String("userID", byEmail.ID))
		return &RegisterResult{Status: RegisterStatusResent, UserID: byEmail.ID}, nil
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{
		ID:                        uuid.NewString(),
		FirstName:                 input.FirstName,
		LastName:                  input.LastName,
		Email:                     input.Email,
		Username:                  input.Username,
		PassHash:                  passHash,
		AuthType:                  models.AuthTypePassword,
		Role:                      models.RoleUser,
		Verified:                  false,
		VerificationCode:          code,
		VerificationCodeCreatedAt: &now,
		CreatedAt:                 now,
	}

	if err := a.users.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			log.Warn("user already exists", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}
		log.Error("failed to save user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a.sendVerificationCode(ctx, log, user.Email, code)

	log.Info("user registered", slog.String("userID", user.ID))

	return &RegisterResult{Status: RegisterStatusCreated, UserID: user.ID}, nil
}

// VerifyEmail checks the submitted code, marks the account verified and
// starts the first session. The stored code is single use.
func (a *Auth) VerifyEmail(ctx context.Context, userID, code, ip, userAgent string) (*Session, error) {
	const op = "auth.VerifyEmail"
	log := a.logger.With(slog.String("op", op), slog.String("userID", userID))
	log.Info("verify email request")

	user, err := a.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if user.Verified {
		log.Warn("user already verified")
		return nil, fmt.Errorf("%s: %w", op, ErrAlreadyVerified)
	}

	if user.VerificationCode == "" || user.VerificationCodeCreatedAt == nil {
		log.Warn("no verification code on file")
		return nil, fmt.Errorf("%s: %w", op, ErrCodeNotFound)
	}

	if time.Since(*user.VerificationCodeCreatedAt) > a.cfg.VerificationCodeTTL {
		log.Warn("verification code expired")
		return nil, fmt.Errorf("%s: %w", op, ErrCodeExpired)
	}

	if subtle.ConstantTimeCompare([]byte(user.VerificationCode), []byte(code)) != 1 {
		log.Warn("verification code mismatch")
		return nil, fmt.Errorf("%s: %w", op, ErrCodeMismatch)
	}

	user.Verified = true
	user.VerificationCode = ""
	user.VerificationCodeCreatedAt = nil

	if err := a.users.UpdateUser(ctx, user); err != nil {
		log.Error("failed to save user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	session, err := a.startSession(ctx, user, ip, userAgent)
	if err != nil {
		log.Error("failed to start session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("email verified")

	return session, nil
}

// ResendVerification generates a new code for an unverified account,
// overwriting any previous one.
func (a *Auth) ResendVerification(ctx context.Context, email string) error {
	const op = "auth.ResendVerification"
	log := a.logger.With(slog.String("op", op), slog.String("email", email))
	log.Info("resend verification request")

	user, err := a.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if user.Verified {
		log.Warn("user already verified")
		return fmt.Errorf("%s: %w", op, ErrAlreadyVerified)
	}

	code, err := secret.NewVerificationCode()
	if err != nil {
		log.Error("failed to generate verification code", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	now := time.Now()

	user.VerificationCode = code
	user.VerificationCodeCreatedAt = &now

	if err := a.users.UpdateUser(ctx, user); err != nil {
		log.Error("failed to update verification code", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	a.sendVerificationCode(ctx, log, user.Email, code)

	log.Info("verification code resent")

	return nil
}

// sendVerificationCode delivers the code email. Delivery is
// fire-and-forget: a failed send never rolls back the stored code.
func (a *Auth) sendVerificationCode(ctx context.Context, log *slog.Logger, email, code string) {
	if err := a.notifier.SendVerificationCode(ctx, email, code); err != nil {
		log.Warn("failed to send verification code email", sl.Err(err))
	}
}

// startSession mints an access token and a refresh token in a fresh
// family. Called once per login, verification or provider callback,
// never per rotation.
func (a *Auth) startSession(ctx context.Context, user *models.User, ip, userAgent string) (*Session, error) {
	accessToken, err := jwt.NewToken(user, a.cfg.AccessSecret, a.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	refreshToken, err := a.issueRefreshToken(ctx, user.ID, ip, userAgent)
	if err != nil {
		return nil, err
	}

	return &Session{User: user, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
