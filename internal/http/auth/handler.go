// Package auth is the HTTP adapter for the auth service: route wiring,
// request binding and the error-to-status mapping. All session and
// credential semantics live in internal/services/auth.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"userservice/internal/domain/models"
	"userservice/internal/services/auth"
)

const refreshCookieName = "refresh_token"

// refresh tokens ride an HttpOnly cookie scoped to the auth routes so
// they never reach page scripts.
const refreshCookiePath = "/auth"

type Auth interface {
	Register(ctx context.Context, input auth.RegisterInput) (*auth.RegisterResult, error)
	VerifyEmail(ctx context.Context, userID, code, ip, userAgent string) (*auth.Session, error)
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, identifier, password, ip, userAgent string) (*auth.Session, error)
	Refresh(ctx context.Context, rawToken, ip, userAgent string) (*auth.TokenPair, error)
	Logout(ctx context.Context, rawToken, ip string) error
	ForgotPassword(ctx context.Context, email, callbackURL string) error
	ResetPassword(ctx context.Context, email, rawToken, newPassword string) error
}

// Options carries the transport-level knobs the handler needs.
type Options struct {
	RefreshTokenTTL time.Duration
	SecureCookies   bool
}

type handler struct {
	auth Auth
	opts Options
}

// Register mounts the auth routes and installs the custom password
// validator.
func Register(router *gin.Engine, service Auth, opts Options) {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("passwd", passwordRule)
	}

	h := &handler{auth: service, opts: opts}

	group := router.Group("/auth")
	group.POST("/register", h.register)
	group.POST("/verify-email/:userID", h.verifyEmail)
	group.POST("/resend-verification", h.resendVerification)
	group.POST("/login", h.login)
	group.POST("/logout", h.logout)
	group.POST("/refresh", h.refresh)
	group.POST("/forgot-password", h.forgotPassword)
	group.POST("/reset-password", h.resetPassword)
}

// passwordRule mirrors the registration policy: at least six
// characters with at least one letter and one digit.
func passwordRule(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) < 6 {
		return false
	}
	var hasLetter, hasDigit bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

type registerRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Username  string `json:"username" binding:"required,min=5,max=20"`
	Password  string `json:"password" binding:"required,passwd"`
}

type verifyEmailRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

type forgotPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	CallbackURL string `json:"callback_url" binding:"required,url"`
}

type resetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,passwd"`
}

type userResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	Verified  bool   `json:"verified"`
}

func newUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Username:  user.Username,
		Role:      string(user.Role),
		Verified:  user.Verified,
	}
}

func (h *handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid registration payload"})
		return
	}

	result, err := h.auth.Register(c.Request.Context(), auth.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	status := http.StatusCreated
	message := "user registered, please verify your email"
	if result.Status == auth.RegisterStatusResent {
		status = http.StatusOK
		message = "account exists but is not verified, verification code resent"
	}

	c.JSON(status, gin.H{
		"status":  string(result.Status),
		"message": message,
		"user_id": result.UserID,
	})
}

func (h *handler) verifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid verification payload"})
		return
	}

	session, err := h.auth.VerifyEmail(c.Request.Context(),
		c.Param("userID"), req.Code, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setRefreshCookie(c, session.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"user":         newUserResponse(session.User),
		"access_token": session.AccessToken,
	})
}

func (h *handler) resendVerification(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid payload"})
		return
	}

	if err := h.auth.ResendVerification(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "verification code resent to your email"})
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid login payload"})
		return
	}

	session, err := h.auth.Login(c.Request.Context(),
		req.Identifier, req.Password, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setRefreshCookie(c, session.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"user":         newUserResponse(session.User),
		"access_token": session.AccessToken,
	})
}

func (h *handler) logout(c *gin.Context) {
	// Logout is forgiving: a missing or unknown cookie still clears and
	// reports success.
	if rawToken, err := c.Cookie(refreshCookieName); err == nil && rawToken != "" {
		if err := h.auth.Logout(c.Request.Context(), rawToken, c.ClientIP()); err != nil {
			h.fail(c, err)
			return
		}
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

func (h *handler) refresh(c *gin.Context) {
	rawToken, err := c.Cookie(refreshCookieName)
	if err != nil || rawToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing refresh token"})
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(),
		rawToken, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken})
}

func (h *handler) forgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid payload"})
		return
	}

	if err := h.auth.ForgotPassword(c.Request.Context(), req.Email, req.CallbackURL); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "if an account with this email exists, a password reset link has been sent",
	})
}

func (h *handler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid payload"})
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), req.Email, req.Token, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password has been reset successfully"})
}

// fail maps service failures onto HTTP statuses. Login distinguishes
// unknown user from wrong password for UX; refresh and reset collapse
// every reason into one message to resist enumeration.
func (h *handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, auth.ErrUsernameTaken),
		errors.Is(err, auth.ErrAlreadyVerified):
		c.JSON(http.StatusConflict, gin.H{"message": unwrapMessage(err)})
	case errors.Is(err, auth.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": auth.ErrUserNotFound.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"message": auth.ErrInvalidCredentials.Error()})
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		c.JSON(http.StatusUnauthorized, gin.H{"message": auth.ErrInvalidRefreshToken.Error()})
	case errors.Is(err, auth.ErrNotVerified),
		errors.Is(err, auth.ErrWrongAuthMethod):
		c.JSON(http.StatusForbidden, gin.H{"message": unwrapMessage(err)})
	case errors.Is(err, auth.ErrCodeNotFound),
		errors.Is(err, auth.ErrCodeExpired),
		errors.Is(err, auth.ErrCodeMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"message": "verification failed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
	}
}

func unwrapMessage(err error) string {
	for _, sentinel := range []error{
		auth.ErrEmailTaken, auth.ErrUsernameTaken, auth.ErrAlreadyVerified,
		auth.ErrNotVerified, auth.ErrWrongAuthMethod,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "request failed"
}

func (h *handler) setRefreshCookie(c *gin.Context, rawToken string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, rawToken,
		int(h.opts.RefreshTokenTTL.Seconds()), refreshCookiePath, "",
		h.opts.SecureCookies, true)
}

func (h *handler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, "", -1, refreshCookiePath, "",
		h.opts.SecureCookies, true)
}
