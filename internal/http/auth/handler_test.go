package auth_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userservice/internal/domain/models"
	httpauth "userservice/internal/http/auth"
	"userservice/internal/services/auth"
)

// stubAuth returns canned results so the tests exercise only the
// transport layer: binding, cookies and the error-to-status mapping.
type stubAuth struct {
	registerResult *auth.RegisterResult
	registerErr    error
	session        *auth.Session
	sessionErr     error
	pair           *auth.TokenPair
	refreshErr     error
	logoutErr      error
	passwordErr    error

	logoutCalls int
}

func (s *stubAuth) Register(context.Context, auth.RegisterInput) (*auth.RegisterResult, error) {
	return s.registerResult, s.registerErr
}

func (s *stubAuth) VerifyEmail(context.Context, string, string, string, string) (*auth.Session, error) {
	return s.session, s.sessionErr
}

func (s *stubAuth) ResendVerification(context.Context, string) error {
	return s.sessionErr
}

func (s *stubAuth) Login(context.Context, string, string, string, string) (*auth.Session, error) {
	return s.session, s.sessionErr
}

func (s *stubAuth) Refresh(context.Context, string, string, string) (*auth.TokenPair, error) {
	return s.pair, s.refreshErr
}

func (s *stubAuth) Logout(context.Context, string, string) error {
	s.logoutCalls++
	return s.logoutErr
}

func (s *stubAuth) ForgotPassword(context.Context, string, string) error {
	return s.passwordErr
}

func (s *stubAuth) ResetPassword(context.Context, string, string, string) error {
	return s.passwordErr
}

func newTestRouter(t *testing.T, stub *stubAuth) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	httpauth.Register(router, stub, httpauth.Options{
		RefreshTokenTTL: 7 * 24 * time.Hour,
		SecureCookies:   false,
	})
	return router
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func testSession() *auth.Session {
	return &auth.Session{
		User: &models.User{
			ID:       uuid.NewString(),
			Email:    "jane@example.com",
			Username: "janedoe",
			Role:     models.RoleUser,
			Verified: true,
		},
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
	}
}

func refreshCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "refresh_token" {
			return cookie
		}
	}
	return nil
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	stub := &stubAuth{session: testSession()}
	router := newTestRouter(t, stub)

	rec := doJSON(router, http.MethodPost, "/auth/login",
		`{"identifier":"janedoe","password":"passw0rd"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"access_token":"access-token"`)
	assert.Contains(t, rec.Body.String(), `"username":"janedoe"`)

	cookie := refreshCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, "refresh-token", cookie.Value)
	assert.Equal(t, "/auth", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
}

func TestLoginRejectsBadPayload(t *testing.T) {
	router := newTestRouter(t, &stubAuth{session: testSession()})

	rec := doJSON(router, http.MethodPost, "/auth/login", `{"identifier":"janedoe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterValidatesPasswordPolicy(t *testing.T) {
	stub := &stubAuth{registerResult: &auth.RegisterResult{
		Status: auth.RegisterStatusCreated,
		UserID: uuid.NewString(),
	}}
	router := newTestRouter(t, stub)

	body := func(password string) string {
		return fmt.Sprintf(`{"first_name":"Jane","last_name":"Doe","email":"jane@example.com","username":"janedoe","password":%q}`, password)
	}

	for _, password := range []string{"short1", "longenough1"} {
		rec := doJSON(router, http.MethodPost, "/auth/register", body(password))
		assert.Equal(t, http.StatusCreated, rec.Code, "password %q should pass", password)
	}

	for _, password := range []string{"nodigits", "12345678", "ab1"} {
		rec := doJSON(router, http.MethodPost, "/auth/register", body(password))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "password %q should be rejected", password)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"email taken", auth.ErrEmailTaken, http.StatusConflict},
		{"username taken", auth.ErrUsernameTaken, http.StatusConflict},
		{"user not found", auth.ErrUserNotFound, http.StatusNotFound},
		{"invalid credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{"not verified", auth.ErrNotVerified, http.StatusForbidden},
		{"wrong auth method", auth.ErrWrongAuthMethod, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAuth{registerErr: tt.err, sessionErr: tt.err}
			router := newTestRouter(t, stub)

			rec := doJSON(router, http.MethodPost, "/auth/login",
				`{"identifier":"janedoe","password":"passw0rd"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestVerifyEmailCodeFailuresCollapse(t *testing.T) {
	// Every code failure reads the same to the caller.
	for _, err := range []error{auth.ErrCodeNotFound, auth.ErrCodeExpired, auth.ErrCodeMismatch} {
		stub := &stubAuth{sessionErr: err}
		router := newTestRouter(t, stub)

		rec := doJSON(router, http.MethodPost, "/auth/verify-email/"+uuid.NewString(),
			`{"code":"123456"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "verification failed")
	}
}

func TestRefreshRequiresCookie(t *testing.T) {
	router := newTestRouter(t, &stubAuth{pair: &auth.TokenPair{}})

	rec := doJSON(router, http.MethodPost, "/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshRotatesCookie(t *testing.T) {
	stub := &stubAuth{pair: &auth.TokenPair{
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
	}}
	router := newTestRouter(t, stub)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "old-refresh"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"access_token":"new-access"`)

	cookie := refreshCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, "new-refresh", cookie.Value)
}

func TestRefreshInvalidToken(t *testing.T) {
	router := newTestRouter(t, &stubAuth{refreshErr: auth.ErrInvalidRefreshToken})

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "stolen"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutClearsCookieWithoutOne(t *testing.T) {
	stub := &stubAuth{}
	router := newTestRouter(t, stub)

	rec := doJSON(router, http.MethodPost, "/auth/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, stub.logoutCalls)

	cookie := refreshCookie(rec)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestLogoutRevokesAndClears(t *testing.T) {
	stub := &stubAuth{}
	router := newTestRouter(t, stub)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "live-token"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, stub.logoutCalls)

	cookie := refreshCookie(rec)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
}

func TestForgotPasswordAlwaysSucceeds(t *testing.T) {
	router := newTestRouter(t, &stubAuth{})

	rec := doJSON(router, http.MethodPost, "/auth/forgot-password",
		`{"email":"ghost@example.com","callback_url":"https://app.example.com/reset"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResetPasswordInvalidToken(t *testing.T) {
	router := newTestRouter(t, &stubAuth{passwordErr: auth.ErrUserNotFound})

	rec := doJSON(router, http.MethodPost, "/auth/reset-password",
		`{"email":"jane@example.com","token":"bad","new_password":"newpass1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
