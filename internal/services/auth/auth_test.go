package auth_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"

	"userservice/internal/domain/models"
	"userservice/internal/lib/secret"
	"userservice/internal/services/auth"
	"userservice/internal/storage"
)

const (
	testAccessSecret = "test-access-secret"
	testPepper       = "test-pepper"
	passDefaultLen   = 10
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*models.User)}
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.VerificationCodeCreatedAt != nil {
		t := *u.VerificationCodeCreatedAt
		c.VerificationCodeCreatedAt = &t
	}
	if u.PasswordResetExpiresAt != nil {
		t := *u.PasswordResetExpiresAt
		c.PasswordResetExpiresAt = &t
	}
	return &c
}

func (s *fakeUserStore) SaveUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email || u.Username == user.Username {
			return storage.ErrUserAlreadyExists
		}
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *fakeUserStore) UserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, storage.ErrUserNotFound
}

func (s *fakeUserStore) UserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (s *fakeUserStore) UserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (s *fakeUserStore) UpdateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return storage.ErrUserNotFound
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *fakeUserStore) UserByResetToken(_ context.Context, email, resetHash string, now time.Time) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email && u.PasswordResetHash != "" && u.PasswordResetHash == resetHash &&
			u.PasswordResetExpiresAt != nil && u.PasswordResetExpiresAt.After(now) {
			return cloneUser(u), nil
		}
	}
	return nil, storage.ErrUserNotFound
}

// mutate adjusts a stored user in place, for backdating timestamps.
func (s *fakeUserStore) mutate(t *testing.T, id string, fn func(*models.User)) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	require.True(t, ok, "user %s not in store", id)
	fn(u)
}

func (s *fakeUserStore) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

type fakeTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshToken

	// beforeMarkRotated runs inside MarkRotated before the conditional
	// check, to simulate a concurrent rotation winning the race.
	beforeMarkRotated func()
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: make(map[string]*models.RefreshToken)}
}

func cloneToken(t *models.RefreshToken) *models.RefreshToken {
	c := *t
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		c.RevokedAt = &at
	}
	return &c
}

func (s *fakeTokenStore) SaveToken(_ context.Context, token *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ID] = cloneToken(token)
	return nil
}

func (s *fakeTokenStore) TokenByHash(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.tokens {
		if tok.TokenHash == tokenHash {
			return cloneToken(tok), nil
		}
	}
	return nil, storage.ErrTokenNotFound
}

func (s *fakeTokenStore) MarkRotated(_ context.Context, id, replacedByID, ip string, at time.Time) error {
	if s.beforeMarkRotated != nil {
		hook := s.beforeMarkRotated
		s.beforeMarkRotated = nil
		hook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return storage.ErrTokenNotFound
	}
	if tok.RevokedAt != nil || tok.ReplacedByID != "" {
		return storage.ErrTokenNotActive
	}
	revokedAt := at
	tok.RevokedAt = &revokedAt
	tok.RevokedByIP = ip
	tok.RevokeReason = models.RevokeReasonRotated
	tok.ReplacedByID = replacedByID
	return nil
}

func (s *fakeTokenStore) RevokeFamily(_ context.Context, userID, familyID string, reason models.RevokeReason, ip string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.tokens {
		if tok.UserID == userID && tok.FamilyID == familyID && tok.RevokedAt == nil {
			revokedAt := at
			tok.RevokedAt = &revokedAt
			tok.RevokedByIP = ip
			tok.RevokeReason = reason
		}
	}
	return nil
}

func (s *fakeTokenStore) family(familyID string) []*models.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.RefreshToken
	for _, tok := range s.tokens {
		if tok.FamilyID == familyID {
			out = append(out, cloneToken(tok))
		}
	}
	return out
}

func (s *fakeTokenStore) mutate(t *testing.T, id string, fn func(*models.RefreshToken)) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	require.True(t, ok, "token %s not in store", id)
	fn(tok)
}

type fakeNotifier struct {
	mu                sync.Mutex
	verificationSends int
	resetSends        int
	lastResetToken    string
	lastResetEmail    string
}

func (n *fakeNotifier) SendVerificationCode(_ context.Context, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verificationSends++
	return nil
}

func (n *fakeNotifier) SendPasswordReset(_ context.Context, email, rawToken, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resetSends++
	n.lastResetEmail = email
	n.lastResetToken = rawToken
	return nil
}

type testEnv struct {
	svc      *auth.Auth
	users    *fakeUserStore
	tokens   *fakeTokenStore
	notifier *fakeNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := newFakeUserStore()
	tokens := newFakeTokenStore()
	notifier := &fakeNotifier{}

	svc := auth.New(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		users,
		tokens,
		notifier,
		auth.Config{
			AccessSecret:        testAccessSecret,
			AccessTokenTTL:      time.Hour,
			RefreshTokenTTL:     7 * 24 * time.Hour,
			VerificationCodeTTL: 10 * time.Minute,
			ResetTokenTTL:       10 * time.Minute,
			TokenPepper:         testPepper,
		},
	)

	return &testEnv{svc: svc, users: users, tokens: tokens, notifier: notifier}
}

// hashOf computes the stored digest of a raw token, for poking at the
// fake token store directly.
func hashOf(rawToken string) string {
	return secret.NewHasher(testPepper).Sum(rawToken)
}

func randomPassword() string {
	return gofakeit.Password(true, true, true, false, false, passDefaultLen)
}

func randomRegisterInput() auth.RegisterInput {
	return auth.RegisterInput{
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Email:     strings.ToLower(gofakeit.Email()),
		Username:  strings.ToLower(gofakeit.Username()) + "user",
		Password:  randomPassword(),
	}
}

// registerVerified walks a user through registration and email
// verification, returning the input and the first session.
func registerVerified(t *testing.T, env *testEnv) (auth.RegisterInput, *auth.Session) {
	t.Helper()
	ctx := context.Background()

	input := randomRegisterInput()
	result, err := env.svc.Register(ctx, input)
	require.NoError(t, err)
	require.Equal(t, auth.RegisterStatusCreated, result.Status)

	stored, err := env.users.UserByID(ctx, result.UserID)
	require.NoError(t, err)

	session, err := env.svc.VerifyEmail(ctx, result.UserID, stored.VerificationCode, "127.0.0.1", "test-agent")
	require.NoError(t, err)

	return input, session
}
