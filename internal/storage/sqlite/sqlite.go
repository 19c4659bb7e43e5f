package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"userservice/internal/domain/models"
	"userservice/internal/storage"
)

type Storage struct {
	db *sql.DB
}

// New returns a new instance of the Storage.
func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"
	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.sqlite.SaveUser"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (
			id, first_name, last_name, email, username, pass_hash,
			auth_type, role, verified, verification_code,
			verification_code_created_at, password_reset_hash,
			password_reset_expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.FirstName, user.LastName, user.Email, user.Username,
		user.PassHash, string(user.AuthType), string(user.Role), user.Verified,
		nullString(user.VerificationCode), nullTime(user.VerificationCodeCreatedAt),
		nullString(user.PasswordResetHash), nullTime(user.PasswordResetExpiresAt),
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) UserByID(ctx context.Context, id string) (*models.User, error) {
	const op = "storage.sqlite.UserByID"
	return s.findUser(ctx, op, "id = ?", id)
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.sqlite.UserByEmail"
	return s.findUser(ctx, op, "email = ?", email)
}

func (s *Storage) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.sqlite.UserByUsername"
	return s.findUser(ctx, op, "username = ?", username)
}

// UserByResetToken matches email, reset token digest and an unexpired
// deadline in one query; every mismatch reason collapses into
// ErrUserNotFound.
func (s *Storage) UserByResetToken(ctx context.Context, email, resetHash string, now time.Time) (*models.User, error) {
	const op = "storage.sqlite.UserByResetToken"
	return s.findUser(ctx, op,
		"email = ? AND password_reset_hash = ? AND password_reset_expires_at > ?",
		email, resetHash, now)
}

// UpdateUser rewrites the mutable user fields in one statement.
func (s *Storage) UpdateUser(ctx context.Context, user *models.User) error {
	const op = "storage.sqlite.UpdateUser"

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			first_name = ?, last_name = ?, email = ?, username = ?,
			pass_hash = ?, auth_type = ?, role = ?, verified = ?,
			verification_code = ?, verification_code_created_at = ?,
			password_reset_hash = ?, password_reset_expires_at = ?
		WHERE id = ?`,
		user.FirstName, user.LastName, user.Email, user.Username,
		user.PassHash, string(user.AuthType), string(user.Role), user.Verified,
		nullString(user.VerificationCode), nullTime(user.VerificationCodeCreatedAt),
		nullString(user.PasswordResetHash), nullTime(user.PasswordResetExpiresAt),
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	return nil
}

func (s *Storage) findUser(ctx context.Context, op, where string, args ...any) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, username, pass_hash,
			auth_type, role, verified, verification_code,
			verification_code_created_at, password_reset_hash,
			password_reset_expires_at, created_at
		FROM users WHERE `+where, args...)

	var (
		user          models.User
		authType      string
		role          string
		code          sql.NullString
		codeCreatedAt sql.NullTime
		resetHash     sql.NullString
		resetExpires  sql.NullTime
	)
	err := row.Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.Username,
		&user.PassHash, &authType, &role, &user.Verified,
		&code, &codeCreatedAt, &resetHash, &resetExpires, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user.AuthType = models.AuthType(authType)
	user.Role = models.Role(role)
	user.VerificationCode = code.String
	if codeCreatedAt.Valid {
		t := codeCreatedAt.Time
		user.VerificationCodeCreatedAt = &t
	}
	user.PasswordResetHash = resetHash.String
	if resetExpires.Valid {
		t := resetExpires.Time
		user.PasswordResetExpiresAt = &t
	}

	return &user, nil
}

func (s *Storage) SaveToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.sqlite.SaveToken"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (
			id, user_id, family_id, token_hash, created_by_ip, user_agent,
			created_at, expires_at, revoked_at, revoked_by_ip,
			revoke_reason, replaced_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		token.ID, token.UserID, token.FamilyID, token.TokenHash,
		token.CreatedByIP, token.UserAgent, token.CreatedAt, token.ExpiresAt,
		nullTime(token.RevokedAt), nullString(token.RevokedByIP),
		nullString(string(token.RevokeReason)), nullString(token.ReplacedByID),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) TokenByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	const op = "storage.sqlite.TokenByHash"

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, family_id, token_hash, created_by_ip, user_agent,
			created_at, expires_at, revoked_at, revoked_by_ip,
			revoke_reason, replaced_by
		FROM refresh_tokens WHERE token_hash = ?`, tokenHash)

	var (
		token       models.RefreshToken
		createdByIP sql.NullString
		userAgent   sql.NullString
		revokedAt   sql.NullTime
		revokedByIP sql.NullString
		reason      sql.NullString
		replacedBy  sql.NullString
	)
	err := row.Scan(
		&token.ID, &token.UserID, &token.FamilyID, &token.TokenHash,
		&createdByIP, &userAgent, &token.CreatedAt, &token.ExpiresAt,
		&revokedAt, &revokedByIP, &reason, &replacedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	token.CreatedByIP = createdByIP.String
	token.UserAgent = userAgent.String
	if revokedAt.Valid {
		t := revokedAt.Time
		token.RevokedAt = &t
	}
	token.RevokedByIP = revokedByIP.String
	token.RevokeReason = models.RevokeReason(reason.String)
	token.ReplacedByID = replacedBy.String

	return &token, nil
}

// MarkRotated terminates a token and links its successor. The WHERE
// clause requires the row to still be unrevoked and unreplaced, so two
// racing rotations of the same token cannot both win.
func (s *Storage) MarkRotated(ctx context.Context, id, replacedByID, ip string, at time.Time) error {
	const op = "storage.sqlite.MarkRotated"

	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = ?, revoked_by_ip = ?, revoke_reason = ?, replaced_by = ?
		WHERE id = ? AND revoked_at IS NULL AND replaced_by IS NULL`,
		at, ip, string(models.RevokeReasonRotated), replacedByID, id,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrTokenNotActive)
	}
	return nil
}

// RevokeFamily bulk-revokes every still-active record of the family.
// Idempotent: already-revoked rows keep their original reason.
func (s *Storage) RevokeFamily(ctx context.Context, userID, familyID string, reason models.RevokeReason, ip string, at time.Time) error {
	const op = "storage.sqlite.RevokeFamily"

	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = ?, revoked_by_ip = ?, revoke_reason = ?
		WHERE user_id = ? AND family_id = ? AND revoked_at IS NULL`,
		at, ip, string(reason), userID, familyID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
