package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"userservice/internal/domain/models"
)

type Storage struct {
	client *mongo.Client
	users  *mongo.Collection
	tokens *mongo.Collection
}

type userDoc struct {
	ID        string    `bson:"_id"`
	FirstName string    `bson:"first_name"`
	LastName  string    `bson:"last_name"`
	Email     string    `bson:"email"`
	Username  string    `bson:"username"`
	PassHash  []byte    `bson:"pass_hash,omitempty"`
	AuthType  string    `bson:"auth_type"`
	Role      string    `bson:"role"`
	Verified  bool      `bson:"verified"`
	CreatedAt time.Time `bson:"created_at"`

	VerificationCode          string     `bson:"verification_code,omitempty"`
	VerificationCodeCreatedAt *time.Time `bson:"verification_code_created_at,omitempty"`

	PasswordResetHash      string     `bson:"password_reset_hash,omitempty"`
	PasswordResetExpiresAt *time.Time `bson:"password_reset_expires_at,omitempty"`
}

type tokenDoc struct {
	ID           string     `bson:"_id"`
	UserID       string     `bson:"user_id"`
	FamilyID     string     `bson:"family_id"`
	TokenHash    string     `bson:"token_hash"`
	CreatedByIP  string     `bson:"created_by_ip,omitempty"`
	UserAgent    string     `bson:"user_agent,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"`
	ExpiresAt    time.Time  `bson:"expires_at"`
	RevokedAt    *time.Time `bson:"revoked_at,omitempty"`
	RevokedByIP  string     `bson:"revoked_by_ip,omitempty"`
	RevokeReason string     `bson:"revoke_reason,omitempty"`
	ReplacedByID string     `bson:"replaced_by,omitempty"`
}

// New creates a new MongoDB storage instance and sets up indexes.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client: client,
		users:  db.Collection("users"),
		tokens: db.Collection("refresh_tokens"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}

	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users.email index: %w", err)
	}

	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users.username index: %w", err)
	}

	_, err = s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "token_hash", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("refresh_tokens.token_hash index: %w", err)
	}

	_, err = s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "family_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("refresh_tokens.family index: %w", err)
	}

	// Physical cleanup of long-expired records is the store's job; thirty
	// days past expiry keeps revoked chains around for forensics.
	_, err = s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(30 * 24 * 60 * 60),
	})
	if err != nil {
		return fmt.Errorf("refresh_tokens.expires_at TTL index: %w", err)
	}

	return nil
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func userFromDoc(doc *userDoc) *models.User {
	return &models.User{
		ID:                        doc.ID,
		FirstName:                 doc.FirstName,
		LastName:                  doc.LastName,
		Email:                     doc.Email,
		Username:                  doc.Username,
		PassHash:                  doc.PassHash,
		AuthType:                  models.AuthType(doc.AuthType),
		Role:                      models.Role(doc.Role),
		Verified:                  doc.Verified,
		VerificationCode:          doc.VerificationCode,
		VerificationCodeCreatedAt: doc.VerificationCodeCreatedAt,
		PasswordResetHash:         doc.PasswordResetHash,
		PasswordResetExpiresAt:    doc.PasswordResetExpiresAt,
		CreatedAt:                 doc.CreatedAt,
	}
}

func docFromUser(user *models.User) userDoc {
	return userDoc{
		ID:                        user.ID,
		FirstName:                 user.FirstName,
		LastName:                  user.LastName,
		Email:                     user.Email,
		Username:                  user.Username,
		PassHash:                  user.PassHash,
		AuthType:                  string(user.AuthType),
		Role:                      string(user.Role),
		Verified:                  user.Verified,
		VerificationCode:          user.VerificationCode,
		VerificationCodeCreatedAt: user.VerificationCodeCreatedAt,
		PasswordResetHash:         user.PasswordResetHash,
		PasswordResetExpiresAt:    user.PasswordResetExpiresAt,
		CreatedAt:                 user.CreatedAt,
	}
}

// isDuplicateKeyError checks if the error is a MongoDB duplicate key error (code 11000).
func isDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}
