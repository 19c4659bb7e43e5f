package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"userservice/internal/domain/models"
	"userservice/internal/storage"
)

// SaveUser inserts a new user document.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.mongodb.SaveUser"

	_, err := s.users.InsertOne(ctx, docFromUser(user))
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UserByID retrieves a user by id.
func (s *Storage) UserByID(ctx context.Context, id string) (*models.User, error) {
	const op = "storage.mongodb.UserByID"
	return s.findUser(ctx, op, bson.D{{Key: "_id", Value: id}})
}

// UserByEmail retrieves a user by email.
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.mongodb.UserByEmail"
	return s.findUser(ctx, op, bson.D{{Key: "email", Value: email}})
}

// UserByUsername retrieves a user by username.
func (s *Storage) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.mongodb.UserByUsername"
	return s.findUser(ctx, op, bson.D{{Key: "username", Value: username}})
}

// UserByResetToken matches email, reset token digest and an unexpired
// deadline in a single query, so every mismatch reason collapses into
// ErrUserNotFound.
func (s *Storage) UserByResetToken(ctx context.Context, email, resetHash string, now time.Time) (*models.User, error) {
	const op = "storage.mongodb.UserByResetToken"
	return s.findUser(ctx, op, bson.D{
		{Key: "email", Value: email},
		{Key: "password_reset_hash", Value: resetHash},
		{Key: "password_reset_expires_at", Value: bson.D{{Key: "$gt", Value: now}}},
	})
}

// UpdateUser replaces the stored user document in one write.
func (s *Storage) UpdateUser(ctx context.Context, user *models.User) error {
	const op = "storage.mongodb.UpdateUser"

	res, err := s.users.ReplaceOne(ctx, bson.D{{Key: "_id", Value: user.ID}}, docFromUser(user))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

func (s *Storage) findUser(ctx context.Context, op string, filter bson.D) (*models.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return userFromDoc(&doc), nil
}
