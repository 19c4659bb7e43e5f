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

// SaveToken inserts a new refresh token record.
func (s *Storage) SaveToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.mongodb.SaveToken"

	doc := tokenDoc{
		ID:           token.ID,
		UserID:       token.UserID,
		FamilyID:     token.FamilyID,
		TokenHash:    token.TokenHash,
		CreatedByIP:  token.CreatedByIP,
		UserAgent:    token.UserAgent,
		CreatedAt:    token.CreatedAt,
		ExpiresAt:    token.ExpiresAt,
		RevokedAt:    token.RevokedAt,
		RevokedByIP:  token.RevokedByIP,
		RevokeReason: string(token.RevokeReason),
		ReplacedByID: token.ReplacedByID,
	}

	if _, err := s.tokens.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// TokenByHash retrieves a refresh token record by its digest.
func (s *Storage) TokenByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	const op = "storage.mongodb.TokenByHash"

	var doc tokenDoc
	err := s.tokens.FindOne(ctx, bson.D{{Key: "token_hash", Value: tokenHash}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.RefreshToken{
		ID:           doc.ID,
		UserID:       doc.UserID,
		FamilyID:     doc.FamilyID,
		TokenHash:    doc.TokenHash,
		CreatedByIP:  doc.CreatedByIP,
		UserAgent:    doc.UserAgent,
		CreatedAt:    doc.CreatedAt,
		ExpiresAt:    doc.ExpiresAt,
		RevokedAt:    doc.RevokedAt,
		RevokedByIP:  doc.RevokedByIP,
		RevokeReason: models.RevokeReason(doc.RevokeReason),
		ReplacedByID: doc.ReplacedByID,
	}, nil
}

// MarkRotated terminates a token and links its successor. The filter
// requires the record to still be unrevoked and unreplaced, so two
// racing rotations of the same token cannot both win.
func (s *Storage) MarkRotated(ctx context.Context, id, replacedByID, ip string, at time.Time) error {
	const op = "storage.mongodb.MarkRotated"

	res, err := s.tokens.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: id},
			{Key: "revoked_at", Value: bson.D{{Key: "$exists", Value: false}}},
			{Key: "replaced_by", Value: bson.D{{Key: "$exists", Value: false}}},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "revoked_at", Value: at},
			{Key: "revoked_by_ip", Value: ip},
			{Key: "revoke_reason", Value: string(models.RevokeReasonRotated)},
			{Key: "replaced_by", Value: replacedByID},
		}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrTokenNotActive)
	}

	return nil
}

// RevokeFamily bulk-revokes every still-active record of the family.
// Records already revoked keep their original reason, which makes the
// call idempotent.
func (s *Storage) RevokeFamily(ctx context.Context, userID, familyID string, reason models.RevokeReason, ip string, at time.Time) error {
	const op = "storage.mongodb.RevokeFamily"

	_, err := s.tokens.UpdateMany(ctx,
		bson.D{
			{Key: "user_id", Value: userID},
			{Key: "family_id", Value: familyID},
			{Key: "revoked_at", Value: bson.D{{Key: "$exists", Value: false}}},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "revoked_at", Value: at},
			{Key: "revoked_by_ip", Value: ip},
			{Key: "revoke_reason", Value: string(reason)},
		}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
