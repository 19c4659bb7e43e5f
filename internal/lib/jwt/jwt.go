package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"userservice/internal/domain/models"
)

// NewToken creates a short-lived access JWT asserting the user's
// identity and role. Stateless: there is no revocation list, the TTL
// bounds the compromise window.
func NewToken(user *models.User, secret string, duration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(
		jwt.SigningMethodHS256,
		jwt.MapClaims{
			"uid":  user.ID,
			"role": string(user.Role),
			"iat":  now.Unix(),
			"exp":  now.Add(duration).Unix(),
		})
	return token.SignedString([]byte(secret))
}

// ParseToken parses and validates an access JWT, returning the claims.
func ParseToken(tokenString string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
