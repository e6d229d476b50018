package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
)

// Claims defines the structure of the JWT claims.
type Claims struct {
	UserID       string      `json:"user_id"`
	Role         models.Role `json:"role"`
	ContractorID string      `json:"contractor_id,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the identity requests run as.
func (c *Claims) Actor() (models.Actor, error) {
	userID, err := primitive.ObjectIDFromHex(c.UserID)
	if err != nil {
		return models.Anonymous, fmt.Errorf("invalid user id in token: %w", err)
	}
	actor := models.Actor{UserID: userID, Role: c.Role}
	if c.ContractorID != "" {
		if actor.ContractorID, err = primitive.ObjectIDFromHex(c.ContractorID); err != nil {
			return models.Anonymous, fmt.Errorf("invalid contractor id in token: %w", err)
		}
	}
	return actor, nil
}

// GenerateJWT creates a new JWT for a given user.
func GenerateJWT(user *models.User, secretKey string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID.Hex(),
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   user.ID.Hex(),
		},
	}
	if user.ContractorID != nil {
		claims.ContractorID = user.ContractorID.Hex()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return tokenString, nil
}

// ValidateJWT verifies a JWT string and returns the claims if valid.
func ValidateJWT(tokenString string, secretKey string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid JWT")
	}
	return claims, nil
}
