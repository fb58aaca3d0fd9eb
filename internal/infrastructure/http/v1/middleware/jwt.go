package middleware

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	appctx "medstock/internal/core/context"
	"medstock/internal/core/id"
)

// HS256Validator validates tokens issued by the authentication service
// with a shared HMAC secret.
type HS256Validator struct {
	secret []byte
}

// NewHS256Validator creates a validator over the shared secret.
func NewHS256Validator(secret string) *HS256Validator {
	return &HS256Validator{secret: []byte(secret)}
}

var _ TokenValidator = (*HS256Validator)(nil)

type userClaims struct {
	jwt.RegisteredClaims
	Username       string `json:"username"`
	Email          string `json:"email"`
	HomeFacilityID string `json:"homeFacilityId,omitempty"`
}

// ValidateToken parses and verifies the token, returning the user context.
func (v *HS256Validator) ValidateToken(tokenString string) (*appctx.UserContext, error) {
	token, err := jwt.ParseWithClaims(tokenString, &userClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*userClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	userID, err := id.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}

	user := &appctx.UserContext{
		UserID:   userID,
		Username: claims.Username,
		Email:    claims.Email,
	}
	if claims.HomeFacilityID != "" {
		facilityID, err := id.Parse(claims.HomeFacilityID)
		if err != nil {
			return nil, fmt.Errorf("invalid home facility: %w", err)
		}
		user.HomeFacilityID = &facilityID
	}
	return user, nil
}
