// Package auth issues and verifies the HS256 access tokens that identify
// students and supervisors.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in Claims.Role.
const (
	RoleStudent    = "student"
	RoleSupervisor = "supervisor"
)

// Claims are the standard registered claims plus the caller's identity.
type Claims struct {
	jwt.RegisteredClaims
	StudentID string `json:"student_id"`
	Role      string `json:"role"`
}

func GenerateToken(subjectID, role string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		StudentID: subjectID,
		Role:      role,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies tokenString and returns its claims. Expired tokens
// yield common.ErrTokenExpired; anything else wrong yields
// common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.StudentID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
