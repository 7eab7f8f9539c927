package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Staff roles recognized by the back office. Both roles share the payment
// queue with equal privileges.
const (
	RoleAdmin           = "admin"
	RoleCustomerService = "customer_service"
	RoleUser            = "user"
)

// Actor is the authenticated principal extracted from a token. Credential
// verification happens in the auth collaborator; this service trusts the
// signed claims.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// IsStaff reports whether the actor may work the reconciliation queue.
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleCustomerService
}

type jwtCustomClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for the provided actor.
func GenerateToken(secret string, userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	claims := &jwtCustomClaims{
		UserID: userID.String(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates the token and returns the embedded actor.
func ParseToken(secret, tokenString string) (Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtCustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Actor{}, err
	}

	if claims, ok := token.Claims.(*jwtCustomClaims); ok && token.Valid {
		id, err := uuid.Parse(claims.UserID)
		if err != nil {
			return Actor{}, err
		}
		role := claims.Role
		if role == "" {
			role = RoleUser
		}
		return Actor{ID: id, Role: role}, nil
	}

	return Actor{}, jwt.ErrTokenInvalidClaims
}
