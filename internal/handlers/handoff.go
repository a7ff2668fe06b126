package handlers

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// handoffTTL bounds how long a post-install redirect token stays valid. The
// browser consumes it immediately, so the window is kept short.
const handoffTTL = 5 * time.Minute

// MintHandoffToken issues a short-lived token carrying the organization id,
// handed to the browser at the end of an OAuth flow so the app frontend can
// associate the finished install with its session.
func MintHandoffToken(secret, organizationID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   organizationID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(handoffTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyHandoffToken validates a handoff token and returns the organization
// id it was minted for.
func VerifyHandoffToken(secret, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid handoff token: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("invalid handoff token claims")
	}
	return claims.Subject, nil
}
