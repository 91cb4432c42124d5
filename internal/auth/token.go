package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Expired reports whether a JWT session token is past its expiry.
// The signature is not checked here; the server verifies it on login.
// Opaque (non-JWT) tokens and tokens without an exp claim are treated
// as unexpired.
func Expired(tokenString string) bool {
	if tokenString == "" {
		return false
	}
	parser := jwt.NewParser()
	var claims jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(time.Now())
}

// ExpiresAt returns the expiry of a JWT session token, or the zero
// time when the token carries none.
func ExpiresAt(tokenString string) time.Time {
	parser := jwt.NewParser()
	var claims jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
