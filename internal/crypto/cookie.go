package crypto

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	cookieIssuer   = "sessionauth"
	cookieAudience = "sessionauth-session"
)

var (
	ErrInvalidCookie = errors.New("invalid or expired session cookie")
)

// CookieClaims is the signed payload of a session cookie. The session token
// travels in the JWT ID claim.
type CookieClaims struct {
	jwt.RegisteredClaims
}

// SignSessionCookie wraps a session token into an HS256-signed cookie value
// that expires at expiresAt.
func SignSessionCookie(token, secret string, expiresAt time.Time) (string, error) {
	claims := CookieClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        token,
			Issuer:    cookieIssuer,
			Audience:  jwt.ClaimStrings{cookieAudience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseSessionCookie validates a signed cookie value and returns the session
// token it carries.
func ParseSessionCookie(value, secret string) (string, error) {
	parsed, err := jwt.ParseWithClaims(value, &CookieClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCookie
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(cookieIssuer), jwt.WithAudience(cookieAudience), jwt.WithExpirationRequired())
	if err != nil {
		return "", ErrInvalidCookie
	}

	claims, ok := parsed.Claims.(*CookieClaims)
	if !ok || !parsed.Valid || claims.ID == "" {
		return "", ErrInvalidCookie
	}

	return claims.ID, nil
}
