// Package auth provides the authentication primitives: JWT issuing and
// validation, bcrypt password hashing, OAuth sign-in providers, token
// revocation and the HTTP middleware that ties them together.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. The user signs up / signs in with email+password, or completes an
//     OAuth round trip via /auth/{provider}/login → /auth/{provider}/callback
//  2. The server issues a signed JWT access token and stores it in an
//     HttpOnly "token" cookie (API clients may send it as a Bearer header)
//  3. On every /api call the middleware validates the JWT, checks it has
//     not been revoked by a sign-out, and puts the user ID in the context
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"userID","jti":"...","exp":1234567890,"iss":"accomplo"}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// Every token carries a unique "jti" so a single token can be revoked on
// sign-out without invalidating the user's other sessions.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const (
	issuer = "accomplo"

	// DefaultTokenTTL is the access token lifetime when none is configured.
	DefaultTokenTTL = 24 * time.Hour

	// RecoveryTokenTTL bounds how long a password-reset link stays usable.
	RecoveryTokenTTL = 30 * time.Minute

	purposeRecovery = "recovery"
)

// ErrInvalidToken wraps every validation failure.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given HMAC secret and
// access-token lifetime. A ttl of zero selects DefaultTokenTTL.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is the access-token lifetime; the auth cookie uses it as Max-Age.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Claims is the JWT payload. Subject holds the user ID and ID (jti) the
// token's own identifier. Purpose is empty for access tokens.
//
// "iat" only has second precision, so IssuedNano repeats it in nanoseconds.
// A password change revokes every token issued before it, and the token
// handed out by that same change is usually minted within the same second.
type Claims struct {
	jwt.RegisteredClaims
	Purpose    string `json:"purpose,omitempty"`
	IssuedNano int64  `json:"iat_ns,omitempty"`
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// Issued returns when the token was signed, as precisely as it was recorded.
func (c *Claims) Issued() time.Time {
	if c.IssuedNano != 0 {
		return time.Unix(0, c.IssuedNano)
	}
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// Generate creates and signs an access token for userID.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.sign(userID, s.ttl, "")
}

// GenerateWithDuration creates an access token with a custom lifetime.
// Used in tests to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	return s.sign(userID, d, "")
}

// GenerateRecovery creates a short-lived token that only ValidateRecovery
// accepts. It is mailed out in password-reset links.
func (s *TokenService) GenerateRecovery(userID string) (string, error) {
	return s.sign(userID, RecoveryTokenTTL, purposeRecovery)
}

func (s *TokenService) sign(userID string, d time.Duration, purpose string) (string, error) {
	now := time.Now()

	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        xid.New().String(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
		Purpose:    purpose,
		IssuedNano: now.UnixNano(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies an access token. Recovery tokens are
// rejected here so a reset link can never be used as a session.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired
//   - Issuer matches "accomplo"
//   - Algorithm is HS256 (prevents the "alg: none" confusion attack)
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	c, err := s.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if c.Purpose != "" {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}
	return c, nil
}

// ValidateRecovery parses a password-reset token.
func (s *TokenService) ValidateRecovery(tokenStr string) (*Claims, error) {
	c, err := s.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if c.Purpose != purposeRecovery {
		return nil, fmt.Errorf("%w: not a recovery token", ErrInvalidToken)
	}
	return c, nil
}

func (s *TokenService) parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: bad claims", ErrInvalidToken)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}
	if c.ID == "" {
		return nil, fmt.Errorf("%w: token has no id", ErrInvalidToken)
	}
	return c, nil
}
