// ABOUTME: Session token signing and verification for MCP clients
// ABOUTME: Uses HS256 JWTs carrying identity, session ID, and expiry

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the minimum signing secret length in bytes.
const MinSecretLength = 32

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrWeakSecret   = errors.New("signing secret too short")
)

// Identity is the external-provider user a session speaks for.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Claims is the verified content of a session token.
type Claims struct {
	Identity  Identity
	SessionID string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// sessionClaims is the JWT payload. Only the signer reads or writes it.
type sessionClaims struct {
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Signer issues and verifies session tokens with a server-held HS256 secret.
// Expiry is checked against the local clock with no leeway.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithClock overrides the time source used for issuing and verifying tokens.
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		s.now = now
	}
}

// NewSigner creates a signer for the given secret.
func NewSigner(secret []byte, opts ...SignerOption) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrWeakSecret, MinSecretLength, len(secret))
	}
	key := make([]byte, len(secret))
	copy(key, secret)

	s := &Signer{secret: key, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue creates a token for identity bound to sessionID, valid for ttl.
func (s *Signer) Issue(identity Identity, sessionID string, ttl time.Duration) (string, error) {
	if identity.Subject == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if sessionID == "" {
		return "", fmt.Errorf("%w: sid", ErrMissingClaim)
	}

	now := s.now()
	claims := sessionClaims{
		Email:     identity.Email,
		Name:      identity.Name,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Subject,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates the token and returns its claims.
// Malformed input, a bad signature, or a non-HS256 algorithm yields ErrInvalidToken;
// a token past its expiry yields ErrExpiredToken.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: %w: sub", ErrInvalidToken, ErrMissingClaim)
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("%w: %w: sid", ErrInvalidToken, ErrMissingClaim)
	}

	out := &Claims{
		Identity: Identity{
			Subject: claims.Subject,
			Email:   claims.Email,
			Name:    claims.Name,
		},
		SessionID: claims.SessionID,
		TokenID:   claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
