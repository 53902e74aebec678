package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/upb/authvault/internal/shared"
	"github.com/upb/authvault/models"
)

const minSecretLength = 32

// Claims is the signed payload of a bearer token. Subject carries the identity id.
type Claims struct {
	jwt.RegisteredClaims
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

// Identity builds the request identity from verified claims
func (c *Claims) Identity() *models.Identity {
	return &models.Identity{
		ID:    c.Subject,
		Email: c.Email,
		Role:  c.Role,
	}
}

// TokenConfig holds signing parameters for TokenCodec
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	DefaultTTL time.Duration
}

// TokenCodec issues and verifies HS256 bearer tokens. It holds no mutable
// state after construction and is safe for concurrent use.
type TokenCodec struct {
	secret     []byte
	issuer     string
	defaultTTL time.Duration
	now        func() time.Time
}

// CodecOption customises a TokenCodec
type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for issuing and expiry checks
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec creates a codec. The secret must be at least 32 bytes.
func NewTokenCodec(cfg TokenConfig, opts ...CodecOption) (*TokenCodec, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", minSecretLength)
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 24 * time.Hour
	}

	c := &TokenCodec{
		secret:     cfg.Secret,
		issuer:     cfg.Issuer,
		defaultTTL: cfg.DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a new token for identity. A non-positive ttl uses the default.
func (c *TokenCodec) Issue(identity models.Identity, ttl time.Duration) (string, error) {
	if identity.ID == "" {
		return "", fmt.Errorf("%w: identity id is required", shared.ErrInvalidInput)
	}
	if !identity.Role.Valid() {
		return "", fmt.Errorf("%w: %q", shared.ErrInvalidRole, identity.Role)
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.ID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: identity.Email,
		Role:  identity.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of a token. Expired tokens with a
// valid signature fail with shared.ErrTokenExpired; every other failure is
// shared.ErrTokenInvalid.
func (c *TokenCodec) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, shared.Unauthenticated(shared.CodeTokenInvalid, "empty token", nil)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, shared.Unauthenticated(shared.CodeTokenExpired, "token expired", err)
		}
		return nil, shared.Unauthenticated(shared.CodeTokenInvalid, "token rejected", err)
	}
	if !token.Valid {
		return nil, shared.Unauthenticated(shared.CodeTokenInvalid, "token rejected", nil)
	}

	if claims.Subject == "" {
		return nil, shared.Unauthenticated(shared.CodeTokenInvalid, "missing subject", nil)
	}
	if _, err := models.ParseRole(string(claims.Role)); err != nil {
		return nil, shared.Unauthenticated(shared.CodeTokenInvalid, "invalid role claim", err)
	}

	return claims, nil
}

// DefaultTTL returns the lifetime applied when Issue is called with ttl <= 0
func (c *TokenCodec) DefaultTTL() time.Duration {
	return c.defaultTTL
}
