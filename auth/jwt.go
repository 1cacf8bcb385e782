package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	nanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultAccessTokenTTL is the token lifetime used when the config does
// not set one. Review sessions are short lived; long-running
// integrations should use API keys instead.
const DefaultAccessTokenTTL = 15 * time.Minute

// JWTConfig holds configuration for JWT generation and validation.
type JWTConfig struct {
	// Secret is the HMAC signing key (must be at least 32 bytes).
	Secret []byte

	// Issuer is the token issuer (e.g., "careflow").
	Issuer string

	// AccessTokenTTL is the lifetime of access tokens.
	// Defaults to DefaultAccessTokenTTL (15 minutes) if zero.
	AccessTokenTTL time.Duration
}

func (c JWTConfig) accessTTL() time.Duration {
	if c.AccessTokenTTL == 0 {
		return DefaultAccessTokenTTL
	}
	return c.AccessTokenTTL
}

// BaseClaims represents the standard JWT claims.
// Embed this in custom claims types for application-specific data.
type BaseClaims struct {
	jwt.RegisteredClaims
}

// ReviewerClaims carries the caller's role alongside the standard
// claims. The subject identifies the reviewer for transcripts and
// audit notes.
type ReviewerClaims struct {
	BaseClaims
	Role Role `json:"role"`
}

// GenerateAccessToken creates a new JWT access token with the given subject.
func GenerateAccessToken(cfg JWTConfig, subject string) (string, error) {
	return GenerateAccessTokenWithClaims(cfg, func(base BaseClaims) BaseClaims {
		base.Subject = subject
		return base
	})
}

// GenerateAccessTokenWithClaims creates a JWT with custom claims.
// The builder function receives a BaseClaims with standard fields pre-populated.
func GenerateAccessTokenWithClaims[T jwt.Claims](cfg JWTConfig, builder func(BaseClaims) T) (string, error) {
	if len(cfg.Secret) < 32 {
		return "", ErrSecretTooShort
	}

	tokenID, err := nanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate token ID: %w", err)
	}

	now := time.Now()
	base := BaseClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.accessTTL())),
			ID:        tokenID,
		},
	}

	claims := builder(base)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// GenerateReviewerToken creates a token for a named reviewer with the
// given role.
func GenerateReviewerToken(cfg JWTConfig, subject string, role Role) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return GenerateAccessTokenWithClaims(cfg, func(base BaseClaims) ReviewerClaims {
		base.Subject = subject
		return ReviewerClaims{BaseClaims: base, Role: role}
	})
}

// ValidateReviewerToken parses and validates a reviewer token. Tokens
// without a recognized role are rejected outright.
func ValidateReviewerToken(cfg JWTConfig, tokenString string) (*ReviewerClaims, error) {
	claims := &ReviewerClaims{}
	if err := ValidateAccessTokenAs(cfg, tokenString, claims); err != nil {
		return nil, err
	}
	if !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateAccessToken parses and validates a JWT, returning BaseClaims.
func ValidateAccessToken(cfg JWTConfig, tokenString string) (*BaseClaims, error) {
	claims := &BaseClaims{}
	if err := ValidateAccessTokenAs(cfg, tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateAccessTokenAs parses and validates a JWT into the provided claims pointer.
// Pass a pointer to your custom claims type.
func ValidateAccessTokenAs(cfg JWTConfig, tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return cfg.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrInvalidToken
	}

	if !token.Valid {
		return ErrInvalidToken
	}

	// Verify issuer if configured
	if cfg.Issuer != "" {
		issuer, err := token.Claims.GetIssuer()
		if err != nil || issuer != cfg.Issuer {
			return ErrInvalidToken
		}
	}

	return nil
}
