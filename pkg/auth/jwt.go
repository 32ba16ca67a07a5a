package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// JWTValidator validates operator tokens issued by an external identity
// provider. JWKS public keys are fetched and cached with auto-refresh to
// handle key rotation.
type JWTValidator struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

// Claims are the operator claims extracted from a validated token.
type Claims struct {
	Subject string         `json:"sub"`
	Email   string         `json:"email"`
	Role    string         `json:"role"`
	Custom  map[string]any `json:"-"`
}

// NewJWTValidator creates a validator that auto-fetches JWKS from the
// provider, refreshing at most every 15 minutes.
func NewJWTValidator(jwksURL, issuer, audience string) (*JWTValidator, error) {
	ctx := context.Background()

	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}

	// Initial fetch validates the configuration up front.
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", jwksURL, err)
	}

	return &JWTValidator{
		jwksURL:  jwksURL,
		cache:    cache,
		issuer:   issuer,
		audience: audience,
	}, nil
}

// ValidateToken verifies the token's signature, expiry, issuer, and
// audience, and extracts the operator claims.
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{
		Subject: token.Subject(),
		Custom:  make(map[string]any),
	}

	if email, ok := token.Get("email"); ok {
		if s, ok := email.(string); ok {
			claims.Email = s
		}
	}
	if role, ok := token.Get("role"); ok {
		if s, ok := role.(string); ok {
			claims.Role = s
		}
	}

	for iter := token.Iterate(ctx); iter.Next(ctx); {
		pair := iter.Pair()
		key := pair.Key.(string)
		switch key {
		case "sub", "email", "role", "iss", "aud", "exp", "iat", "nbf":
		default:
			claims.Custom[key] = pair.Value
		}
	}

	return claims, nil
}
