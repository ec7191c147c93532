package oidc

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	// ErrMissingToken is returned when no bearer credential is presented
	ErrMissingToken = errors.New("missing bearer token")

	// ErrMalformedToken is returned when the credential is not a three-segment JWT
	ErrMalformedToken = errors.New("malformed token")

	// ErrInvalidToken is returned for any signature, algorithm or claim failure
	ErrInvalidToken = errors.New("invalid token")
)

// MaxClockSkew is the largest accepted leeway for time-based claims
const MaxClockSkew = 5 * time.Minute

const bearerPrefix = "bearer "

// KeyProvider resolves verification keys by key id
type KeyProvider interface {
	Get(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// VerifierConfig holds configuration for TokenVerifier
type VerifierConfig struct {
	Audience  string
	Issuer    string
	ClockSkew time.Duration
}

// TokenVerifier validates RS256 access tokens against the issuer's published keys
type TokenVerifier struct {
	keys     KeyProvider
	audience string
	issuer   string
	skew     time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewTokenVerifier creates a new token verifier
func NewTokenVerifier(keys KeyProvider, cfg VerifierConfig, logger *zap.Logger) (*TokenVerifier, error) {
	if cfg.Audience == "" || cfg.Issuer == "" {
		return nil, errors.New("audience and issuer are required")
	}
	if cfg.ClockSkew < 0 || cfg.ClockSkew > MaxClockSkew {
		return nil, fmt.Errorf("clock skew must be between 0 and %s", MaxClockSkew)
	}

	return &TokenVerifier{
		keys:     keys,
		audience: cfg.Audience,
		issuer:   cfg.Issuer,
		skew:     cfg.ClockSkew,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// ExtractBearer returns the token carried by an Authorization header value.
// It never touches the network.
func ExtractBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrMissingToken
	}

	token := strings.TrimSpace(header[len(bearerPrefix):])
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", ErrMalformedToken
	}
	for _, part := range parts {
		if part == "" {
			return "", ErrMalformedToken
		}
	}
	return token, nil
}

// Verify validates the Authorization header value and returns the token's claims
func (v *TokenVerifier) Verify(ctx context.Context, authorizationHeader string) (*ClaimSet, error) {
	token, err := ExtractBearer(authorizationHeader)
	if err != nil {
		return nil, err
	}
	return v.VerifyToken(ctx, token)
}

// VerifyToken validates a raw compact JWT
func (v *TokenVerifier) VerifyToken(ctx context.Context, tokenString string) (*ClaimSet, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithIssuer(v.issuer),
		jwt.WithLeeway(v.skew),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("kid header not found")
		}

		return v.keys.Get(ctx, kid)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrKeyUnavailable):
			return nil, err
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		default:
			v.logger.Debug("token rejected", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	set := newClaimSet(claims)
	if set.StableID() == "" {
		return nil, fmt.Errorf("%w: token carries neither oid nor sub", ErrInvalidToken)
	}

	return set, nil
}
