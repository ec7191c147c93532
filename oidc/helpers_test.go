package oidc

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const (
	testKid      = "test-kid-123"
	testIssuer   = "https://login.example.com/11111111-2222-3333-4444-555555555555/v2.0"
	testAudience = "api://tenant-gateway"
)

// Test helper to generate RSA key pair
func generateTestKeyPair(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return privateKey, &privateKey.PublicKey
}

// jwksServer serves a key set and counts requests
type jwksServer struct {
	*httptest.Server
	hits   atomic.Int32
	delay  time.Duration
	status atomic.Int32
}

func publicKeyToJWK(publicKey *rsa.PublicKey, kid string) JWK {
	return JWK{
		Kid: kid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes()),
	}
}

// Test helper to create a mock JWKS server
func createMockJWKSServer(t *testing.T, publicKey *rsa.PublicKey, kid string, delay time.Duration) *jwksServer {
	t.Helper()
	s := &jwksServer{delay: delay}
	s.status.Store(http.StatusOK)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)

		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-r.Context().Done():
				return
			}
		}

		if status := int(s.status.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JWKS{Keys: []JWK{publicKeyToJWK(publicKey, kid)}})
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestKeyCache(t *testing.T, url string, fetchTimeout time.Duration) *SigningKeyCache {
	t.Helper()
	cache, err := NewSigningKeyCache(KeyCacheConfig{
		JWKSURL:      url,
		TTL:          24 * time.Hour,
		FetchTimeout: fetchTimeout,
	}, zap.NewNop(), noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return cache
}

func newTestVerifier(t *testing.T, keys KeyProvider) *TokenVerifier {
	t.Helper()
	verifier, err := NewTokenVerifier(keys, VerifierConfig{
		Audience:  testAudience,
		Issuer:    testIssuer,
		ClockSkew: 60 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	return verifier
}

func validClaims() *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "subject-123",
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		ObjectID:          "00000000-0000-0000-0000-0000000000aa",
		TenantID:          "11111111-2222-3333-4444-555555555555",
		Email:             "alice@example.com",
		PreferredUsername: "alice@example.com",
		Name:              "Alice",
		Roles:             jwt.ClaimStrings{"Admin"},
	}
}

// Test helper to create a signed test token
func createTestToken(t *testing.T, privateKey *rsa.PrivateKey, kid string, mutate func(*Claims)) string {
	t.Helper()
	claims := validClaims()
	if mutate != nil {
		mutate(claims)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}

	tokenString, err := token.SignedString(privateKey)
	require.NoError(t, err)
	return tokenString
}
