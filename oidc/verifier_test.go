package oidc

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewTokenVerifier(t *testing.T) {
	tests := []struct {
		name    string
		cfg     VerifierConfig
		wantErr bool
	}{
		{"valid", VerifierConfig{Audience: "aud", Issuer: "iss", ClockSkew: time.Minute}, false},
		{"missing audience", VerifierConfig{Issuer: "iss"}, true},
		{"missing issuer", VerifierConfig{Audience: "aud"}, true},
		{"negative skew", VerifierConfig{Audience: "aud", Issuer: "iss", ClockSkew: -time.Second}, true},
		{"skew above five minutes", VerifierConfig{Audience: "aud", Issuer: "iss", ClockSkew: 6 * time.Minute}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenVerifier(nil, tt.cfg, zap.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"absent", "", "", ErrMissingToken},
		{"basic scheme", "Basic dXNlcjpwYXNz", "", ErrMissingToken},
		{"bare token", "a.b.c", "", ErrMissingToken},
		{"one segment", "Bearer abc", "", ErrMalformedToken},
		{"two segments", "Bearer abc.def", "", ErrMalformedToken},
		{"four segments", "Bearer a.b.c.d", "", ErrMalformedToken},
		{"empty signature", "Bearer a.b.", "", ErrMalformedToken},
		{"valid", "Bearer a.b.c", "a.b.c", nil},
		{"lowercase scheme", "bearer a.b.c", "a.b.c", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBearer(tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerify_Success(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	server := createMockJWKSServer(t, publicKey, testKid, 0)
	verifier := newTestVerifier(t, newTestKeyCache(t, server.URL, time.Second))

	token := createTestToken(t, privateKey, testKid, nil)

	claims, err := verifier.Verify(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-0000-0000-0000000000aa", claims.StableID())
	assert.Equal(t, "subject-123", claims.Subject)
	assert.Equal(t, "alice@example.com", claims.ContactEmail())
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, []string{"Admin"}, claims.Roles)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.Equal(t, []string{testAudience}, claims.Audience)
	assert.False(t, claims.ExpiresAt.IsZero())
}

func TestVerify_RejectsInvalidTokens(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	otherKey, _ := generateTestKeyPair(t)
	server := createMockJWKSServer(t, publicKey, testKid, 0)
	verifier := newTestVerifier(t, newTestKeyCache(t, server.URL, time.Second))

	tests := []struct {
		name  string
		token func() string
	}{
		{
			name: "wrong audience",
			token: func() string {
				return createTestToken(t, privateKey, testKid, func(c *Claims) {
					c.Audience = jwt.ClaimStrings{"api://someone-else"}
				})
			},
		},
		{
			name: "wrong issuer",
			token: func() string {
				return createTestToken(t, privateKey, testKid, func(c *Claims) {
					c.Issuer = "https://evil.example.com/v2.0"
				})
			},
		},
		{
			name: "expired beyond clock skew",
			token: func() string {
				return createTestToken(t, privateKey, testKid, func(c *Claims) {
					c.IssuedAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
					c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-5 * time.Minute))
				})
			},
		},
		{
			name: "missing expiry",
			token: func() string {
				return createTestToken(t, privateKey, testKid, func(c *Claims) {
					c.ExpiresAt = nil
				})
			},
		},
		{
			name: "issued in the future",
			token: func() string {
				return createTestToken(t, privateKey, testKid, func(c *Claims) {
					c.IssuedAt = jwt.NewNumericDate(time.Now().Add(10 * time.Minute))
				})
			},
		},
		{
			name: "signed by a different key",
			token: func() string {
				return createTestToken(t, otherKey, testKid, nil)
			},
		},
		{
			name: "tampered payload",
			token: func() string {
				original := createTestToken(t, privateKey, testKid, nil)
				forged := createTestToken(t, privateKey, testKid, func(c *Claims) {
					c.Roles = jwt.ClaimStrings{"Admin", "SuperAdmin"}
				})
				parts := strings.Split(original, ".")
				forgedParts := strings.Split(forged, ".")
				return parts[0] + "." + forgedParts[1] + "." + parts[2]
			},
		},
		{
			name: "missing kid header",
			token: func() string {
				return createTestToken(t, privateKey, "", nil)
			},
		},
		{
			name: "unknown kid",
			token: func() string {
				return createTestToken(t, privateKey, "retired-kid", nil)
			},
		},
		{
			name: "no subject or object id",
			token: func() string {
				return createTestToken(t, privateKey, testKid, func(c *Claims) {
					c.Subject = ""
					c.ObjectID = ""
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), "Bearer "+tt.token())
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.NotErrorIs(t, err, ErrKeyUnavailable)
		})
	}
}

func TestVerify_ExpiryWithinClockSkew(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	server := createMockJWKSServer(t, publicKey, testKid, 0)
	verifier := newTestVerifier(t, newTestKeyCache(t, server.URL, time.Second))

	token := createTestToken(t, privateKey, testKid, func(c *Claims) {
		c.IssuedAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-30 * time.Second))
	})

	_, err := verifier.Verify(context.Background(), "Bearer "+token)
	assert.NoError(t, err)
}

func TestVerify_RejectsWithoutNetworkCall(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	server := createMockJWKSServer(t, publicKey, testKid, 0)
	verifier := newTestVerifier(t, newTestKeyCache(t, server.URL, time.Second))

	hs256 := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
	hs256.Header["kid"] = testKid
	hsToken, err := hs256.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	rs384 := jwt.NewWithClaims(jwt.SigningMethodRS384, validClaims())
	rs384.Header["kid"] = testKid
	rsToken, err := rs384.SignedString(privateKey)
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{"absent header", "", ErrMissingToken},
		{"wrong scheme", "Token abc.def.ghi", ErrMissingToken},
		{"not a jwt", "Bearer not-a-jwt", ErrMalformedToken},
		{"garbage segments", "Bearer ###.###.###", ErrMalformedToken},
		{"hs256 algorithm", "Bearer " + hsToken, ErrInvalidToken},
		{"rs384 algorithm", "Bearer " + rsToken, ErrInvalidToken},
		{"none algorithm", "Bearer " + noneToken, ErrMalformedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), tt.header)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, int32(0), server.hits.Load())
}

func TestVerify_KeyUnavailable(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	server := createMockJWKSServer(t, publicKey, testKid, 0)
	server.status.Store(http.StatusServiceUnavailable)
	verifier := newTestVerifier(t, newTestKeyCache(t, server.URL, time.Second))

	token := createTestToken(t, privateKey, testKid, nil)

	_, err := verifier.Verify(context.Background(), "Bearer "+token)
	assert.ErrorIs(t, err, ErrKeyUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_UsesCachedKey(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	server := createMockJWKSServer(t, publicKey, testKid, 0)
	verifier := newTestVerifier(t, newTestKeyCache(t, server.URL, time.Second))

	for i := 0; i < 5; i++ {
		_, err := verifier.Verify(context.Background(), "Bearer "+createTestToken(t, privateKey, testKid, nil))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), server.hits.Load())
}
