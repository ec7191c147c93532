package oidc

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrKeyUnavailable is returned when the key set cannot be fetched (network, timeout, bad response)
	ErrKeyUnavailable = errors.New("signing key unavailable")

	// ErrKeyNotFound is returned when the issuer does not publish the requested key id
	ErrKeyNotFound = errors.New("signing key not found")
)

// JWKS represents the JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// KeyCacheConfig holds configuration for SigningKeyCache
type KeyCacheConfig struct {
	JWKSURL string
	// TTL is the freshness window of a fetched key
	TTL time.Duration
	// FetchTimeout bounds a single key set request
	FetchTimeout time.Duration
	// MinRefreshInterval is the minimum spacing between fetch attempts, failed or not
	MinRefreshInterval time.Duration
	HTTPClient         *http.Client
}

type cachedKey struct {
	key       *rsa.PublicKey
	fetchedAt time.Time
}

// SigningKeyCache fetches and caches the issuer's RSA verification keys by key id.
// Lookups of cached keys never wait on a fetch. All misses share one in-flight
// request, and fetch attempts are spaced at least MinRefreshInterval apart
// whether they succeeded or not.
type SigningKeyCache struct {
	jwksURL    string
	ttl        time.Duration
	timeout    time.Duration
	minRefresh time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time

	mu          sync.RWMutex
	keys        map[string]cachedKey
	lastFetch   time.Time
	lastAttempt time.Time
	lastErr     error

	group singleflight.Group

	fetches       metric.Int64Counter
	fetchDuration metric.Float64Histogram
}

// NewSigningKeyCache creates a new signing key cache
func NewSigningKeyCache(cfg KeyCacheConfig, logger *zap.Logger, meter metric.Meter) (*SigningKeyCache, error) {
	if cfg.JWKSURL == "" {
		return nil, errors.New("jwks url is required")
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	if cfg.MinRefreshInterval == 0 {
		cfg.MinRefreshInterval = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	fetches, err := meter.Int64Counter(
		"oidc.key_fetches",
		metric.WithDescription("Signing key set fetches by result"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	fetchDuration, err := meter.Float64Histogram(
		"oidc.key_fetch.duration_ms",
		metric.WithDescription("Signing key set fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &SigningKeyCache{
		jwksURL:       cfg.JWKSURL,
		ttl:           cfg.TTL,
		timeout:       cfg.FetchTimeout,
		minRefresh:    cfg.MinRefreshInterval,
		httpClient:    cfg.HTTPClient,
		logger:        logger,
		now:           time.Now,
		keys:          make(map[string]cachedKey),
		fetches:       fetches,
		fetchDuration: fetchDuration,
	}, nil
}

// Get returns the public key for kid, fetching the key set when the key is
// missing or older than the TTL.
func (c *SigningKeyCache) Get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}

	if throttled, err := c.throttled(); throttled {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: kid %s", ErrKeyNotFound, kid)
	}

	// The shared fetch must not die with the first caller's request.
	ch := c.group.DoChan("refresh", func() (interface{}, error) {
		if throttled, err := c.throttled(); throttled {
			return nil, err
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return nil, c.refresh(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
	}

	if key, ok := c.lookup(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %s", ErrKeyNotFound, kid)
}

// lookup returns a fresh cached key
func (c *SigningKeyCache) lookup(kid string) (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.keys[kid]
	if !ok || c.now().Sub(entry.fetchedAt) >= c.ttl {
		return nil, false
	}
	return entry.key, true
}

// throttled reports whether the last fetch attempt is within the refresh
// interval, along with that attempt's error.
func (c *SigningKeyCache) throttled() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastAttempt.IsZero() || c.now().Sub(c.lastAttempt) >= c.minRefresh {
		return false, nil
	}
	return true, c.lastErr
}

// refresh fetches the key set and replaces cached entries. No lock is held during the request.
func (c *SigningKeyCache) refresh(ctx context.Context) error {
	start := c.now()
	jwks, err := c.FetchJWKS(ctx)
	c.fetchDuration.Record(ctx, float64(c.now().Sub(start).Milliseconds()))
	if err != nil {
		c.fetches.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "error")))
		c.logger.Warn("signing key fetch failed", zap.String("jwks_url", c.jwksURL), zap.Error(err))
		c.mu.Lock()
		c.lastAttempt = c.now()
		c.lastErr = err
		c.mu.Unlock()
		return err
	}

	fetchedAt := c.now()
	parsed := make(map[string]cachedKey, len(jwks.Keys))
	for i := range jwks.Keys {
		jwk := &jwks.Keys[i]
		if jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") || jwk.Kid == "" {
			continue
		}
		key, err := jwkToRSAPublicKey(jwk)
		if err != nil {
			c.logger.Warn("skipping malformed signing key", zap.String("kid", jwk.Kid), zap.Error(err))
			continue
		}
		parsed[jwk.Kid] = cachedKey{key: key, fetchedAt: fetchedAt}
	}

	c.mu.Lock()
	for kid, entry := range parsed {
		c.keys[kid] = entry
	}
	c.lastFetch = fetchedAt
	c.lastAttempt = fetchedAt
	c.lastErr = nil
	c.mu.Unlock()

	c.fetches.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ok")))
	c.logger.Debug("signing keys refreshed", zap.Int("keys", len(parsed)))
	return nil
}

// FetchJWKS fetches the key set from the issuer
func (c *SigningKeyCache) FetchJWKS(ctx context.Context) (*JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrKeyUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrKeyUnavailable, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("%w: failed to decode JWKS: %v", ErrKeyUnavailable, err)
	}

	return &jwks, nil
}

// Stats returns cache statistics
func (c *SigningKeyCache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fresh := 0
	for _, entry := range c.keys {
		if c.now().Sub(entry.fetchedAt) < c.ttl {
			fresh++
		}
	}

	return map[string]interface{}{
		"cached_keys_count": len(c.keys),
		"fresh_keys_count":  fresh,
		"last_fetch":        c.lastFetch,
	}
}

// jwkToRSAPublicKey converts a JWK to an RSA public key
func jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	if len(nBytes) == 0 || len(eBytes) == 0 || len(eBytes) > 4 {
		return nil, errors.New("invalid modulus or exponent length")
	}

	var e int
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
