// Package secrets provides tenant-scoped authenticated encryption for stored secrets.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/tenant-gateway/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/sync/semaphore"
)

const (
	// MinMasterKeyLength is the shortest master secret accepted at startup
	MinMasterKeyLength = 32

	// KDFIterations is the PBKDF2 work factor for tenant keys
	KDFIterations = 100000

	KeySize  = 32
	SaltSize = 32
	IVSize   = 16
	TagSize  = 16
)

var (
	// ErrWeakMasterKey is returned by New when the master secret is too short
	ErrWeakMasterKey = errors.New("master key must be at least 32 characters")

	// ErrAuthenticationFailed is returned for every decryption failure
	ErrAuthenticationFailed = errors.New("secret authentication failed")
)

// DecryptionError carries the correlation id logged for a failed decryption
type DecryptionError struct {
	CorrelationID string
}

func (e *DecryptionError) Error() string {
	return ErrAuthenticationFailed.Error()
}

func (e *DecryptionError) Unwrap() error {
	return ErrAuthenticationFailed
}

// Cipher encrypts and decrypts secrets with AES-256-GCM. Tenant-scoped secrets
// use a PBKDF2-SHA256 key bound to the tenant id and a per-secret salt.
type Cipher struct {
	masterKey  []byte
	globalKey  []byte
	iterations int
	kdf        *semaphore.Weighted
	logger     *zap.Logger

	operations  metric.Int64Counter
	kdfDuration metric.Float64Histogram
}

// New creates a Cipher. workers bounds how many key derivations run at once.
func New(masterKey string, workers int, logger *zap.Logger, meter metric.Meter) (*Cipher, error) {
	if len(masterKey) < MinMasterKeyLength {
		return nil, ErrWeakMasterKey
	}
	if workers < 1 {
		workers = 1
	}

	operations, err := meter.Int64Counter(
		"secrets.operations",
		metric.WithDescription("Secret cipher operations by kind and result"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	kdfDuration, err := meter.Float64Histogram(
		"secrets.kdf.duration_ms",
		metric.WithDescription("Tenant key derivation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	globalKey := sha256.Sum256([]byte(masterKey))

	return &Cipher{
		masterKey:   []byte(masterKey),
		globalKey:   globalKey[:],
		iterations:  KDFIterations,
		kdf:         semaphore.NewWeighted(int64(workers)),
		logger:      logger,
		operations:  operations,
		kdfDuration: kdfDuration,
	}, nil
}

// Encrypt seals plaintext under a fresh salt and IV. An empty tenantID selects
// the global key.
func (c *Cipher) Encrypt(ctx context.Context, plaintext, tenantID string) (models.EncryptedSecret, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return models.EncryptedSecret{}, fmt.Errorf("failed to generate salt: %w", err)
	}
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return models.EncryptedSecret{}, fmt.Errorf("failed to generate iv: %w", err)
	}

	key, err := c.deriveKey(ctx, tenantID, salt)
	if err != nil {
		return models.EncryptedSecret{}, err
	}

	aead, err := newAEAD(key)
	if err != nil {
		return models.EncryptedSecret{}, err
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	split := len(sealed) - TagSize

	c.record(ctx, "encrypt", "ok")

	return models.EncryptedSecret{
		Ciphertext: sealed[:split:split],
		IV:         iv,
		AuthTag:    sealed[split:],
		Salt:       salt,
	}, nil
}

// Decrypt opens a secret sealed by Encrypt with the same tenantID. Every
// failure returns a *DecryptionError wrapping ErrAuthenticationFailed.
func (c *Cipher) Decrypt(ctx context.Context, secret models.EncryptedSecret, tenantID string) (string, error) {
	if len(secret.IV) != IVSize || len(secret.AuthTag) != TagSize || len(secret.Salt) != SaltSize {
		return "", c.fail(ctx, tenantID)
	}

	key, err := c.deriveKey(ctx, tenantID, secret.Salt)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", c.fail(ctx, tenantID)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return "", c.fail(ctx, tenantID)
	}

	sealed := make([]byte, 0, len(secret.Ciphertext)+TagSize)
	sealed = append(sealed, secret.Ciphertext...)
	sealed = append(sealed, secret.AuthTag...)

	plaintext, err := aead.Open(nil, secret.IV, sealed, nil)
	if err != nil {
		return "", c.fail(ctx, tenantID)
	}

	c.record(ctx, "decrypt", "ok")
	return string(plaintext), nil
}

// deriveKey returns the global key or a PBKDF2 tenant key. Derivations are
// bounded by the worker semaphore.
func (c *Cipher) deriveKey(ctx context.Context, tenantID string, salt []byte) ([]byte, error) {
	if tenantID == "" {
		return c.globalKey, nil
	}

	if err := c.kdf.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.kdf.Release(1)

	label := make([]byte, 0, len("tenant:")+len(tenantID)+1+len(salt))
	label = append(label, "tenant:"...)
	label = append(label, tenantID...)
	label = append(label, ':')
	label = append(label, salt...)

	start := time.Now()
	key := pbkdf2.Key(c.masterKey, label, c.iterations, KeySize, sha256.New)
	c.kdfDuration.Record(ctx, float64(time.Since(start).Milliseconds()))

	return key, nil
}

func (c *Cipher) fail(ctx context.Context, tenantID string) error {
	correlationID := uuid.NewString()
	c.record(ctx, "decrypt", "auth_failed")
	c.logger.Warn("secret decryption failed",
		zap.String("correlation_id", correlationID),
		zap.Bool("tenant_scoped", tenantID != ""),
	)
	return &DecryptionError{CorrelationID: correlationID}
}

func (c *Cipher) record(ctx context.Context, op, result string) {
	c.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	))
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, IVSize)
}
