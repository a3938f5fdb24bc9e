// Package auth provides API key and JWT authentication for the gateway,
// with pluggable key storage and per-caller rate limiting.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// KeyPrefixLength is the number of characters stored as the display
	// prefix of a key.
	KeyPrefixLength = 8
	// KeyLength is the number of random bytes in a generated key.
	KeyLength = 32
	// DefaultKeyPrefix marks keys issued by this gateway.
	DefaultKeyPrefix = "ik-"
)

// ErrKeyNotFound is returned when no key matches the presented credential.
var ErrKeyNotFound = errors.New("api key not found")

// APIKey is one issued credential. Only the hash is stored.
type APIKey struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	KeyHash   string     `json:"-"`
	KeyPrefix string     `json:"key_prefix"`
	RPMLimit  int        `json:"rpm_limit,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Revoked   bool       `json:"revoked"`
}

// Expired reports whether the key is past its expiry.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// Store persists API keys.
type Store interface {
	// GetByHash returns the key whose hash matches, or ErrKeyNotFound.
	GetByHash(ctx context.Context, hash string) (*APIKey, error)

	// Create persists a new key.
	Create(ctx context.Context, key *APIKey) error

	// Revoke marks a key revoked by ID.
	Revoke(ctx context.Context, id string) error

	// List returns all keys, hashes omitted.
	List(ctx context.Context) ([]*APIKey, error)

	// Close releases store resources.
	Close() error
}

// GenerateAPIKey creates a new random API key with the format ik-<random>.
// Returns the full key (shown to the user once) and the hash (stored).
func GenerateAPIKey() (fullKey, hash string, err error) {
	randomBytes := make([]byte, KeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("generate random bytes: %w", err)
	}

	fullKey = DefaultKeyPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	hash = HashKey(fullKey)
	return fullKey, hash, nil
}

// HashKey creates a SHA-256 hash of the API key.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// VerifyKey checks if a key matches a hash using constant-time comparison.
func VerifyKey(key, hash string) bool {
	keyHash := HashKey(key)
	return subtle.ConstantTimeCompare([]byte(keyHash), []byte(hash)) == 1
}

// ExtractKeyPrefix returns the first N characters of a key for display.
func ExtractKeyPrefix(key string) string {
	if len(key) <= KeyPrefixLength {
		return key
	}
	return key[:KeyPrefixLength]
}

// ParseAuthHeader extracts the credential from an Authorization header.
// Supports "Bearer <key>" and plain "<key>" formats.
func ParseAuthHeader(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("authorization header is empty")
	}

	if strings.HasPrefix(header, "Bearer ") {
		key := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if key == "" {
			return "", fmt.Errorf("bearer token is empty")
		}
		return key, nil
	}

	return strings.TrimSpace(header), nil
}

// MaskKey returns a masked version of the key for logging.
// Example: "ik-abcde...wxyz"
func MaskKey(key string) string {
	if len(key) <= 12 {
		return "***"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
