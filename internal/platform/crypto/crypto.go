// Package crypto seals sensitive configuration at rest (database URLs) and
// handles project key generation, hashing, and constant-time verification
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strings"

	perr "querypilot/internal/platform/errors"
)

// Sealer encrypts and decrypts opaque strings with AES-GCM.
// The key is derived from the service secret, so ciphertexts survive restarts
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a 32-byte key from secret and builds an AEAD sealer
func NewSealer(secret string) (*Sealer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, perr.InvalidArgf("sealer secret must not be empty")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnknown, "sealer cipher init")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnknown, "sealer gcm init")
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext and returns url-safe base64. Empty in, empty out
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", perr.Wrap(err, perr.ErrorCodeUnknown, "sealer nonce")
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal. Empty in, empty out
func (s *Sealer) Open(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", perr.Wrap(err, perr.ErrorCodeInvalidArgument, "sealed value is not base64")
	}
	ns := s.aead.NonceSize()
	if len(raw) < ns {
		return "", perr.InvalidArgf("sealed value too short")
	}
	plain, err := s.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", perr.Wrap(err, perr.ErrorCodeInvalidArgument, "sealed value failed to open")
	}
	return string(plain), nil
}

// MaskURL redacts credentials in a database URL for log-safe display
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}

// Project keys

// KeyPrefix is the printable prefix on generated project keys
const KeyPrefix = "querypilot"

// NewProjectKey returns a fresh opaque project key, prefix_token
func NewProjectKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", perr.Wrap(err, perr.ErrorCodeUnknown, "key entropy")
	}
	return KeyPrefix + "_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashKey returns the hex SHA-256 of a project key; stores hold the hash, not the key
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// VerifyKey compares a raw key against a stored hash in constant time
func VerifyKey(key, storedHash string) bool {
	computed := HashKey(key)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
