// Package auth implements the bearer-token authenticator: format
// validation of the presented key plus a constant-time bcrypt compare
// against every currently-active stored hash.
package auth

import (
	"crypto/rand"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// KeyLength is the exact length of a valid API key: 40 characters drawn
// from the key alphabet (digits + upper + lower).
const KeyLength = 40

// BcryptCost is the work factor used for stored key hashes.
const BcryptCost = 12

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// keyAlphabetRejectionCeiling is the largest byte value that keeps
// b%len(keyAlphabet) uniform; bytes at or above it are discarded instead
// of reduced, avoiding the slight modulo bias a plain b%62 would
// introduce (256 is not a multiple of 62).
const keyAlphabetRejectionCeiling = 256 - (256 % len(keyAlphabet))

// GenerateAPIKey produces a fresh 40-character key drawn from the key
// alphabet. Used by the (externally owned) key-issuance flow; kept here
// because the format invariant belongs next to the validator that
// enforces it.
func GenerateAPIKey() (string, error) {
	var sb strings.Builder
	buf := make([]byte, KeyLength)
	for sb.Len() < KeyLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate api key: %w", err)
		}
		for _, b := range buf {
			if sb.Len() == KeyLength {
				break
			}
			if int(b) >= keyAlphabetRejectionCeiling {
				continue
			}
			sb.WriteByte(keyAlphabet[int(b)%len(keyAlphabet)])
		}
	}
	return sb.String(), nil
}

// HashAPIKey hashes a plaintext key for storage.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CompareAPIKey reports whether key matches hash, using bcrypt's
// constant-time comparison. A non-nil error is treated as a non-match,
// never as a distinct failure mode (no "unknown" vs "wrong" distinction
// is surfaced to the caller).
func CompareAPIKey(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// ValidateKeyFormat checks the presented token against the key alphabet
// and exact length, without touching the database.
func ValidateKeyFormat(key string) error {
	if len(key) != KeyLength {
		return fmt.Errorf("key must be exactly %d characters", KeyLength)
	}
	for _, r := range key {
		if !strings.ContainsRune(keyAlphabet, r) {
			return fmt.Errorf("key contains characters outside the expected alphabet")
		}
	}
	return nil
}
