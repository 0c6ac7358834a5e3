package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefixLen is the number of leading token characters stored for lookup.
const KeyPrefixLen = 8

const keyEntropyBytes = 32

func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether plaintext matches hash. A malformed or
// empty hash is a mismatch, never an error.
func VerifyPassword(plaintext, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// GenerateKey returns a new API key as plaintext (shown to the caller once),
// its storage digest and its lookup prefix.
func GenerateKey(servicePrefix string) (plaintext, hash, lookup string, err error) {
	raw := make([]byte, keyEntropyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("generate key: %w", err)
	}
	plaintext = servicePrefix + base64.RawURLEncoding.EncodeToString(raw)
	return plaintext, HashKey(plaintext), plaintext[:KeyPrefixLen], nil
}

// HashKey is the fast digest used for high-entropy API keys.
func HashKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// StripBearer removes an optional case-insensitive "Bearer " scheme and
// surrounding whitespace.
func StripBearer(header string) string {
	h := strings.TrimSpace(header)
	if len(h) >= 7 && strings.EqualFold(h[:7], "bearer ") {
		h = strings.TrimSpace(h[7:])
	}
	return h
}

func hashesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
