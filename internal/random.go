package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
)

const (
	// TokenSecretSize is the random part of an account token.
	TokenSecretSize   = 32
	accountTokenRawSz = 16 + TokenSecretSize
)

// ErrMalformedToken is returned by DecodeAccountToken for any input it cannot parse.
var ErrMalformedToken = errors.New("malformed account token")

// NewTokenSecret draws a fresh token secret.
func NewTokenSecret() ([TokenSecretSize]byte, error) {
	var secret [TokenSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashTokenSecret returns the hex sha256 of secret. Only this hash is stored.
func HashTokenSecret(secret [TokenSecretSize]byte) string {
	sum := sha256.Sum256(secret[:])
	return hex.EncodeToString(sum[:])
}

// TokenHashEqual compares two stored hashes in constant time.
func TokenHashEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// EncodeAccountToken packs a uuid user id and a secret into a URL-safe token
// (base64url, no padding).
func EncodeAccountToken(userID string, secret [TokenSecretSize]byte) (string, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return "", err
	}

	var raw [accountTokenRawSz]byte
	copy(raw[:16], id[:])
	copy(raw[16:], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DecodeAccountToken reverses EncodeAccountToken.
func DecodeAccountToken(token string) (string, [TokenSecretSize]byte, error) {
	var secret [TokenSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != accountTokenRawSz {
		return "", secret, ErrMalformedToken
	}

	id, err := uuid.FromBytes(raw[:16])
	if err != nil {
		return "", secret, ErrMalformedToken
	}
	copy(secret[:], raw[16:])

	return id.String(), secret, nil
}
