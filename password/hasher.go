package password

import (
	"errors"
	"strings"
)

// Algorithm names a supported hashing scheme.
type Algorithm string

const (
	AlgorithmBcrypt Algorithm = "bcrypt"
	AlgorithmArgon2 Algorithm = "argon2id"
)

// ErrUnknownHashFormat is returned when no hasher recognises a stored hash.
var ErrUnknownHashFormat = errors.New("unknown password hash format")

// Hasher produces and verifies irreversible credential hashes.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// DetectAlgorithm inspects the hash prefix.
func DetectAlgorithm(encodedHash string) (Algorithm, bool) {
	switch {
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return AlgorithmArgon2, true
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		return AlgorithmBcrypt, true
	default:
		return "", false
	}
}

// Multi hashes with a primary algorithm and verifies any supported one.
type Multi struct {
	primary   Algorithm
	bcrypt    *Bcrypt
	argon2    *Argon2
	hashPrime Hasher
}

// NewMulti builds a Multi hasher. The hasher for primary must be non-nil; the
// other may be nil, in which case hashes in its format fail verification.
func NewMulti(primary Algorithm, b *Bcrypt, a *Argon2) (*Multi, error) {
	m := &Multi{primary: primary, bcrypt: b, argon2: a}
	switch primary {
	case AlgorithmBcrypt:
		if b == nil {
			return nil, errors.New("bcrypt hasher required for primary bcrypt")
		}
		m.hashPrime = b
	case AlgorithmArgon2:
		if a == nil {
			return nil, errors.New("argon2 hasher required for primary argon2id")
		}
		m.hashPrime = a
	default:
		return nil, errors.New("unsupported password algorithm")
	}
	return m, nil
}

// Primary returns the algorithm new hashes are produced with.
func (m *Multi) Primary() Algorithm {
	return m.primary
}

func (m *Multi) Hash(password string) (string, error) {
	return m.hashPrime.Hash(password)
}

func (m *Multi) Verify(password, encodedHash string) (bool, error) {
	h, err := m.forHash(encodedHash)
	if err != nil {
		return false, err
	}
	return h.Verify(password, encodedHash)
}

// NeedsUpgrade is true for hashes in a non-primary format, or in the primary
// format with weaker parameters.
func (m *Multi) NeedsUpgrade(encodedHash string) (bool, error) {
	alg, ok := DetectAlgorithm(encodedHash)
	if !ok {
		return false, ErrUnknownHashFormat
	}
	if alg != m.primary {
		return true, nil
	}
	return m.hashPrime.NeedsUpgrade(encodedHash)
}

func (m *Multi) forHash(encodedHash string) (Hasher, error) {
	alg, ok := DetectAlgorithm(encodedHash)
	if !ok {
		return nil, ErrUnknownHashFormat
	}
	switch {
	case alg == AlgorithmBcrypt && m.bcrypt != nil:
		return m.bcrypt, nil
	case alg == AlgorithmArgon2 && m.argon2 != nil:
		return m.argon2, nil
	}
	return nil, ErrUnknownHashFormat
}
