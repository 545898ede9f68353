package password

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinBcryptCost is the lowest work factor Bcrypt accepts.
	MinBcryptCost = 12
	// DefaultBcryptCost is used when BcryptConfig.Cost is zero.
	DefaultBcryptCost = 12

	bcryptMaxInput = 72
)

// BcryptConfig configures the bcrypt hasher.
type BcryptConfig struct {
	Cost int
}

// Bcrypt hashes credentials with bcrypt.
//
// bcrypt reads at most 72 bytes of input while the policy allows 128
// characters, so longer inputs are reduced to base64(sha256(input)) on both the
// hash and the verify path.
type Bcrypt struct {
	cost int
}

// NewBcrypt validates cfg and returns a hasher.
func NewBcrypt(cfg BcryptConfig) (*Bcrypt, error) {
	cost := cfg.Cost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < MinBcryptCost {
		return nil, fmt.Errorf("password bcrypt cost must be >= %d", MinBcryptCost)
	}
	if cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("password bcrypt cost must be <= %d", bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

// Cost returns the configured work factor.
func (b *Bcrypt) Cost() int {
	return b.cost
}

// Hash returns a salted bcrypt hash. Two calls with the same input return
// different hashes.
func (b *Bcrypt) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	out, err := bcrypt.GenerateFromPassword(bcryptInput(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether password matches encodedHash. A mismatch is not an
// error; a malformed hash is.
func (b *Bcrypt) Verify(password string, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), bcryptInput(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// NeedsUpgrade reports whether encodedHash was produced with a lower cost.
func (b *Bcrypt) NeedsUpgrade(encodedHash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, err
	}
	return cost < b.cost, nil
}

func bcryptInput(password string) []byte {
	if len(password) <= bcryptMaxInput {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
