package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	// maxVerifyMemoryKB caps the cost a stored hash can demand from Verify.
	maxVerifyMemoryKB uint32 = 1 << 20
	maxVerifyTime     uint32 = 64
)

// ErrMalformedHash is returned for argon2id strings that do not parse or that
// name parameters outside the accepted range.
var ErrMalformedHash = errors.New("malformed argon2id hash")

// Argon2Config holds the argon2id cost parameters. Memory is in KiB.
type Argon2Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KB", minMemoryKB)
	case c.Memory > maxVerifyMemoryKB:
		return fmt.Errorf("password memory must be <= %d KB", maxVerifyMemoryKB)
	case c.Time < minTimeCost || c.Time > maxVerifyTime:
		return fmt.Errorf("password time must be between %d and %d", minTimeCost, maxVerifyTime)
	case c.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	}
	return nil
}

// Argon2 hashes credentials with argon2id in PHC string format:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>
//
// Salt and key are unpadded standard base64, as written by libsodium and
// argon2-cffi. Padded input is accepted on verify.
type Argon2 struct {
	cfg Argon2Config
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{cfg: cfg}, nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		AlgorithmArgon2, argon2.Version,
		p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

func (p phc) derive(password string) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
}

// Hash draws a fresh salt and returns the encoded hash. Input bytes are used
// as given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}

	p := phc{
		memory:      a.cfg.Memory,
		time:        a.cfg.Time,
		parallelism: a.cfg.Parallelism,
		salt:        make([]byte, a.cfg.SaltLength),
		key:         make([]byte, a.cfg.KeyLength),
	}
	if _, err := rand.Read(p.salt); err != nil {
		return "", err
	}
	p.key = p.derive(password)
	return p.String(), nil
}

// Verify recomputes the key with the parameters stored in encodedHash and
// compares in constant time.
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	p, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(p.derive(password), p.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash is cheaper than the current
// configuration in any dimension, or uses a different key or salt length.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	p, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return p.memory < a.cfg.Memory ||
		p.time < a.cfg.Time ||
		p.parallelism < a.cfg.Parallelism ||
		uint32(len(p.key)) != a.cfg.KeyLength ||
		uint32(len(p.salt)) < a.cfg.SaltLength, nil
}

func parsePHC(s string) (phc, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != string(AlgorithmArgon2) {
		return phc{}, ErrMalformedHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return phc{}, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, parts[2])
	}

	var p phc
	if err := p.parseParams(parts[3]); err != nil {
		return phc{}, err
	}

	salt, err := decodeB64(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return phc{}, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	key, err := decodeB64(parts[5])
	if err != nil || len(key) < int(minKeyLength) {
		return phc{}, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	p.salt, p.key = salt, key
	return p, nil
}

// parseParams reads "m=..,t=..,p=.." in that order.
func (p *phc) parseParams(s string) error {
	fields := strings.Split(s, ",")
	if len(fields) != 3 {
		return fmt.Errorf("%w: parameters", ErrMalformedHash)
	}

	vals := [3]uint64{}
	for i, name := range [3]string{"m", "t", "p"} {
		raw, ok := strings.CutPrefix(fields[i], name+"=")
		if !ok {
			return fmt.Errorf("%w: parameter %s", ErrMalformedHash, name)
		}
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: parameter %s", ErrMalformedHash, name)
		}
		vals[i] = v
	}

	m, t, par := vals[0], vals[1], vals[2]
	if m < uint64(minMemoryKB) || m > uint64(maxVerifyMemoryKB) ||
		t < uint64(minTimeCost) || t > uint64(maxVerifyTime) ||
		par < uint64(minParallelism) || par > 255 {
		return fmt.Errorf("%w: parameters out of range", ErrMalformedHash)
	}
	p.memory, p.time, p.parallelism = uint32(m), uint32(t), uint8(par)
	return nil
}

func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
