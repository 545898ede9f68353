package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

// minHMACKeyBytes is the shortest HS256 secret NewManager accepts.
const minHMACKeyBytes = 32

var (
	// ErrExpired is returned for a well-formed, correctly signed token whose
	// exp has passed.
	ErrExpired = errors.New("session token expired")
	// ErrInvalid covers every other rejection: bad signature, wrong algorithm,
	// malformed input or missing claims.
	ErrInvalid = errors.New("session token invalid")
)

// Config defines signing and validation parameters.
type Config struct {
	SessionTTL    time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for HS256, or an Ed25519 private key
	// (raw or PEM) for signing.
	PrivateKey []byte
	// PublicKey is the Ed25519 verification key (raw or PEM).
	PublicKey []byte
	Issuer    string
	Leeway    time.Duration
	// MaxFutureIAT is how far ahead of the local clock an issued-at claim may
	// be, to absorb skew between instances. Zero means 10 minutes.
	MaxFutureIAT time.Duration
	KeyID        string
	// Now overrides time.Now for issuance and validation.
	Now func() time.Time
}

// Manager signs and verifies session tokens. It is immutable after
// construction and safe for concurrent use.
type Manager struct {
	config    Config
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	parser    *jwt.Parser
}

// Claims is the session claim set.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("invalid session TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg}
	switch cfg.SigningMethod {
	case "", MethodHS256:
		m.config.SigningMethod = MethodHS256
		if len(cfg.PrivateKey) < minHMACKeyBytes {
			return nil, fmt.Errorf("hs256 requires a secret of at least %d bytes", minHMACKeyBytes)
		}
		m.method = jwt.SigningMethodHS256
		m.signKey, m.verifyKey = cfg.PrivateKey, cfg.PrivateKey
	case MethodEd25519:
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key")
		}
		pub, err := parseEdPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		m.method, m.verifyKey = jwt.SigningMethodEdDSA, pub
		// A verify-only manager has no private key; Issue then fails.
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	m.parser = jwt.NewParser(options...)

	return m, nil
}

// TTL returns the configured session lifetime.
func (j *Manager) TTL() time.Duration {
	return j.config.SessionTTL
}

// Issue signs a token for userID and email and returns it with its expiry.
func (j *Manager) Issue(userID, email string) (string, time.Time, error) {
	if userID == "" || email == "" {
		return "", time.Time{}, errors.New("user id and email are required")
	}

	now := j.config.Now()
	exp := now.Add(j.config.SessionTTL)
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}

	if j.signKey == nil {
		return "", time.Time{}, errors.New("signing key not configured")
	}
	token := jwt.NewWithClaims(j.method, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signed, err := token.SignedString(j.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	// NumericDate truncates to whole seconds.
	return signed, claims.ExpiresAt.Time, nil
}

// Validate verifies signature, algorithm and required claims. Expired tokens
// yield ErrExpired; everything else yields ErrInvalid.
func (j *Manager) Validate(tokenStr string) (*Claims, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return nil, ErrInvalid
	}

	token, err := j.parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != j.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if j.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != j.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return j.verifyKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalid
	}
	if claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing iat", ErrInvalid)
	}
	if claims.UserID == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: missing identity claims", ErrInvalid)
	}
	if claims.IssuedAt.Time.After(j.config.Now().Add(j.config.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrInvalid)
	}

	return claims, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
