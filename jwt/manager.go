package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod names a supported signing algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	// ErrVerifyOnly is returned by CreateAccess on a manager built without a
	// signing key.
	ErrVerifyOnly = errors.New("access token manager has no signing key")
	// ErrMissingLogin marks tokens that do not name both a user and a login.
	ErrMissingLogin = errors.New("access token missing uid or sid")
	// ErrSubjectMismatch marks tokens whose subject differs from uid.
	ErrSubjectMismatch = errors.New("access token subject does not match uid")
	// ErrMissingIssuedAt marks tokens without an iat claim.
	ErrMissingIssuedAt = errors.New("access token missing iat")
)

// Config configures a [Manager]. With Ed25519, PublicKey alone gives a
// verify-only manager.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Manager signs and parses access tokens. Keys are decoded once by
// [NewManager].
type Manager struct {
	ttl       time.Duration
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	audience  string
	parser    *jwt.Parser
}

// AccessClaims are the claims carried by an access token. Each successful
// login mints a fresh SID.
type AccessClaims struct {
	UID  string `json:"uid"`
	SID  string `json:"sid"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Validate runs after the registered-claim checks during parsing. Those
// already reject an iat in the future beyond the leeway.
func (c AccessClaims) Validate() error {
	if c.IssuedAt == nil {
		return ErrMissingIssuedAt
	}
	if c.UID == "" || c.SID == "" {
		return ErrMissingLogin
	}
	if c.Subject != "" && c.Subject != c.UID {
		return ErrSubjectMismatch
	}
	return nil
}

// NewManager validates cfg, decodes its keys and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("access TTL must be > 0")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("leeway must be between 0 and 2m")
	}

	m := &Manager{
		ttl:      cfg.AccessTTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a key of at least 32 bytes")
		}
		key := append([]byte(nil), cfg.PrivateKey...)
		m.method, m.signKey, m.verifyKey = jwt.SigningMethodHS256, key, key
	case MethodEd25519:
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires a public key")
		}
		pub, err := parseEdPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		m.method, m.verifyKey = jwt.SigningMethodEdDSA, pub
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			if !pub.Equal(priv.Public()) {
				return nil, errors.New("ed25519 private key does not match public key")
			}
			m.signKey = priv
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(options...)

	return m, nil
}

// CreateAccess signs a token for the login sid of user uid and returns it
// with its expiry.
func (m *Manager) CreateAccess(uid, sid, role string) (string, time.Time, error) {
	if m.signKey == nil {
		return "", time.Time{}, ErrVerifyOnly
	}
	if uid == "" || sid == "" {
		return "", time.Time{}, ErrMissingLogin
	}

	now := time.Now()
	expiresAt := now.Add(m.ttl)
	claims := AccessClaims{
		UID:  uid,
		SID:  sid,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseAccess verifies token and returns its claims. Errors wrap the
// golang-jwt sentinels (jwt.ErrTokenExpired and friends) or the ones above.
func (m *Manager) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, err := m.parser.ParseWithClaims(token, claims, m.keyFunc); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != m.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm %s", t.Method.Alg())
	}
	return m.verifyKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return priv, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return pub, nil
}
