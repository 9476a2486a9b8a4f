package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	minSaltLength = 16
	minKeyLength  = 16

	// DefaultSaltLength is the salt size in bytes.
	DefaultSaltLength = 32
	// DefaultKeyLength is the derived key size in bytes.
	DefaultKeyLength = 64
	// DefaultMaxSecretBytes bounds the input handed to the KDF.
	DefaultMaxSecretBytes = 1024
	// DefaultTokenLength is the byte length used by GenerateToken when none is given.
	DefaultTokenLength = 32
)

// Algorithm selects the KDF.
type Algorithm string

const (
	AlgorithmScrypt   Algorithm = "scrypt"
	AlgorithmArgon2id Algorithm = "argon2id"
)

var (
	// ErrDerivationFailed is returned by Derive when the random source or the KDF fails.
	ErrDerivationFailed = errors.New("credential derivation failed")
	// ErrSecretTooLong is returned by Derive for secrets above MaxSecretBytes.
	ErrSecretTooLong = errors.New("secret exceeds maximum length")
)

// Config selects the KDF and the record geometry. Zero values take defaults.
type Config struct {
	Algorithm      Algorithm
	SaltLength     int
	KeyLength      int
	MaxSecretBytes int
	Scrypt         ScryptParams
	Argon2         Argon2Params
}

// DefaultConfig returns scrypt with 32-byte salts and 64-byte keys.
func DefaultConfig() Config {
	return Config{
		Algorithm:      AlgorithmScrypt,
		SaltLength:     DefaultSaltLength,
		KeyLength:      DefaultKeyLength,
		MaxSecretBytes: DefaultMaxSecretBytes,
		Scrypt:         ScryptParams{N: 16384, R: 8, P: 1},
		Argon2:         Argon2Params{Memory: 64 * 1024, Time: 3, Parallelism: 2},
	}
}

// Record is the persisted pair produced by Derive.
type Record struct {
	Hash string `json:"hash"`
	Salt string `json:"salt"`
}

// Verifier derives and verifies records. It holds no mutable state and is
// safe for concurrent use.
type Verifier struct {
	kdf        KDF
	saltLength int
	keyLength  int
	maxSecret  int
	random     io.Reader
}

// NewVerifier builds a [Verifier] from cfg.
func NewVerifier(cfg Config) (*Verifier, error) {
	cfg = withDefaults(cfg)

	if cfg.SaltLength < minSaltLength {
		return nil, fmt.Errorf("salt length must be >= %d", minSaltLength)
	}
	if cfg.KeyLength < minKeyLength {
		return nil, fmt.Errorf("key length must be >= %d", minKeyLength)
	}
	if cfg.MaxSecretBytes <= 0 {
		return nil, errors.New("max secret bytes must be > 0")
	}

	var (
		kdf KDF
		err error
	)
	switch cfg.Algorithm {
	case AlgorithmScrypt:
		kdf, err = NewScryptKDF(cfg.Scrypt)
	case AlgorithmArgon2id:
		kdf, err = NewArgon2idKDF(cfg.Argon2)
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", cfg.Algorithm)
	}
	if err != nil {
		return nil, err
	}

	return NewVerifierWithKDF(kdf, cfg.SaltLength, cfg.KeyLength, cfg.MaxSecretBytes)
}

// NewVerifierWithKDF builds a [Verifier] around a caller-supplied KDF.
func NewVerifierWithKDF(kdf KDF, saltLength, keyLength, maxSecretBytes int) (*Verifier, error) {
	if kdf == nil {
		return nil, errors.New("nil kdf")
	}
	if saltLength < minSaltLength || keyLength < minKeyLength || maxSecretBytes <= 0 {
		return nil, errors.New("invalid verifier geometry")
	}
	return &Verifier{
		kdf:        kdf,
		saltLength: saltLength,
		keyLength:  keyLength,
		maxSecret:  maxSecretBytes,
		random:     rand.Reader,
	}, nil
}

// SaltLength returns the configured salt size in bytes.
func (v *Verifier) SaltLength() int { return v.saltLength }

// KeyLength returns the configured derived key size in bytes.
func (v *Verifier) KeyLength() int { return v.keyLength }

// Derive draws a fresh salt and derives a new record for secret. Two calls
// with the same secret never return the same salt.
func (v *Verifier) Derive(secret string) (Record, error) {
	// Raw string bytes are used as provided; no Unicode normalization.
	if len(secret) > v.maxSecret {
		return Record{}, ErrSecretTooLong
	}

	salt := make([]byte, v.saltLength)
	if _, err := io.ReadFull(v.random, salt); err != nil {
		return Record{}, fmt.Errorf("%w: salt: %w", ErrDerivationFailed, err)
	}

	key, err := v.kdf.Key([]byte(secret), salt, v.keyLength)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}
	if len(key) != v.keyLength {
		return Record{}, fmt.Errorf("%w: derived %d bytes, want %d", ErrDerivationFailed, len(key), v.keyLength)
	}

	return Record{
		Hash: hex.EncodeToString(key),
		Salt: hex.EncodeToString(salt),
	}, nil
}

// Verify reports whether secret matches the stored pair. It never panics;
// any decoding, length or KDF problem yields false.
func (v *Verifier) Verify(secret, storedHash, storedSalt string) bool {
	if v == nil || len(secret) > v.maxSecret {
		return false
	}

	expected, err := hex.DecodeString(storedHash)
	if err != nil || len(expected) != v.keyLength {
		return false
	}
	salt, err := hex.DecodeString(storedSalt)
	if err != nil || len(salt) == 0 {
		return false
	}

	computed, err := v.kdf.Key([]byte(secret), salt, v.keyLength)
	if err != nil || len(computed) != v.keyLength {
		return false
	}

	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// VerifyRecord is Verify for a [Record].
func (v *Verifier) VerifyRecord(secret string, rec Record) bool {
	return v.Verify(secret, rec.Hash, rec.Salt)
}

// GenerateToken returns length random bytes as lowercase hex.
func (v *Verifier) GenerateToken(length int) (string, error) {
	return generateToken(v.random, length)
}

// GenerateToken returns length bytes from crypto/rand as lowercase hex.
// A non-positive length uses DefaultTokenLength.
func GenerateToken(length int) (string, error) {
	return generateToken(rand.Reader, length)
}

func generateToken(r io.Reader, length int) (string, error) {
	if length <= 0 {
		length = DefaultTokenLength
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Algorithm == "" {
		cfg.Algorithm = def.Algorithm
	}
	if cfg.SaltLength == 0 {
		cfg.SaltLength = def.SaltLength
	}
	if cfg.KeyLength == 0 {
		cfg.KeyLength = def.KeyLength
	}
	if cfg.MaxSecretBytes == 0 {
		cfg.MaxSecretBytes = def.MaxSecretBytes
	}
	if cfg.Scrypt == (ScryptParams{}) {
		cfg.Scrypt = def.Scrypt
	}
	if cfg.Argon2 == (Argon2Params{}) {
		cfg.Argon2 = def.Argon2
	}
	return cfg
}
