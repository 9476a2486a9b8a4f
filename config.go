package gatekeep

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/staynest/gatekeep/password"
)

// Operation classes shipped in [DefaultConfig].
const (
	OperationCheckEmail    = "check-email"
	OperationLogin         = "login"
	OperationSignup        = "signup"
	OperationPasswordReset = "password-reset"
)

// Config is the complete engine configuration. Treat it as immutable after
// passing it to [Builder.WithConfig].
type Config struct {
	Admission AdmissionConfig
	Password  PasswordConfig
	Token     TokenConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
ADMISSION CONFIG
====================================
*/

// OperationPolicy is the ceiling for one operation class: Points requests
// per Window per caller key.
type OperationPolicy struct {
	Points int
	Window time.Duration
}

// AdmissionConfig configures the per-operation limiters.
//
// FailOpen admits requests when the store is unreachable instead of
// returning the store error. The failure is still logged and counted.
type AdmissionConfig struct {
	Prefix     string
	FailOpen   bool
	Operations map[string]OperationPolicy
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the KDF and the secret policy applied on derive.
type PasswordConfig struct {
	Algorithm      password.Algorithm
	SaltLength     int
	KeyLength      int
	MinSecretBytes int
	MaxSecretBytes int
	Scrypt         password.ScryptParams
	Argon2         password.Argon2Params
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures access tokens issued after authentication.
// Disabled by default; Authenticate then returns no token.
type TokenConfig struct {
	Enabled       bool
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a fail-closed configuration with the standard
// operation classes and scrypt credentials.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Admission: AdmissionConfig{
			Prefix:   "rate-limit:",
			FailOpen: false,
			Operations: map[string]OperationPolicy{
				OperationCheckEmail:    {Points: 5, Window: 60 * time.Second},
				OperationLogin:         {Points: 10, Window: 15 * time.Minute},
				OperationSignup:        {Points: 5, Window: time.Hour},
				OperationPasswordReset: {Points: 3, Window: time.Hour},
			},
		},
		Password: PasswordConfig{
			Algorithm:      pw.Algorithm,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			MinSecretBytes: 8,
			MaxSecretBytes: pw.MaxSecretBytes,
			Scrypt:         pw.Scrypt,
			Argon2:         pw.Argon2,
		},
		Token: TokenConfig{
			Enabled:       false,
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "gatekeep",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Admission.Operations != nil {
		out.Admission.Operations = make(map[string]OperationPolicy, len(cfg.Admission.Operations))
		for name, policy := range cfg.Admission.Operations {
			out.Admission.Operations[name] = policy
		}
	}
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c PasswordConfig) verifierConfig() password.Config {
	return password.Config{
		Algorithm:      c.Algorithm,
		SaltLength:     c.SaltLength,
		KeyLength:      c.KeyLength,
		MaxSecretBytes: c.MaxSecretBytes,
		Scrypt:         c.Scrypt,
		Argon2:         c.Argon2,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Admission
	if len(c.Admission.Operations) == 0 {
		return errors.New("Admission Operations must not be empty")
	}
	for name, policy := range c.Admission.Operations {
		if strings.TrimSpace(name) == "" {
			return errors.New("Admission operation name must not be blank")
		}
		if strings.Contains(name, ":") {
			return fmt.Errorf("Admission operation %q must not contain ':'", name)
		}
		if policy.Points <= 0 {
			return fmt.Errorf("Admission operation %q Points must be > 0", name)
		}
		if policy.Window < time.Second || policy.Window%time.Second != 0 {
			return fmt.Errorf("Admission operation %q Window must be a positive number of seconds", name)
		}
	}

	// Password
	switch c.Password.Algorithm {
	case password.AlgorithmScrypt, password.AlgorithmArgon2id:
	default:
		return errors.New("Password Algorithm must be 'scrypt' or 'argon2id'")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinSecretBytes < 0 {
		return errors.New("Password MinSecretBytes must be >= 0")
	}
	if c.Password.MaxSecretBytes <= 0 {
		return errors.New("Password MaxSecretBytes must be > 0")
	}
	if c.Password.MinSecretBytes > c.Password.MaxSecretBytes {
		return errors.New("Password MinSecretBytes must be <= MaxSecretBytes")
	}

	// Token
	if c.Token.Enabled {
		if c.Token.AccessTTL <= 0 {
			return errors.New("Token AccessTTL must be > 0")
		}
		switch c.Token.SigningMethod {
		case "ed25519":
			if len(c.Token.PrivateKey) == 0 || len(c.Token.PublicKey) == 0 {
				return errors.New("ed25519 requires PrivateKey and PublicKey")
			}
		case "hs256":
			if len(c.Token.PrivateKey) < 32 {
				return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
			}
		default:
			return errors.New("unsupported Token signing method")
		}
		if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
			return errors.New("Token Leeway must be between 0 and 2m")
		}
		if c.Token.Audience != "" && strings.TrimSpace(c.Token.Audience) == "" {
			return errors.New("Token Audience must not be blank")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
