package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/staynest/gatekeep"
	"github.com/staynest/gatekeep/password"
)

// Config contains gatekeepd configuration parameters.
type Config struct {
	LogLevel  int       `env:"LOG_LEVEL" envDefault:"0"`
	LogFormat string    `env:"LOG_FORMAT" envDefault:"text"`
	HTTP      HTTP      `envPrefix:"HTTP_"`
	Redis     Redis     `envPrefix:"REDIS_"`
	Admission Admission `envPrefix:"ADMISSION_"`
	KDF       KDF       `envPrefix:"KDF_"`
	Token     Token     `envPrefix:"TOKEN_"`
	Audit     Audit     `envPrefix:"AUDIT_"`
	Accounts  Accounts  `envPrefix:"ACCOUNTS_"`
}

// HTTP contains listener parameters.
type HTTP struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	TrustForwarded  bool          `env:"TRUST_FORWARDED" envDefault:"false"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Redis contains counter store parameters. An empty Addr starts an
// in-process miniredis instead.
type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// Admission contains limiter overrides. Zero points keep the default policy.
type Admission struct {
	Prefix           string        `env:"PREFIX" envDefault:"rate-limit:"`
	FailOpen         bool          `env:"FAIL_OPEN" envDefault:"false"`
	CheckEmailPoints int           `env:"CHECK_EMAIL_POINTS"`
	CheckEmailWindow time.Duration `env:"CHECK_EMAIL_WINDOW" envDefault:"60s"`
	LoginPoints      int           `env:"LOGIN_POINTS"`
	LoginWindow      time.Duration `env:"LOGIN_WINDOW" envDefault:"15m"`
}

// KDF contains credential derivation parameters.
type KDF struct {
	Algorithm string `env:"ALGORITHM" envDefault:"scrypt"`
	ScryptN   int    `env:"SCRYPT_N" envDefault:"16384"`
	Time      uint32 `env:"TIME" envDefault:"3"`
	MemKiB    uint32 `env:"MEM" envDefault:"65536"`
	Par       uint8  `env:"PAR" envDefault:"2"`
}

// Token contains access token parameters. Tokens are disabled without a secret.
type Token struct {
	Secret string        `env:"SECRET"`
	TTL    time.Duration `env:"TTL" envDefault:"15m"`
	Issuer string        `env:"ISSUER" envDefault:"gatekeep"`
}

// Audit contains audit log parameters.
type Audit struct {
	Enabled    bool `env:"ENABLED" envDefault:"false"`
	BufferSize int  `env:"BUFFER_SIZE" envDefault:"1024"`
}

// Accounts contains demo account store parameters.
type Accounts struct {
	AdminIdentifier string        `env:"ADMIN_IDENTIFIER"`
	ResetTokenTTL   time.Duration `env:"RESET_TOKEN_TTL" envDefault:"30m"`
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// Engine maps the environment onto an engine configuration.
func (c *Config) Engine() gatekeep.Config {
	cfg := gatekeep.DefaultConfig()

	cfg.Admission.Prefix = c.Admission.Prefix
	cfg.Admission.FailOpen = c.Admission.FailOpen
	if c.Admission.CheckEmailPoints > 0 {
		cfg.Admission.Operations[gatekeep.OperationCheckEmail] = gatekeep.OperationPolicy{
			Points: c.Admission.CheckEmailPoints,
			Window: c.Admission.CheckEmailWindow,
		}
	}
	if c.Admission.LoginPoints > 0 {
		cfg.Admission.Operations[gatekeep.OperationLogin] = gatekeep.OperationPolicy{
			Points: c.Admission.LoginPoints,
			Window: c.Admission.LoginWindow,
		}
	}

	cfg.Password.Algorithm = password.Algorithm(c.KDF.Algorithm)
	cfg.Password.Scrypt.N = c.KDF.ScryptN
	cfg.Password.Argon2 = password.Argon2Params{
		Memory:      c.KDF.MemKiB,
		Time:        c.KDF.Time,
		Parallelism: c.KDF.Par,
	}

	if c.Token.Secret != "" {
		cfg.Token.Enabled = true
		cfg.Token.SigningMethod = "hs256"
		cfg.Token.PrivateKey = []byte(c.Token.Secret)
		cfg.Token.AccessTTL = c.Token.TTL
		cfg.Token.Issuer = c.Token.Issuer
	}

	cfg.Audit.Enabled = c.Audit.Enabled
	cfg.Audit.BufferSize = c.Audit.BufferSize

	return cfg
}
