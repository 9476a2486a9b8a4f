package gatekeep

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/staynest/gatekeep/jwt"
	"github.com/staynest/gatekeep/password"
	"github.com/staynest/gatekeep/ratelimit"
)

// Builder assembles an [Engine]. Configure it during startup, call Build
// once and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  ratelimit.Store

	provider  CredentialProvider
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs every admission limiter with client. Any go-redis
// client works: single node, cluster or sentinel failover.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore uses a custom admission store. It takes precedence over WithRedis.
func (b *Builder) WithStore(store ratelimit.Store) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithCredentialProvider(p CredentialProvider) *Builder {
	b.provider = p
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. A Builder can
// only be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("admission store required: call WithRedis or WithStore")
		}
		store = ratelimit.NewRedisStore(b.redis)
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- ADMISSION --------
	limiters := make(map[string]*ratelimit.Limiter, len(cfg.Admission.Operations))
	for name, policy := range cfg.Admission.Operations {
		l, err := ratelimit.New(store, ratelimit.Policy{
			Points:   policy.Points,
			Duration: policy.Window,
			Prefix:   operationPrefix(cfg.Admission.Prefix, name),
		})
		if err != nil {
			return nil, fmt.Errorf("admission operation %q: %w", name, err)
		}
		limiters[name] = l
	}

	// -------- CREDENTIALS --------
	verifier, err := password.NewVerifier(cfg.Password.verifierConfig())
	if err != nil {
		return nil, err
	}

	decoySecret, err := verifier.GenerateToken(password.DefaultTokenLength)
	if err != nil {
		return nil, err
	}
	decoy, err := verifier.Derive(decoySecret)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		limiters: limiters,
		verifier: verifier,
		decoy:    decoy,
		provider: b.provider,
		audit:    newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:  NewMetrics(cfg.Metrics),
		logger:   logger,
	}

	// -------- TOKENS --------
	if cfg.Token.Enabled {
		jm, err := jwt.NewManager(jwt.Config{
			AccessTTL:     cfg.Token.AccessTTL,
			SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
			PublicKey:     cloneBytes(cfg.Token.PublicKey),
			Issuer:        cfg.Token.Issuer,
			Audience:      cfg.Token.Audience,
			Leeway:        cfg.Token.Leeway,
		})
		if err != nil {
			engine.audit.Close()
			return nil, err
		}
		engine.tokens = jm
	}

	b.built = true

	return engine, nil
}

// operationPrefix keeps each operation class in its own key space, e.g.
// "rate-limit:login:".
func operationPrefix(base, operation string) string {
	if base == "" {
		base = ratelimit.DefaultPrefix
	}
	return base + operation + ":"
}
