package gatekeep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/staynest/gatekeep/jwt"
	"github.com/staynest/gatekeep/password"
	"github.com/staynest/gatekeep/ratelimit"
)

// Engine guards the marketplace's sensitive endpoints. It is safe for
// concurrent use once built.
type Engine struct {
	config   Config
	limiters map[string]*ratelimit.Limiter
	verifier *password.Verifier
	decoy    password.Record
	tokens   *jwt.Manager
	provider CredentialProvider
	audit    *auditDispatcher
	metrics  *Metrics
	logger   *slog.Logger
}

// Close flushes pending audit events. The admission store is owned by the
// caller and stays open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:      map[MetricID]uint64{},
			Histograms:    map[MetricID][]uint64{},
			HistogramSums: map[MetricID]time.Duration{},
		}
	}
	return e.metrics.Snapshot()
}

// Operations lists the configured admission operation classes.
func (e *Engine) Operations() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.limiters))
	for name := range e.limiters {
		out = append(out, name)
	}
	return out
}

// Policy returns the admission policy of operation.
func (e *Engine) Policy(operation string) (OperationPolicy, bool) {
	if e == nil {
		return OperationPolicy{}, false
	}
	p, ok := e.config.Admission.Operations[operation]
	return p, ok
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

/*
====================================
ADMISSION
====================================
*/

// Admit counts one request of operation for key. It returns nil when the
// request is within the operation's ceiling, an error matching
// [ErrRateLimitExceeded] when it is not, and an error matching
// [ErrStoreUnavailable] when the store cannot be reached (unless
// FailOpen is configured, in which case the request is admitted).
func (e *Engine) Admit(ctx context.Context, operation, key string) error {
	if e == nil || e.limiters == nil {
		return ErrEngineNotReady
	}
	limiter, ok := e.limiters[operation]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOperation, operation)
	}

	start := time.Now()
	err := limiter.Check(ctx, key)
	e.metricObserve(MetricAdmissionLatency, start)

	switch {
	case err == nil:
		e.metricInc(MetricAdmissionAllowed)
		return nil

	case errors.Is(err, ErrRateLimitExceeded):
		e.metricInc(MetricAdmissionRejected)
		e.emitAudit(ctx, auditEventAdmissionRejected, false, "", "", err, func() map[string]string {
			return map[string]string{
				"operation": operation,
			}
		})
		return err

	default:
		e.metricInc(MetricAdmissionStoreError)
		if e.config.Admission.FailOpen {
			e.metricInc(MetricAdmissionFailOpen)
			e.logger.WarnContext(ctx, "admission store unavailable, failing open",
				slog.String("operation", operation),
				slog.Any("error", err),
			)
			e.emitAudit(ctx, auditEventAdmissionFailOpen, true, "", "", err, func() map[string]string {
				return map[string]string{
					"operation": operation,
				}
			})
			return nil
		}
		e.logger.ErrorContext(ctx, "admission store unavailable",
			slog.String("operation", operation),
			slog.Any("error", err),
		)
		return err
	}
}

// ResetAdmission clears the counter of operation for key, e.g. after an
// operator unblocks a caller.
func (e *Engine) ResetAdmission(ctx context.Context, operation, key string) error {
	if e == nil || e.limiters == nil {
		return ErrEngineNotReady
	}
	limiter, ok := e.limiters[operation]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOperation, operation)
	}

	if err := limiter.Reset(ctx, key); err != nil {
		e.metricInc(MetricAdmissionStoreError)
		e.logger.ErrorContext(ctx, "admission reset failed",
			slog.String("operation", operation),
			slog.Any("error", err),
		)
		return err
	}

	e.metricInc(MetricAdmissionReset)
	e.emitAudit(ctx, auditEventAdmissionReset, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"operation": operation,
		}
	})
	return nil
}

/*
====================================
CREDENTIALS
====================================
*/

// DeriveSecret applies the secret length policy and derives a fresh record.
func (e *Engine) DeriveSecret(secret string) (password.Record, error) {
	if e == nil || e.verifier == nil {
		return password.Record{}, ErrEngineNotReady
	}
	if err := e.checkSecretPolicy(secret); err != nil {
		return password.Record{}, err
	}

	rec, err := e.verifier.Derive(secret)
	if err != nil {
		e.metricInc(MetricCredentialDeriveFailure)
		return password.Record{}, err
	}

	e.metricInc(MetricCredentialDerived)
	return rec, nil
}

// VerifySecret reports whether secret matches rec. It never fails loudly:
// malformed records simply do not match.
func (e *Engine) VerifySecret(secret string, rec password.Record) bool {
	if e == nil || e.verifier == nil {
		return false
	}

	start := time.Now()
	ok := e.verifier.VerifyRecord(secret, rec)
	e.metricObserve(MetricVerifyLatency, start)

	if ok {
		e.metricInc(MetricVerifySuccess)
	} else {
		e.metricInc(MetricVerifyFailure)
	}
	return ok
}

// GenerateToken returns length random bytes hex-encoded, for reset links
// and similar one-time secrets. Non-positive length means 32 bytes.
func (e *Engine) GenerateToken(length int) (string, error) {
	if e == nil || e.verifier == nil {
		return "", ErrEngineNotReady
	}
	return e.verifier.GenerateToken(length)
}

func (e *Engine) checkSecretPolicy(secret string) error {
	n := len(secret)
	if n < e.config.Password.MinSecretBytes {
		return fmt.Errorf("%w: secret shorter than %d bytes", ErrSecretPolicy, e.config.Password.MinSecretBytes)
	}
	if n > e.config.Password.MaxSecretBytes {
		return fmt.Errorf("%w: secret longer than %d bytes", ErrSecretPolicy, e.config.Password.MaxSecretBytes)
	}
	return nil
}

/*
====================================
ACCESS TOKENS
====================================
*/

// ValidateAccess verifies an access token minted by [Engine.Authenticate].
func (e *Engine) ValidateAccess(token string) (*jwt.AccessClaims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.tokens == nil {
		return nil, ErrTokensDisabled
	}

	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	return claims, nil
}
