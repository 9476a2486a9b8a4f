package gatekeep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Authenticate checks identifier and secret. The login limiter is keyed on
// the client address from [WithClientIP], falling back to identifier.
//
// Every failure other than admission returns [ErrInvalidCredentials]; the
// caller cannot tell an unknown identifier from a wrong secret. Unknown
// identifiers are verified against a decoy record so both paths cost one
// derivation.
func (e *Engine) Authenticate(ctx context.Context, identifier, secret string) (*LoginResult, error) {
	if e == nil || e.verifier == nil || e.provider == nil {
		return nil, ErrEngineNotReady
	}

	key := ClientIPFromContext(ctx)
	if key == "" {
		key = identifier
	}
	if err := e.Admit(ctx, OperationLogin, key); err != nil {
		if errors.Is(err, ErrRateLimitExceeded) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", err, nil)
		}
		return nil, err
	}

	cred, err := e.provider.GetCredential(ctx, identifier)
	if err != nil {
		if !errors.Is(err, ErrCredentialNotFound) {
			e.logger.ErrorContext(ctx, "credential lookup failed", slog.Any("error", err))
		}
		e.VerifySecret(secret, e.decoy)
		return nil, e.loginFailed(ctx, "")
	}

	if !e.VerifySecret(secret, cred.Record) {
		return nil, e.loginFailed(ctx, cred.UserID)
	}

	result := &LoginResult{
		UserID:    cred.UserID,
		Role:      cred.Role,
		SessionID: uuid.NewString(),
	}

	if e.tokens != nil {
		token, expiresAt, err := e.tokens.CreateAccess(cred.UserID, result.SessionID, cred.Role)
		if err != nil {
			e.logger.ErrorContext(ctx, "access token signing failed", slog.Any("error", err))
			return nil, fmt.Errorf("issue access token: %w", err)
		}
		result.AccessToken = token
		result.ExpiresAt = expiresAt
		e.metricInc(MetricTokenIssued)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, cred.UserID, result.SessionID, nil, nil)

	return result, nil
}

func (e *Engine) loginFailed(ctx context.Context, userID string) error {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", ErrInvalidCredentials, nil)
	return ErrInvalidCredentials
}

// ChangeSecret replaces the stored record of identifier after verifying
// current. The new record gets a fresh salt; hash and salt are persisted
// together through the provider.
func (e *Engine) ChangeSecret(ctx context.Context, identifier, current, next string) error {
	if e == nil || e.verifier == nil || e.provider == nil {
		return ErrEngineNotReady
	}
	if err := e.checkSecretPolicy(next); err != nil {
		return err
	}

	cred, err := e.provider.GetCredential(ctx, identifier)
	if err != nil {
		if !errors.Is(err, ErrCredentialNotFound) {
			e.logger.ErrorContext(ctx, "credential lookup failed", slog.Any("error", err))
		}
		e.VerifySecret(current, e.decoy)
		e.emitAudit(ctx, auditEventSecretChangeFail, false, "", "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if !e.VerifySecret(current, cred.Record) {
		e.emitAudit(ctx, auditEventSecretChangeFail, false, cred.UserID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}
	if current == next {
		e.emitAudit(ctx, auditEventSecretChangeFail, false, cred.UserID, "", ErrSecretReuse, nil)
		return ErrSecretReuse
	}

	rec, err := e.DeriveSecret(next)
	if err != nil {
		e.emitAudit(ctx, auditEventSecretChangeFail, false, cred.UserID, "", err, nil)
		return err
	}

	if err := e.provider.UpdateCredential(ctx, cred.UserID, rec); err != nil {
		e.logger.ErrorContext(ctx, "credential update failed",
			slog.String("user_id", cred.UserID),
			slog.Any("error", err),
		)
		e.emitAudit(ctx, auditEventSecretChangeFail, false, cred.UserID, "", ErrCredentialUpdateFailed, nil)
		return fmt.Errorf("%w: %w", ErrCredentialUpdateFailed, err)
	}

	e.metricInc(MetricSecretChanged)
	e.emitAudit(ctx, auditEventSecretChanged, true, cred.UserID, "", nil, nil)
	return nil
}
