package gatekeep

import (
	"errors"

	"github.com/staynest/gatekeep/password"
	"github.com/staynest/gatekeep/ratelimit"
)

var (
	// ErrRateLimitExceeded matches every admission rejection. Use errors.As
	// with *ratelimit.ExceededError for retry guidance.
	ErrRateLimitExceeded = ratelimit.ErrRateLimited
	// ErrStoreUnavailable matches admission store failures.
	ErrStoreUnavailable = ratelimit.ErrStoreUnavailable
	// ErrDerivationFailed is returned when a credential cannot be derived.
	ErrDerivationFailed = password.ErrDerivationFailed
	// ErrUnknownOperation is returned for operation classes missing from the config.
	ErrUnknownOperation = errors.New("unknown admission operation")
	// ErrInvalidCredentials covers every authentication failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCredentialNotFound is returned by providers for unknown identifiers.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrSecretPolicy is returned when a new secret violates length policy.
	ErrSecretPolicy = errors.New("secret policy violation")
	// ErrSecretReuse is returned when a secret change keeps the same secret.
	ErrSecretReuse = errors.New("new secret must differ from current secret")
	// ErrCredentialUpdateFailed is returned when the provider cannot persist a new record.
	ErrCredentialUpdateFailed = errors.New("credential update failed")
	// ErrTokensDisabled is returned by token operations when no issuer is configured.
	ErrTokensDisabled = errors.New("access tokens disabled")
	// ErrTokenInvalid is returned for access tokens that fail verification.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrEngineNotReady is returned by methods on a nil or partially built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
