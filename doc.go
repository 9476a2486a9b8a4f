// Package gatekeep provides admission control and credential verification for
// the marketplace API handlers.
//
// An [Engine] bundles one fixed-window limiter per operation class (login,
// signup, check-email, password-reset, ...) over a shared Redis store, a
// password [password.Verifier], an optional access-token issuer, metrics and
// an audit dispatcher. Engine methods are safe for concurrent use after
// [Builder.Build].
//
// # Caller contract
//
//   - Call [Engine.Admit] once per protected operation before doing the work.
//     Map [ErrRateLimitExceeded] to 429 and do not perform the operation.
//   - Call [Engine.DeriveSecret] once per secret set or change and persist the
//     returned record as one unit.
//   - Authenticate through [Engine.Authenticate] or [Engine.VerifySecret]; the
//     boolean verification result is the only basis for success.
//
// # What this package must NOT do
//
//   - Persist users or credentials; that belongs to the [CredentialProvider].
//   - Retry store operations.
//   - Reveal whether an authentication failure was a wrong secret, an unknown
//     identifier or a corrupted record.
package gatekeep
