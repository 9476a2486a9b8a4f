// Package password derives and verifies stored credentials.
//
// # Record format
//
// [Verifier.Derive] returns a [Record] holding two lowercase hex strings: the
// derived key (KeyLength bytes, 64 by default) and the random salt
// (SaltLength bytes, 32 by default). Both must be persisted together.
// Changing KeyLength, SaltLength or the KDF parameters invalidates every
// record derived before the change.
//
// The default KDF is scrypt (N=16384, r=8, p=1); Argon2id is available via
// [Config.Algorithm].
//
// # Verification
//
// [Verifier.Verify] re-derives with the stored salt and compares with
// crypto/subtle. Every failure mode (wrong secret, malformed hex, wrong key
// length, KDF error) collapses into false so callers cannot tell a bad
// password from a corrupted record.
//
// # What this package must NOT do
//
//   - Store or look up records.
//   - Enforce password policy beyond the maximum input size.
//   - Log secrets, salts or derived keys.
package password
