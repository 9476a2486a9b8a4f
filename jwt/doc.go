// Package jwt issues and verifies the short-lived access tokens handed out
// after a successful credential verification.
//
// Every token names the user (uid, mirrored in sub) and the login that
// minted it (sid). Ed25519 is the default signing method; HS256 is available
// for single-service deployments. Verification pins the algorithm, requires
// exp and iat, and optionally checks issuer and audience.
package jwt
