// Package middleware adapts a gatekeep.Engine to net/http.
//
// # Middleware
//
//   - [Admission] counts each request against an operation class and answers
//     429 with Retry-After once the caller is over its ceiling.
//   - [Guard] requires a valid bearer access token and stores its claims in
//     the request context.
//   - [RequireRole] narrows a guarded route to specific roles.
//
// The package only translates HTTP semantics. Limits, token checks and
// credential handling all live in the engine.
package middleware
