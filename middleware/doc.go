// Package middleware adapts goGuard to net/http.
//
// # Guards
//
//   - [Guard] authorizes a bearer token for one operation class.
//   - [RequireRead], [RequireWrite], [RequireAdmin] and [RequireAdminCritical]
//     are shorthands for the four classes.
//
// A successful guard stores the [goGuard.Principal] in the request context; read
// it back with [PrincipalFromContext]. Rejections go through [WriteError], so the
// status code and body match what handlers produce for the same error.
//
// [ClientIP] attaches the caller address for audit and per-IP lockout.
// [SecurityHeaders] sets the browser hardening headers.
//
// # What this package must NOT do
//
//   - Parse or create session tokens directly.
//   - Make authorization decisions beyond what Engine.Authorize returns.
package middleware
