// Package goGuard is an account-security and entitlement engine for services
// backed by a document store.
//
// For every authenticated request the [Engine] decides whether the session is
// valid, whether the identifier is locked out, whether MFA is satisfied for
// admin-critical operations, and whether the account's subscription allows
// writes or only reads. Engine methods are safe to call from multiple
// goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// goGuard is the public surface: [Engine], [Builder], [Config], [AccountStore]
// and the value types. Password hashing, lockout, TOTP and session tokens live
// in the password, lockout, mfa and jwt sub-packages. Login orchestration, the
// hashing pool and audit dispatch live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Return raw store or Redis errors to callers; they are logged and wrapped
//     in ErrStoreUnavailable or ErrLockoutUnavailable.
//   - Log passwords, credential hashes, TOTP secrets, backup codes or tokens.
//   - Keep process-wide mutable state; every tracker and store is owned by an
//     Engine.
//
// # Sessions
//
// Sessions are stateless signed tokens. Expiry is the only invalidation; a
// subscription that lapses after issuance changes the outcome of the next
// [Engine.Authorize] call rather than revoking the token.
package goGuard
