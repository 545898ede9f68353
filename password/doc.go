// Package password implements the credential policy and the credential hashers.
//
// # Policy
//
// [CheckStrength] evaluates, in order, length (8..128 characters), uppercase,
// lowercase, digit and special character, and reports the first failing [Rule]
// in a [Result]. [ValidateStrength] reports every check independently.
//
// # Output formats
//
// [Bcrypt] produces standard modular-crypt hashes ($2a$/$2b$, cost >= 12).
// [Argon2] produces PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Multi] dispatches verification by hash prefix so records written by either
// hasher keep verifying after the configured algorithm changes. NeedsUpgrade
// reports hashes produced by the non-primary algorithm or weaker parameters.
//
// # Architecture boundaries
//
// This package owns policy evaluation and hashing only. Whether a weak password
// is rejected, and with which status, is decided by the engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other goGuard package.
//   - Log plaintext passwords or hashes.
package password
