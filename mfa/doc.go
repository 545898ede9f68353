// Package mfa implements TOTP enrollment and verification plus single-use
// backup codes.
//
// TOTP generation and validation are delegated to github.com/pquerna/otp using
// RFC 6238 parameters (SHA-1, 30 second step, 6 digits by default). Validation
// accepts the previous, current and next step.
//
// Backup codes are 8 upper-case hex characters drawn from crypto/rand. Callers
// receive the plaintext once; only HashBackupCode output should be persisted.
//
// # Architecture boundaries
//
// The package is stateless. Pending versus confirmed secrets, backup code
// consumption and the enabled flag are owned by the account engine and its
// store.
//
// # What this package must NOT do
//
//   - Log or persist secrets or plaintext backup codes.
//   - Render QR images. Only the otpauth:// provisioning URI is produced.
package mfa
