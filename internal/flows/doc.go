// Package flows contains the dependency-injected login orchestration used by
// the Engine.
//
// RunLogin and RunVerifySecondFactor take a typed dependency struct of plain
// functions and hold no state between calls, so every branch of the login
// state machine can be driven from unit tests with fakes.
//
// # Architecture boundaries
//
// Flows coordinate the lockout tracker, account lookup, password verification,
// the second factor, session issuance, audit and metrics. They own none of
// these; the Engine wires them in.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goGuard (to avoid import cycles).
//   - Perform I/O directly; all I/O goes through the dependency functions.
package flows
