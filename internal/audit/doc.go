// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink] is the consumer interface (channel, JSON writer, zap logger, no-op).
//   - [Dispatcher] is a buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event] is the structured record: timestamp, type, subject, actor, IP, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit; the Engine does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goGuard or any sibling internal package.
//   - Carry secrets: events never include passwords, TOTP secrets, backup codes or tokens.
package audit
