// Package lockout tracks consecutive authentication failures per identifier
// (an email address or a client IP) and applies time-boxed locks.
//
// # Semantics
//
//   - RecordFailure increments the counter; reaching the threshold sets
//     lockedUntil = now + duration.
//   - While a lock is active RecordFailure is a no-op: it neither extends nor
//     re-triggers the lock.
//   - After a lock expires the next RecordFailure clears the record first and
//     counts as failure 1. Expiry is evaluated lazily from timestamps; there is
//     no background timer.
//   - RemainingAttempts is max(0, threshold - failures).
//   - Reset clears the identifier entirely.
//
// # Implementations
//
//   - [Memory] keeps one record per identifier, each guarded by its own mutex,
//     so unrelated identifiers never contend.
//   - [Redis] stores one hash per identifier and performs every
//     read-modify-write in a Lua script, so concurrent instances share state.
//
// # What this package must NOT do
//
//   - Decide whether an account exists. Callers record failures for unknown
//     identifiers the same way as for known ones.
//   - Read the wall clock directly. Both trackers take an injectable clock.
package lockout
