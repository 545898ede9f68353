// Package metrics holds the engine's in-process counters: login outcomes, MFA
// events, session rejections, authorization denials by gate, and account
// mutations. An optional histogram records how long password hash and verify
// calls take, bucketed from 25ms to +Inf.
//
// Each counter sits in its own cache-line-padded slot and is bumped with a
// single atomic add. A disabled Metrics value makes every call a no-op.
//
// Snapshot copies the current values for the exporters under
// metrics/export. This package never imports goGuard and performs no I/O.
package metrics
