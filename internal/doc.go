// Package internal holds helpers private to goGuard: account token encoding
// and secure random secrets.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: dependency-injected orchestration of the login state machine
//   - hashpool: bounded concurrency for password hashing
//   - logging: zap logger construction for binaries
//   - metrics: lock-free counters and latency histograms
//   - settings: viper-backed file and environment configuration
package internal
