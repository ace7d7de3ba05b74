// Package goSession provides a dual-token session engine: short-lived JWT
// access tokens and rotating JWT refresh tokens backed by a session store,
// with refresh-family reuse detection.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Engine], [Builder], [Config], and value types
// ([Resolution], [AuthContext], [TokenPair], [SessionInfo]). Flow orchestration, rate
// limiting and audit dispatch live under internal/ and are never exported. Refresh-record
// stores live in the session package.
//
// # What this package must NOT do
//
//   - Log or audit raw tokens, refresh secrets, passwords or their hashes.
//   - Surface the internal failure reason to end users; [Reason] is for telemetry.
//   - Import any sub-package that re-imports goSession (no import cycles).
//
// # Performance contract
//
// Resolve with a valid access token is the hot path: signature verification plus one
// [UserProvider] session-version lookup, and no session store round-trip. Rotation
// performs one lookup and one atomic store write.
package goSession
