// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow (RunRotate, RunResolve, RunBeginSession, RunLogin, RunLogout, ...)
// takes a typed dependency struct and returns an explicit result value whose
// Failure field classifies the outcome. Expected outcomes such as expiry,
// invalid tokens and reuse are never returned as panics.
//
// # Architecture boundaries
//
// Flows coordinate the token codec, session store, rate limiter and user
// lookups. They do NOT own those resources, and they do not emit audit events
// or metrics: security events are returned as values (see [FamilyRevocation])
// and the Engine reports them.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Log token material, refresh secrets or password hashes.
package flows
