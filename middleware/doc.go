// Package middleware adapts goSession.Engine.Resolve to net/http and Echo.
//
// # Handlers
//
//   - [Resolver] resolves access and refresh tokens from cookies or headers
//     and writes the rotated pair back when the engine rotates.
//   - [RequireAccess] accepts only a valid access token and never rotates.
//   - [EchoResolver] is [Resolver] for labstack/echo.
//
// Authenticated requests carry a goSession.AuthContext, read with
// [AuthContextFrom]. Failures answer 401 with a generic body; the
// resolution reason is only passed to [Options].OnFailure.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis or the session store.
//   - Log or echo token values.
package middleware
