// Package logging defines the structured-logging interface used by the engine
// and its stores. The default implementation wraps log/slog.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are key/value pairs:
//
//	log.Warn(ctx, "family revocation failed", "user_id", uid, "family_id", fid)
//
// Raw tokens, refresh secrets, passwords and their hashes must never be passed.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	// With returns a child logger that always includes the given pairs.
	With(args ...any) Logger
}
