// Package logging is the structured logger every layer of the portal writes
// through. The only implementation wraps log/slog.
package logging

import "context"

// Logger is a context-aware, key/value logger:
//
//	log.Info(ctx, "account registered", "account_id", id, "method", method)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger carrying the given pairs on every line.
	With(args ...any) Logger
}
