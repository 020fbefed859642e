// Package logging provides structured logging with sensitive header redaction.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - Structured logging with JSON, text, and console formats
//   - Automatic redaction of sensitive HTTP header values
//   - Context-aware logging with request IDs and proxy ports
//   - Synchronous writes to the configured io.Writer
//   - Configurable log levels (debug, info, warn, error)
//
// # Usage
//
//	// Create a logger
//	logger, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactHeaders: true,
//	})
//
//	// Log structured data
//	logger.Info("request forwarded",
//	    "request_id", "req-123",
//	    "Authorization", "Bearer abc123", // automatically redacted
//	    "duration_ms", 1234,
//	)
//
//	// Create context-aware logger
//	ctx := logging.WithRequestID(ctx, "req-123")
//	ctxLogger := logger.WithContext(ctx)
//	ctxLogger.Info("processing") // includes request_id automatically
//
// # Header redaction
//
// Authorization, Cookie, Set-Cookie, and Proxy-Authorization values are
// always redacted when RedactHeaders is enabled; RedactHeaderNames adds
// further header names to the set.
//
// # Writes
//
// A call below the configured level returns before any formatting. Every
// other call is formatted by the slog handler and written synchronously to
// Config.Writer, so a slow writer blocks the caller. LogBuffer allocates a
// queue of Config.BufferSize entries, but no write path fills it: no entry
// is ever dropped and DroppedCount always reports zero.
package logging
