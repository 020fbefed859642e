package logging

import (
	"context"
)

// Context keys for the request-scoped fields every RequestRecord attaches to
// its logger (SPEC_FULL.md ambient logging: "request_id, proxy_port").
type contextKey string

const (
	// RequestIDKey is the context key for a RequestRecord's id.
	RequestIDKey contextKey = "request_id"

	// ProxyPortKey is the context key for the owning proxy's port.
	ProxyPortKey contextKey = "proxy_port"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithProxyPort adds a proxy port to the context.
func WithProxyPort(ctx context.Context, port int) context.Context {
	return context.WithValue(ctx, ProxyPortKey, port)
}

// GetProxyPort retrieves the proxy port from the context.
func GetProxyPort(ctx context.Context) int {
	if port, ok := ctx.Value(ProxyPortKey).(int); ok {
		return port
	}
	return 0
}

// extractContextFields extracts common fields from context for logging.
// Returns a slice of key-value pairs suitable for logger.With().
func extractContextFields(ctx context.Context) []any {
	var fields []any
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if port := GetProxyPort(ctx); port != 0 {
		fields = append(fields, "proxy_port", port)
	}
	return fields
}

// ContextLogger is a logger that automatically includes context fields.
type ContextLogger struct {
	logger *Logger
	ctx    context.Context
}

// NewContextLogger creates a logger that automatically includes context fields.
func NewContextLogger(logger *Logger, ctx context.Context) *ContextLogger {
	return &ContextLogger{
		logger: logger.WithContext(ctx),
		ctx:    ctx,
	}
}

// Debug logs a debug message with context fields.
func (cl *ContextLogger) Debug(msg string, args ...any) {
	cl.logger.DebugContext(cl.ctx, msg, args...)
}

// Info logs an info message with context fields.
func (cl *ContextLogger) Info(msg string, args ...any) {
	cl.logger.InfoContext(cl.ctx, msg, args...)
}

// Warn logs a warning message with context fields.
func (cl *ContextLogger) Warn(msg string, args ...any) {
	cl.logger.WarnContext(cl.ctx, msg, args...)
}

// Error logs an error message with context fields.
func (cl *ContextLogger) Error(msg string, args ...any) {
	cl.logger.ErrorContext(cl.ctx, msg, args...)
}

// With creates a new context logger with additional fields.
func (cl *ContextLogger) With(args ...any) *ContextLogger {
	return &ContextLogger{
		logger: cl.logger.With(args...),
		ctx:    cl.ctx,
	}
}
