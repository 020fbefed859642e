// Package middleware provides HTTP middleware for cross-cutting concerns.
//
// This package implements middleware functions that handle common functionality
// across all HTTP requests including request ID generation, logging, CORS,
// panic recovery, and timeout enforcement.
//
// # Middleware Chain
//
// Middleware functions are chained in a specific order for optimal functionality:
//
//	handler = Recovery(Logging(RequestID(CORS(Timeout(handler)))))
//
// Order (innermost to outermost):
//  1. Timeout: Enforce per-request timeout
//  2. CORS: Add Cross-Origin Resource Sharing headers
//  3. RequestID: Generate and propagate request ID
//  4. Logging: Log request/response details
//  5. Recovery: Recover from panics
//
// # Middleware Types
//
// Request tracking:
//   - RequestIDMiddleware: Generate unique request ID, add to context and response headers
//   - LoggingMiddleware: Log request/response with method, path, status, latency
//
// Security and resilience:
//   - CORSMiddleware: Add CORS headers based on configuration
//   - RecoveryMiddleware: Recover from panics, return 500 error
//   - TimeoutMiddleware: Enforce per-request timeout from configuration
//
// # Request ID
//
// RequestIDMiddleware keeps a client-supplied X-Request-ID; otherwise it
// generates 16 random bytes rendered as 32 hex characters:
//
//	X-Request-ID: 9f86d081884c7d659a2feaa0c55ad015
//
// The request ID is:
//   - Added to context for handler access
//   - Included in response headers
//   - Logged with all request/response logs
//
// # Logging
//
// LoggingMiddleware uses structured logging (log/slog) to record request details:
//
//	{
//	  "time": "2025-11-16T10:30:00Z",
//	  "level": "INFO",
//	  "msg": "request completed",
//	  "method": "POST",
//	  "path": "/api/proxies",
//	  "status": 200,
//	  "latency_ms": 12,
//	  "request_id": "9f86d081884c7d659a2feaa0c55ad015"
//	}
//
// # CORS
//
// CORSMiddleware adds Cross-Origin Resource Sharing headers for web clients:
//
//	Access-Control-Allow-Origin: https://example.com
//	Access-Control-Allow-Methods: GET, POST, OPTIONS
//	Access-Control-Allow-Headers: Authorization, Content-Type
//	Access-Control-Max-Age: 3600
//
// CORS configuration is loaded from the Configuration System:
//
//	server:
//	  cors:
//	    enabled: true
//	    allowed_origins: ["https://example.com", "https://app.example.com"]
//	    allowed_methods: ["GET", "POST", "OPTIONS"]
//	    allowed_headers: ["Authorization", "Content-Type"]
//	    max_age: 3600
//
// # Recovery
//
// RecoveryMiddleware catches panics in handlers and converts them to HTTP 500
// responses carrying a wireerr.Result:
//
//	{
//	  "ok": false,
//	  "kind": "Internal",
//	  "message": "an internal error occurred"
//	}
//
// The panic stack trace is logged but not exposed to clients for security.
//
// # Timeout
//
// TimeoutMiddleware enforces per-request timeout using context.WithTimeout:
//
//	ctx, cancel := context.WithTimeout(r.Context(), timeout)
//	defer cancel()
//
// If the timeout is exceeded:
//   - Request context is cancelled
//   - Handler receives context.DeadlineExceeded
//   - Client receives 504 Gateway Timeout
//
// # Context Values
//
// Middleware stores values in context for handler access:
//
//	type contextKey string
//
//	const (
//	    RequestIDKey contextKey = "request_id"
//	    StartTimeKey contextKey = "start_time"
//	)
//
// Handlers can retrieve values:
//
//	requestID := r.Context().Value(middleware.RequestIDKey).(string)
//
// # Performance
//
// Middleware overhead is minimal:
//
//   - <1ms total middleware execution time
//   - Request ID generation: <10µs (16 random bytes, hex-encoded)
//   - Logging: <100µs (structured JSON)
//   - CORS: <10µs (header writing)
//   - Recovery: No overhead when no panic occurs
//   - Timeout: <10µs (context creation)
//
// # Thread Safety
//
// All middleware functions are thread-safe and can be called concurrently
// from multiple goroutines.
package middleware
