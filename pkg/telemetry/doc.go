// Package telemetry groups Wiretap's observability packages. It holds no
// code of its own.
//
// # Components
//
//   - logging: slog-based structured logging with HTTP header redaction
//   - metrics: Prometheus collectors served by the admin API at /metrics
//   - health: liveness (/health) and readiness (/ready) handlers
//
// There is no tracing package and no telemetry-wide constructor; each
// subpackage is created on its own (logging.New, metrics.New, health.New).
//
// # Redaction
//
// logging.Redactor masks the values of the Authorization, Cookie,
// Set-Cookie and Proxy-Authorization headers, plus any extra header names
// it is given. It does not scan free text, so API keys, email addresses,
// ID numbers or IP addresses elsewhere in a log line are written unchanged.
package telemetry
