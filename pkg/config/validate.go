package config

import (
	"fmt"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All errors are collected and returned
// together so a user can fix a config file in one pass.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateProxies(&cfg.Proxies)...)
	errs = append(errs, validatePersistence(&cfg.Persistence)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(s *ServerConfig) []FieldError {
	var errs []FieldError
	if s.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	}
	if s.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "must be non-negative"})
	}
	return errs
}

func validateProxies(p *ProxiesConfig) []FieldError {
	var errs []FieldError
	if p.MaxRequestHistory <= 0 {
		errs = append(errs, FieldError{Field: "proxies.max_request_history", Message: "must be positive"})
	}
	if p.MaxMockHistory <= 0 {
		errs = append(errs, FieldError{Field: "proxies.max_mock_history", Message: "must be positive"})
	}
	if p.Outgoing.DedupWindow < 0 {
		errs = append(errs, FieldError{Field: "proxies.outgoing.dedup_window", Message: "must be non-negative"})
	}
	if p.DB.DedupWindow < 0 {
		errs = append(errs, FieldError{Field: "proxies.db.dedup_window", Message: "must be non-negative"})
	}
	return errs
}

func validatePersistence(p *PersistenceConfig) []FieldError {
	var errs []FieldError
	if p.DataDir == "" {
		errs = append(errs, FieldError{Field: "persistence.data_dir", Message: "data directory is required"})
	}
	return errs
}

func validateSecurity(s *SecurityConfig) []FieldError {
	var errs []FieldError
	switch s.CAKeySize {
	case 0, 2048, 3072, 4096:
	default:
		errs = append(errs, FieldError{Field: "security.ca_key_size", Message: "must be one of 2048, 3072, 4096"})
	}
	return errs
}

// ValidateProxyConfig validates a single persisted ProxyConfig against the
// invariants of §3: port range, self-loop, and required fields per kind.
// It is exported so the registry (C9) and the admin API can share exactly
// one source of truth for "is this proxy config well-formed".
func ValidateProxyConfig(kind string, port int, name, targetHost string, targetPort int, targetURL string) error {
	var errs []FieldError

	if port < 1 || port > 65535 {
		errs = append(errs, FieldError{Field: "port", Message: "must be in [1, 65535]"})
	}
	if name == "" {
		errs = append(errs, FieldError{Field: "name", Message: "must be non-empty"})
	}

	switch kind {
	case "normal", "db":
		if targetHost == "" {
			errs = append(errs, FieldError{Field: "target_host", Message: "required for kind=" + kind})
		}
		if targetPort < 1 || targetPort > 65535 {
			errs = append(errs, FieldError{Field: "target_port", Message: "must be in [1, 65535]"})
		}
		if kind == "normal" && isLoopback(targetHost) && targetPort == port {
			errs = append(errs, FieldError{Field: "target_port", Message: "self-loop: target equals the proxy's own port"})
		}
	case "outgoing":
		if targetURL == "" {
			errs = append(errs, FieldError{Field: "target_url", Message: "required for kind=outgoing"})
		}
	default:
		errs = append(errs, FieldError{Field: "kind", Message: "must be one of normal, outgoing, db"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func isLoopback(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
