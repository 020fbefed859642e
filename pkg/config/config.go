package config

import "time"

// Config is the root configuration structure for Wiretap. It contains every
// section needed to run the admin API, the proxy lifecycle registry, and the
// ambient logging/metrics/security concerns shared by all three transports.
type Config struct {
	// Server contains the admin API HTTP server configuration (the in-process
	// RPC surface described in the external interfaces: list/create/start/stop
	// of proxies, mocks, and requests).
	Server ServerConfig `yaml:"server"`

	// Proxies contains the default settings applied to newly created proxies
	// of each kind, and the global testing-mode switch.
	Proxies ProxiesConfig `yaml:"proxies"`

	// Persistence contains the JSON-blob persistence store configuration.
	Persistence PersistenceConfig `yaml:"persistence"`

	// EventBus contains the in-process pub/sub configuration.
	EventBus EventBusConfig `yaml:"event_bus"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Security contains TLS/MITM certificate authority configuration.
	Security SecurityConfig `yaml:"security"`

	// Licensing contains the external license-gate collaborator contract.
	Licensing LicensingConfig `yaml:"licensing"`
}

// ServerConfig contains configuration for the admin API HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port the admin API listens on.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading an admin request.
	// Default: 15s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing an admin response.
	// Default: 15s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next keep-alive request.
	// Default: 60s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown of the admin server.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes caps request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration for the
	// admin API (used when the UI shell is a local web view).
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are added.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is the list of allowed origins.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is the list of allowed HTTP methods.
	// Default: ["GET", "POST", "PUT", "DELETE", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is the list of allowed request headers.
	// Default: ["Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the preflight cache duration in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}

// ProxiesConfig contains global and per-kind proxy defaults.
type ProxiesConfig struct {
	// TestingMode gates mock-serving across all three transports. When false,
	// every proxy forwards live traffic only, regardless of per-mock enabled
	// state. Default: false
	TestingMode bool `yaml:"testing_mode"`

	// GlobalAutoStart is ANDed with each ProxyConfig's own auto_start flag
	// during boot orchestration (§4.9). Default: true
	GlobalAutoStart bool `yaml:"global_auto_start"`

	// MaxRequestHistory is the default cap on RequestRecord entries retained
	// per proxy before FIFO eviction (§3 RequestRecord lifecycle).
	// Default: 500
	MaxRequestHistory int `yaml:"max_request_history"`

	// MaxMockHistory is the default cap on Mock entries retained per process
	// before oldest-first eviction (§4.4).
	// Default: 2000
	MaxMockHistory int `yaml:"max_mock_history"`

	// PatternMatchingEnabled toggles the §4.3 pattern-blocking behavior.
	// Default: true
	PatternMatchingEnabled bool `yaml:"pattern_matching_enabled"`

	// AutoSaveAsMocks toggles auto-mock synthesis from live responses
	// (§4.6 step 5). Default: false
	AutoSaveAsMocks bool `yaml:"auto_save_as_mocks"`

	// PortProbeTimeout bounds C1's is_bound check. Default: 5s
	PortProbeTimeout time.Duration `yaml:"port_probe_timeout"`

	// TargetProbeTimeout bounds C1's is_reachable check. Default: 10s
	TargetProbeTimeout time.Duration `yaml:"target_probe_timeout"`

	// StartTimeout bounds a single proxy start operation (§4.9g).
	// Default: 30s
	StartTimeout time.Duration `yaml:"start_timeout"`

	// StopGracePeriod is how long in-flight connections get to finish before
	// being force-closed on stop (§5). Default: 3s
	StopGracePeriod time.Duration `yaml:"stop_grace_period"`

	// UpstreamIdleTimeout marks a pending request as `timeout` after this
	// long without upstream activity (§5). Default: 30s
	UpstreamIdleTimeout time.Duration `yaml:"upstream_idle_timeout"`

	// StalePendingSweepInterval is how often C5's sweeper runs (§4.5).
	// Default: 10s
	StalePendingSweepInterval time.Duration `yaml:"stale_pending_sweep_interval"`

	// StalePendingTimeout is the age at which a pending record is failed by
	// the sweeper (§4.5). Default: 30s
	StalePendingTimeout time.Duration `yaml:"stale_pending_timeout"`

	// Normal contains normal-proxy-specific defaults.
	Normal NormalProxyConfig `yaml:"normal"`

	// Outgoing contains MITM-proxy-specific defaults.
	Outgoing OutgoingProxyConfig `yaml:"outgoing"`

	// DB contains DB-wire-proxy-specific defaults.
	DB DBProxyConfig `yaml:"db"`
}

// NormalProxyConfig contains defaults specific to kind=normal proxies.
type NormalProxyConfig struct {
	// RateLimitBPS is parsed but not read: no proxy limits throughput.
	// Default: 0
	RateLimitBPS int `yaml:"rate_limit_bps"`
}

// OutgoingProxyConfig contains defaults specific to kind=outgoing proxies.
type OutgoingProxyConfig struct {
	// DedupWindow coalesces identical (method,url) request firings within
	// this window (§4.7). Default: 1000ms
	DedupWindow time.Duration `yaml:"dedup_window"`

	// MaxCapturedBodyBytes bounds captured request/response body size before
	// substituting the "[Body omitted: n bytes]" sentinel. Default: 1048576
	MaxCapturedBodyBytes int `yaml:"max_captured_body_bytes"`

	// RateLimitBPS is parsed but not read: no proxy limits throughput.
	// Default: 0
	RateLimitBPS int `yaml:"rate_limit_bps"`

	// MockingEnabled is ANDed with the global testing_mode switch before a
	// mock is ever served on this transport (§4.7: "testing mode and mocking
	// enabled for outgoing is on"). Default: false
	MockingEnabled bool `yaml:"mocking_enabled"`
}

// DBProxyConfig contains defaults specific to kind=db proxies.
type DBProxyConfig struct {
	// FilterHealthChecks enables the health-check query filter (§4.8).
	// Default: true
	FilterHealthChecks bool `yaml:"filter_health_checks"`

	// DedupWindow coalesces identical normalized queries on the same
	// connection within this window. Default: 1s
	DedupWindow time.Duration `yaml:"dedup_window"`

	// MockingEnabled is ANDed with the global testing_mode switch before a
	// mock is fabricated on this transport (§4.8). Default: false
	MockingEnabled bool `yaml:"mocking_enabled"`
}

// PersistenceConfig contains the JSON-blob persistence store configuration.
type PersistenceConfig struct {
	// DataDir is the root directory for namespaced key files (§4.11).
	// Default: "~/.wiretap/data"
	DataDir string `yaml:"data_dir"`

	// CleanupSchedule is a cron expression for the periodic TTL trim.
	// Default: "0 3 * * *" (daily at 3 AM)
	CleanupSchedule string `yaml:"cleanup_schedule"`

	// RequestTTL is the age at which persisted request-history entries are
	// eligible for cleanup. 0 disables TTL-based trimming. Default: 720h
	RequestTTL time.Duration `yaml:"request_ttl"`

	// CoalesceWindow batches consecutive request-history writes for the same
	// proxy within this window (§4.11). Default: 500ms
	CoalesceWindow time.Duration `yaml:"coalesce_window"`

	// IndexPath is accepted in the file but no component reads it, and no
	// default is applied. Request history is kept only in the JSON blobs
	// under DataDir.
	IndexPath string `yaml:"index_path"`
}

// EventBusConfig contains the in-process pub/sub configuration.
type EventBusConfig struct {
	// ChannelBufferSize is the per-subscriber channel buffer (§4.10).
	// Default: 256
	ChannelBufferSize int `yaml:"channel_buffer_size"`

	// EarlyBufferCap is the per-channel cap on events queued before any UI
	// transport attaches (§4.10). Default: 256
	EarlyBufferCap int `yaml:"early_buffer_cap"`

	// CleanupPeriod is accepted and defaulted (5m) but not read: the event
	// bus does not purge inactive subscribers.
	CleanupPeriod time.Duration `yaml:"cleanup_period"`

	// InactiveTimeout is accepted and defaulted (10m) but not read: a
	// subscriber stays attached until it unsubscribes.
	InactiveTimeout time.Duration `yaml:"inactive_timeout"`
}

// TelemetryConfig contains logging and metrics configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Health  HealthConfig  `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls output format ("json", "text", "console").
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in log entries. Default: false
	AddSource bool `yaml:"add_source"`

	// RedactHeaders is accepted in the file but no component reads it, and
	// DefaultConfig leaves it false. RequestRecords are logged, persisted and
	// published with their headers as captured.
	RedactHeaders bool `yaml:"redact_headers"`

	// RedactHeaderNames lists additional header names to redact beyond the
	// built-in set (Authorization, Cookie, Set-Cookie, Proxy-Authorization).
	RedactHeaderNames []string `yaml:"redact_header_names"`

	// BufferSize is the async log write buffer size. Default: 10000
	BufferSize int `yaml:"buffer_size"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the /metrics endpoint is registered.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is not read: the admin API always serves metrics at /metrics.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix. Default: "wiretap"
	Namespace string `yaml:"namespace"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// Enabled is not read: the admin API always serves /health and /ready.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// LivenessPath is not read: the liveness probe is always served at
	// /health. Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// CheckTimeout bounds a single component health check. Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// SecurityConfig contains TLS/CA configuration.
type SecurityConfig struct {
	// CADir is the directory holding the generated root CA used by the
	// outgoing MITM proxy (§6: "lives in the user data path and must be
	// user-installed for browsers"). Default: "~/.wiretap/ca"
	CADir string `yaml:"ca_dir"`

	// CAKeySize is the RSA key size used for a newly generated root CA. Leaf
	// certificates always get 2048-bit keys. Default: 2048
	CAKeySize int `yaml:"ca_key_size"`

	// CAValidity is how long the generated root CA is valid for.
	// Default: 87600h (10 years)
	CAValidity time.Duration `yaml:"ca_validity"`

	// LeafValidity is how long a generated leaf certificate is valid for.
	// Default: 720h (30 days)
	LeafValidity time.Duration `yaml:"leaf_validity"`

	// LeafCacheSize bounds the number of signed leaf certificates cached
	// in memory. One cache is shared by every outgoing (MITM) proxy.
	// Default: 256
	LeafCacheSize int `yaml:"leaf_cache_size"`
}

// LicensingConfig contains the external license-gate collaborator contract
// (§6: consumed only as a boolean gate).
type LicensingConfig struct {
	// APIURL is overridden by the LICENSING_API_URL environment variable;
	// unused by the core except passthrough to the external collaborator.
	// Default: ""
	APIURL string `yaml:"api_url"`
}
