package config

import "time"

// Default values for configuration fields.
const (
	DefaultListenAddress   = "127.0.0.1:9090"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxHeaderBytes  = 1048576

	DefaultCORSMaxAge = 3600

	DefaultMaxRequestHistory         = 500
	DefaultMaxMockHistory            = 2000
	DefaultPortProbeTimeout          = 5 * time.Second
	DefaultTargetProbeTimeout        = 10 * time.Second
	DefaultStartTimeout              = 30 * time.Second
	DefaultStopGracePeriod           = 3 * time.Second
	DefaultUpstreamIdleTimeout       = 30 * time.Second
	DefaultStalePendingSweepInterval = 10 * time.Second
	DefaultStalePendingTimeout       = 30 * time.Second

	DefaultOutgoingDedupWindow          = 1000 * time.Millisecond
	DefaultOutgoingMaxCapturedBodyBytes = 1048576

	DefaultDBDedupWindow = 1 * time.Second

	DefaultDataDir         = "~/.wiretap/data"
	DefaultCleanupSchedule = "0 3 * * *"
	DefaultRequestTTL      = 720 * time.Hour
	DefaultCoalesceWindow  = 500 * time.Millisecond

	DefaultChannelBufferSize = 256
	DefaultEarlyBufferCap    = 256
	DefaultCleanupPeriod     = 5 * time.Minute
	DefaultInactiveTimeout   = 10 * time.Minute

	DefaultLoggingLevel  = "info"
	DefaultLoggingFormat = "json"
	DefaultBufferSize    = 10000

	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "wiretap"

	DefaultHealthLivenessPath = "/health"
	DefaultHealthCheckTimeout = 5 * time.Second

	DefaultCADir        = "~/.wiretap/ca"
	DefaultCAKeySize    = 2048
	DefaultCAValidity   = 87600 * time.Hour
	DefaultLeafValidity = 720 * time.Hour
	DefaultLeafCacheSize = 256
)

// DefaultConfig returns a Config populated entirely with default values.
// Load starts from this rather than a zero Config and unmarshals YAML on
// top of it, so that a field's absence from the file (as opposed to an
// explicit `false`/`0`) is what triggers its default.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Server.CORS.Enabled = true
	cfg.Proxies.GlobalAutoStart = true
	cfg.Proxies.PatternMatchingEnabled = true
	cfg.Proxies.DB.FilterHealthChecks = true
	cfg.Telemetry.Metrics.Enabled = true
	cfg.Telemetry.Health.Enabled = true
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg with their documented
// defaults. It is safe to call on a partially-populated Config loaded from
// YAML: only fields left at their Go zero value are touched.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyProxiesDefaults(&cfg.Proxies)
	applyPersistenceDefaults(&cfg.Persistence)
	applyEventBusDefaults(&cfg.EventBus)
	applyTelemetryDefaults(&cfg.Telemetry)
	applySecurityDefaults(&cfg.Security)
}

func applyServerDefaults(s *ServerConfig) {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.MaxHeaderBytes == 0 {
		s.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if !s.CORS.Enabled && len(s.CORS.AllowedOrigins) == 0 {
		s.CORS.Enabled = true
	}
	if len(s.CORS.AllowedOrigins) == 0 {
		s.CORS.AllowedOrigins = []string{"*"}
	}
	if len(s.CORS.AllowedMethods) == 0 {
		s.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(s.CORS.AllowedHeaders) == 0 {
		s.CORS.AllowedHeaders = []string{"Content-Type", "X-Request-ID"}
	}
	if s.CORS.MaxAge == 0 {
		s.CORS.MaxAge = DefaultCORSMaxAge
	}
}

func applyProxiesDefaults(p *ProxiesConfig) {
	if p.MaxRequestHistory == 0 {
		p.MaxRequestHistory = DefaultMaxRequestHistory
	}
	if p.MaxMockHistory == 0 {
		p.MaxMockHistory = DefaultMaxMockHistory
	}
	if p.PortProbeTimeout == 0 {
		p.PortProbeTimeout = DefaultPortProbeTimeout
	}
	if p.TargetProbeTimeout == 0 {
		p.TargetProbeTimeout = DefaultTargetProbeTimeout
	}
	if p.StartTimeout == 0 {
		p.StartTimeout = DefaultStartTimeout
	}
	if p.StopGracePeriod == 0 {
		p.StopGracePeriod = DefaultStopGracePeriod
	}
	if p.UpstreamIdleTimeout == 0 {
		p.UpstreamIdleTimeout = DefaultUpstreamIdleTimeout
	}
	if p.StalePendingSweepInterval == 0 {
		p.StalePendingSweepInterval = DefaultStalePendingSweepInterval
	}
	if p.StalePendingTimeout == 0 {
		p.StalePendingTimeout = DefaultStalePendingTimeout
	}
	if p.Outgoing.DedupWindow == 0 {
		p.Outgoing.DedupWindow = DefaultOutgoingDedupWindow
	}
	if p.Outgoing.MaxCapturedBodyBytes == 0 {
		p.Outgoing.MaxCapturedBodyBytes = DefaultOutgoingMaxCapturedBodyBytes
	}
	if p.DB.DedupWindow == 0 {
		p.DB.DedupWindow = DefaultDBDedupWindow
	}
}

func applyPersistenceDefaults(s *PersistenceConfig) {
	if s.DataDir == "" {
		s.DataDir = DefaultDataDir
	}
	if s.CleanupSchedule == "" {
		s.CleanupSchedule = DefaultCleanupSchedule
	}
	if s.RequestTTL == 0 {
		s.RequestTTL = DefaultRequestTTL
	}
	if s.CoalesceWindow == 0 {
		s.CoalesceWindow = DefaultCoalesceWindow
	}
}

func applyEventBusDefaults(s *EventBusConfig) {
	if s.ChannelBufferSize == 0 {
		s.ChannelBufferSize = DefaultChannelBufferSize
	}
	if s.EarlyBufferCap == 0 {
		s.EarlyBufferCap = DefaultEarlyBufferCap
	}
	if s.CleanupPeriod == 0 {
		s.CleanupPeriod = DefaultCleanupPeriod
	}
	if s.InactiveTimeout == 0 {
		s.InactiveTimeout = DefaultInactiveTimeout
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}
	if t.Logging.BufferSize == 0 {
		t.Logging.BufferSize = DefaultBufferSize
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Health.LivenessPath == "" {
		t.Health.LivenessPath = DefaultHealthLivenessPath
	}
	if t.Health.CheckTimeout == 0 {
		t.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}

func applySecurityDefaults(s *SecurityConfig) {
	if s.CADir == "" {
		s.CADir = DefaultCADir
	}
	if s.CAKeySize == 0 {
		s.CAKeySize = DefaultCAKeySize
	}
	if s.CAValidity == 0 {
		s.CAValidity = DefaultCAValidity
	}
	if s.LeafValidity == 0 {
		s.LeafValidity = DefaultLeafValidity
	}
	if s.LeafCacheSize == 0 {
		s.LeafCacheSize = DefaultLeafCacheSize
	}
}
