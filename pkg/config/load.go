package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It starts from DefaultConfig() so that fields absent from the file keep
// their documented default, unmarshals the file on top, and validates the
// result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Environment variables follow the
// naming convention WIRETAP_SECTION_FIELD and always take precedence over
// file-based configuration.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyLicensingEnvOverride(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("WIRETAP_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("WIRETAP_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("WIRETAP_PROXIES_TESTING_MODE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Proxies.TestingMode = b
		}
	}
	if val := os.Getenv("WIRETAP_PROXIES_GLOBAL_AUTO_START"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Proxies.GlobalAutoStart = b
		}
	}
	if val := os.Getenv("WIRETAP_PERSISTENCE_DATA_DIR"); val != "" {
		cfg.Persistence.DataDir = val
	}
	if val := os.Getenv("WIRETAP_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("WIRETAP_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("WIRETAP_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("WIRETAP_SECURITY_CA_DIR"); val != "" {
		cfg.Security.CADir = val
	}
}

// applyLicensingEnvOverride applies the one environment variable §6 singles
// out by name, with no WIRETAP_ prefix.
func applyLicensingEnvOverride(cfg *Config) {
	if val := os.Getenv("LICENSING_API_URL"); val != "" {
		cfg.Licensing.APIURL = val
	}
}
