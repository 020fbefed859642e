package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigPassesValidation(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("listen address = %q, want %q", cfg.Server.ListenAddress, DefaultListenAddress)
	}
	if !cfg.Proxies.GlobalAutoStart {
		t.Error("GlobalAutoStart should default to true")
	}
	if !cfg.Proxies.DB.FilterHealthChecks {
		t.Error("FilterHealthChecks should default to true")
	}
}

func TestLoadConfigAppliesFileOverridesOnTopOfDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wiretap.yaml")
	yamlContent := `
server:
  listen_address: "0.0.0.0:9999"
proxies:
  testing_mode: true
  global_auto_start: false
persistence:
  data_dir: "/tmp/wiretap-data"
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9999" {
		t.Errorf("listen address not overridden: %q", cfg.Server.ListenAddress)
	}
	if !cfg.Proxies.TestingMode {
		t.Error("testing_mode should be true from file")
	}
	if cfg.Proxies.GlobalAutoStart {
		t.Error("global_auto_start explicitly false in file should stick, not be defaulted back to true")
	}
	// fields absent from the file keep their defaults
	if cfg.Proxies.MaxRequestHistory != DefaultMaxRequestHistory {
		t.Errorf("max_request_history should default, got %d", cfg.Proxies.MaxRequestHistory)
	}
	if cfg.Server.ReadTimeout != DefaultReadTimeout {
		t.Errorf("read_timeout should default, got %v", cfg.Server.ReadTimeout)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverridesTakePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wiretap.yaml")
	if err := os.WriteFile(path, []byte("server:\n  listen_address: \"127.0.0.1:1111\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("WIRETAP_SERVER_LISTEN_ADDRESS", "127.0.0.1:2222")
	t.Setenv("LICENSING_API_URL", "https://license.example.com")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides returned error: %v", err)
	}
	if cfg.Server.ListenAddress != "127.0.0.1:2222" {
		t.Errorf("env override did not apply, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Licensing.APIURL != "https://license.example.com" {
		t.Errorf("licensing passthrough did not apply, got %q", cfg.Licensing.APIURL)
	}
}

func TestValidateProxyConfigSelfLoop(t *testing.T) {
	err := ValidateProxyConfig("normal", 8080, "loopback", "localhost", 8080, "")
	if err == nil {
		t.Fatal("expected self-loop rejection")
	}
}

func TestValidateProxyConfigPortRange(t *testing.T) {
	for _, port := range []int{0, 65536, -1} {
		if err := ValidateProxyConfig("normal", port, "n", "example.com", 80, ""); err == nil {
			t.Errorf("port %d should be rejected", port)
		}
	}
}

func TestValidateProxyConfigOutgoingRequiresTargetURL(t *testing.T) {
	if err := ValidateProxyConfig("outgoing", 8443, "out", "", 0, ""); err == nil {
		t.Fatal("expected target_url requirement to fail")
	}
	if err := ValidateProxyConfig("outgoing", 8443, "out", "", 0, "https://api.example.com"); err != nil {
		t.Fatalf("valid outgoing config should pass: %v", err)
	}
}

func TestValidateProxyConfigUnknownKind(t *testing.T) {
	if err := ValidateProxyConfig("carrier-pigeon", 1, "n", "h", 1, ""); err == nil {
		t.Fatal("expected unknown kind rejection")
	}
}

func TestDefaultsAreStable(t *testing.T) {
	// ApplyDefaults must be idempotent: applying it twice should not change
	// an already-defaulted config.
	cfg := DefaultConfig()
	before := *cfg
	ApplyDefaults(cfg)
	if cfg.Server.ListenAddress != before.Server.ListenAddress ||
		cfg.Proxies.StartTimeout != before.Proxies.StartTimeout {
		t.Error("ApplyDefaults should be idempotent")
	}
}
