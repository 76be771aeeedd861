package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ddnsd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadFileParsesAllSections(t *testing.T) {
	path := writeYAML(t, `
log:
  level: debug
  format: text
health:
  port: 9100
engine:
  records:
    - host.example.com
  max_retries: 5
source:
  type: httpip
  options:
    URL: https://example.com/ip
provider:
  type: cloudflare
  options:
    ZONE: example.com
state:
  type: file
  options:
    PATH: /var/lib/ddnsd/state.json
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Health.Port != 9100 {
		t.Errorf("Health.Port = %d, want 9100", cfg.Health.Port)
	}
	if cfg.Engine.MaxRetries == nil || *cfg.Engine.MaxRetries != 5 {
		t.Errorf("Engine.MaxRetries = %v, want 5", cfg.Engine.MaxRetries)
	}
	if cfg.Source.Type != "httpip" {
		t.Errorf("Source.Type = %q, want httpip", cfg.Source.Type)
	}
	if cfg.Provider.Options["ZONE"] != "example.com" {
		t.Errorf("Provider.Options[ZONE] = %q, want example.com", cfg.Provider.Options["ZONE"])
	}
}

func TestLoadFileMissingFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile on a missing path: want error, got nil")
	}
}

func TestInterpolateEnvVarsSubstitutesValue(t *testing.T) {
	t.Setenv("DDNSD_TEST_TOKEN", "abc123")
	got := InterpolateEnvVars("token=${DDNSD_TEST_TOKEN}")
	if got != "token=abc123" {
		t.Errorf("InterpolateEnvVars = %q, want token=abc123", got)
	}
}

func TestInterpolateEnvVarsUsesDefault(t *testing.T) {
	got := InterpolateEnvVars("port=${DDNSD_UNSET_PORT:-8080}")
	if got != "port=8080" {
		t.Errorf("InterpolateEnvVars = %q, want port=8080", got)
	}
}

func TestLoadFileInterpolatesOptions(t *testing.T) {
	t.Setenv("DDNSD_TEST_ZONE", "interpolated.example.com")
	path := writeYAML(t, `
provider:
  type: cloudflare
  options:
    ZONE: ${DDNSD_TEST_ZONE}
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Provider.Options["ZONE"] != "interpolated.example.com" {
		t.Errorf("Provider.Options[ZONE] = %q, want interpolated.example.com", cfg.Provider.Options["ZONE"])
	}
}

func TestApplyDefaultsSeedsUnsetFields(t *testing.T) {
	cfg := &Config{LogLevel: DefaultLogLevel, LogFormat: DefaultLogFormat, HealthPort: DefaultHealthPort}
	file := &FileConfig{
		Log: &FileLogConfig{Level: "warn"},
		Source: &FileSubsystemSpec{
			Type:    "traefik",
			Options: map[string]string{"PATH": "/etc/ddnsd/hint.toml"},
		},
	}
	file.applyDefaults(cfg)

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.Source.Type != "traefik" {
		t.Errorf("Source.Type = %q, want traefik", cfg.Source.Type)
	}
	if cfg.Source.Name != "traefik" {
		t.Errorf("Source.Name defaults to Type, got %q", cfg.Source.Name)
	}
}

func TestGetConfigFilePathReadsEnv(t *testing.T) {
	t.Setenv("DDNSD_CONFIG", "/etc/ddnsd/config.yaml")
	if got := GetConfigFilePath(); got != "/etc/ddnsd/config.yaml" {
		t.Errorf("GetConfigFilePath() = %q, want /etc/ddnsd/config.yaml", got)
	}
}
