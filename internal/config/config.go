// Package config loads and validates ddnsd's daemon configuration:
// environment variables (with Docker-secrets-style _FILE indirection), an
// optional YAML file whose values act as defaults beneath the environment,
// and the validation that turns the first malformed input it finds into a
// KindConfig ddns.Error, fatal at startup.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
)

// Default values applied when no environment variable or file setting
// overrides them.
const (
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "json"
	DefaultHealthPort           = 8080
	DefaultMaxRetries           = 3
	DefaultRetryDelaySeconds    = 5
	DefaultMinUpdateIntervalSec = 60
	DefaultEventChannelCapacity = 64
	DefaultUpdateTimeoutSeconds = 30
)

// Config is the fully resolved daemon configuration: the engine tunables
// plus the three ddns.ProviderSpec variants the wire-up glue hands to
// engine.BuildSubsystems.
type Config struct {
	LogLevel   string
	LogFormat  string
	HealthPort int

	Engine ddns.EngineConfig

	Source   ddns.ProviderSpec
	Provider ddns.ProviderSpec
	State    ddns.ProviderSpec
}

// Load builds a Config from environment variables, optionally seeded with
// defaults from the YAML file at configPath (empty skips file loading).
// Environment variables always take precedence over file values.
func Load(configPath string) (*Config, error) {
	var file *FileConfig
	if configPath != "" {
		f, err := LoadFile(configPath)
		if err != nil {
			return nil, err
		}
		file = f
	}

	cfg := &Config{
		LogLevel:   DefaultLogLevel,
		LogFormat:  DefaultLogFormat,
		HealthPort: DefaultHealthPort,
		Engine: ddns.EngineConfig{
			MaxRetries:           DefaultMaxRetries,
			RetryDelay:           DefaultRetryDelaySeconds * time.Second,
			MinUpdateInterval:    DefaultMinUpdateIntervalSec * time.Second,
			EventChannelCapacity: DefaultEventChannelCapacity,
			UpdateTimeout:        DefaultUpdateTimeoutSeconds * time.Second,
		},
	}

	if file != nil {
		file.applyDefaults(cfg)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays DDNSD_* environment variables onto cfg, which already
// carries either hardcoded or file-sourced defaults.
func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("DDNSD_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv("DDNSD_LOG_FORMAT"); ok {
		c.LogFormat = v
	}
	if v, ok := os.LookupEnv("DDNSD_HEALTH_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return ddns.Newf(ddns.KindConfig, "DDNSD_HEALTH_PORT: invalid port %q", v)
		}
		c.HealthPort = port
	}

	if v, ok := os.LookupEnv("DDNSD_MAX_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ddns.Newf(ddns.KindConfig, "DDNSD_MAX_RETRIES: invalid integer %q", v)
		}
		c.Engine.MaxRetries = n
	}
	if v, ok := os.LookupEnv("DDNSD_RETRY_DELAY_SECONDS"); ok {
		d, err := parseSecondsEnv("DDNSD_RETRY_DELAY_SECONDS", v)
		if err != nil {
			return err
		}
		c.Engine.RetryDelay = d
	}
	if v, ok := os.LookupEnv("DDNSD_MIN_UPDATE_INTERVAL_SECONDS"); ok {
		d, err := parseSecondsEnv("DDNSD_MIN_UPDATE_INTERVAL_SECONDS", v)
		if err != nil {
			return err
		}
		c.Engine.MinUpdateInterval = d
	}
	if v, ok := os.LookupEnv("DDNSD_EVENT_CHANNEL_CAPACITY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ddns.Newf(ddns.KindConfig, "DDNSD_EVENT_CHANNEL_CAPACITY: invalid integer %q", v)
		}
		c.Engine.EventChannelCapacity = n
	}
	if v, ok := os.LookupEnv("DDNSD_UPDATE_TIMEOUT_SECONDS"); ok {
		d, err := parseSecondsEnv("DDNSD_UPDATE_TIMEOUT_SECONDS", v)
		if err != nil {
			return err
		}
		c.Engine.UpdateTimeout = d
	}
	if v, ok := os.LookupEnv("DDNSD_RECORDS"); ok {
		c.Engine.Records = parseRecords(v)
	}

	spec, err := loadSpec("DDNSD_SOURCE_", c.Source)
	if err != nil {
		return err
	}
	c.Source = spec

	spec, err = loadSpec("DDNSD_PROVIDER_", c.Provider)
	if err != nil {
		return err
	}
	c.Provider = spec

	spec, err = loadSpec("DDNSD_STATE_", c.State)
	if err != nil {
		return err
	}
	c.State = spec

	return nil
}

// loadSpec merges base (a spec possibly seeded from a YAML file) with the
// environment variables under prefix, environment taking precedence for
// Name, Type, and any Options key present in both.
func loadSpec(prefix string, base ddns.ProviderSpec) (ddns.ProviderSpec, error) {
	envOpts, err := envOptions(prefix)
	if err != nil {
		return ddns.ProviderSpec{}, err
	}

	opts := make(map[string]string, len(base.Options)+len(envOpts))
	for k, v := range base.Options {
		opts[k] = v
	}

	name := base.Name
	typ := base.Type
	for k, v := range envOpts {
		switch k {
		case "NAME":
			name = v
		case "TYPE":
			typ = v
		default:
			opts[k] = v
		}
	}
	if name == "" {
		name = typ
	}
	return ddns.ProviderSpec{Name: name, Type: typ, Options: opts}, nil
}

func parseSecondsEnv(key, v string) (time.Duration, error) {
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, ddns.Newf(ddns.KindConfig, "%s: invalid integer %q", key, v)
	}
	return time.Duration(secs) * time.Second, nil
}

// parseRecords splits a comma-separated DDNSD_RECORDS value into
// RecordConfig entries, trimming whitespace and skipping empty entries.
// Every listed record is enabled; disabling a record means omitting it.
func parseRecords(v string) []ddns.RecordConfig {
	var records []ddns.RecordConfig
	for _, name := range strings.Split(v, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		records = append(records, ddns.RecordConfig{Name: ddns.DomainName(name), Enabled: true})
	}
	return records
}

// Validate returns a KindConfig error for the first configuration problem it
// finds, following EngineConfig.Validate's fail-fast contract.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if len(c.Engine.Records) == 0 {
		return ddns.New(ddns.KindConfig, "DDNSD_RECORDS: at least one managed record name is required")
	}
	if c.Source.Type == "" {
		return ddns.New(ddns.KindConfig, "DDNSD_SOURCE_TYPE is required")
	}
	if c.Provider.Type == "" {
		return ddns.New(ddns.KindConfig, "DDNSD_PROVIDER_TYPE is required")
	}
	if c.State.Type == "" {
		return ddns.New(ddns.KindConfig, "DDNSD_STATE_TYPE is required")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return ddns.Newf(ddns.KindConfig, "DDNSD_LOG_FORMAT: unsupported format %q, want json or text", c.LogFormat)
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return ddns.Newf(ddns.KindConfig, "DDNSD_HEALTH_PORT: %d is not a valid port", c.HealthPort)
	}
	return nil
}
