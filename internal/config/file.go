package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
)

// FileConfig is the YAML configuration file shape. Every field is optional;
// values present here act as defaults beneath whatever the environment
// supplies, per Load's precedence rule.
type FileConfig struct {
	Log      *FileLogConfig     `yaml:"log,omitempty"`
	Health   *FileHealthConfig  `yaml:"health,omitempty"`
	Engine   *FileEngineConfig  `yaml:"engine,omitempty"`
	Source   *FileSubsystemSpec `yaml:"source,omitempty"`
	Provider *FileSubsystemSpec `yaml:"provider,omitempty"`
	State    *FileSubsystemSpec `yaml:"state,omitempty"`
}

// FileLogConfig holds logging settings.
type FileLogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// FileHealthConfig holds the health/metrics HTTP listener settings.
type FileHealthConfig struct {
	Port int `yaml:"port,omitempty"`
}

// FileEngineConfig mirrors ddns.EngineConfig in YAML-friendly form; durations
// are given in seconds to keep the file free of Go duration-string parsing.
type FileEngineConfig struct {
	Records              []string `yaml:"records,omitempty"`
	MaxRetries           *int     `yaml:"max_retries,omitempty"`
	RetryDelaySeconds    *int     `yaml:"retry_delay_seconds,omitempty"`
	MinUpdateIntervalSec *int     `yaml:"min_update_interval_seconds,omitempty"`
	EventChannelCapacity *int     `yaml:"event_channel_capacity,omitempty"`
	UpdateTimeoutSeconds *int     `yaml:"update_timeout_seconds,omitempty"`
}

// FileSubsystemSpec is the on-disk shape of one ddns.ProviderSpec.
type FileSubsystemSpec struct {
	Name    string            `yaml:"name,omitempty"`
	Type    string            `yaml:"type"`
	Options map[string]string `yaml:"options,omitempty"`
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnvVars replaces ${VAR} patterns with environment variable
// values, falling back to the ${VAR:-default} default when VAR is unset.
func InterpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 3 {
			defaultValue = groups[2]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

func (s *FileSubsystemSpec) interpolate() {
	if s == nil {
		return
	}
	s.Name = InterpolateEnvVars(s.Name)
	s.Type = InterpolateEnvVars(s.Type)
	for k, v := range s.Options {
		s.Options[k] = InterpolateEnvVars(v)
	}
}

func (c *FileConfig) interpolateEnvVars() {
	if c.Log != nil {
		c.Log.Level = InterpolateEnvVars(c.Log.Level)
		c.Log.Format = InterpolateEnvVars(c.Log.Format)
	}
	if c.Engine != nil {
		for i := range c.Engine.Records {
			c.Engine.Records[i] = InterpolateEnvVars(c.Engine.Records[i])
		}
	}
	c.Source.interpolate()
	c.Provider.interpolate()
	c.State.interpolate()
}

// LoadFile reads and parses a YAML configuration file, interpolating
// ${VAR} / ${VAR:-default} environment references in every string field.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ddns.Wrap(ddns.KindConfig, fmt.Sprintf("reading config file %s", path), err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, ddns.Wrap(ddns.KindConfig, fmt.Sprintf("parsing YAML config file %s", path), err)
	}
	cfg.interpolateEnvVars()
	return &cfg, nil
}

func specFromFile(f *FileSubsystemSpec) ddns.ProviderSpec {
	if f == nil {
		return ddns.ProviderSpec{}
	}
	opts := make(map[string]string, len(f.Options))
	for k, v := range f.Options {
		opts[k] = v
	}
	name := f.Name
	if name == "" {
		name = f.Type
	}
	return ddns.ProviderSpec{Name: name, Type: f.Type, Options: opts}
}

// applyDefaults overwrites cfg's fields (at this point the hardcoded package
// defaults) with every value the file sets, leaving the hardcoded defaults
// untouched where the file is silent.
func (f *FileConfig) applyDefaults(cfg *Config) {
	if f.Log != nil {
		if f.Log.Level != "" {
			cfg.LogLevel = f.Log.Level
		}
		if f.Log.Format != "" {
			cfg.LogFormat = f.Log.Format
		}
	}
	if f.Health != nil && f.Health.Port > 0 {
		cfg.HealthPort = f.Health.Port
	}
	if f.Engine != nil {
		e := f.Engine
		if len(e.Records) > 0 {
			cfg.Engine.Records = parseRecords(joinRecords(e.Records))
		}
		if e.MaxRetries != nil {
			cfg.Engine.MaxRetries = *e.MaxRetries
		}
		if e.RetryDelaySeconds != nil {
			cfg.Engine.RetryDelay = time.Duration(*e.RetryDelaySeconds) * time.Second
		}
		if e.MinUpdateIntervalSec != nil {
			cfg.Engine.MinUpdateInterval = time.Duration(*e.MinUpdateIntervalSec) * time.Second
		}
		if e.EventChannelCapacity != nil {
			cfg.Engine.EventChannelCapacity = *e.EventChannelCapacity
		}
		if e.UpdateTimeoutSeconds != nil {
			cfg.Engine.UpdateTimeout = time.Duration(*e.UpdateTimeoutSeconds) * time.Second
		}
	}
	if f.Source != nil {
		cfg.Source = specFromFile(f.Source)
	}
	if f.Provider != nil {
		cfg.Provider = specFromFile(f.Provider)
	}
	if f.State != nil {
		cfg.State = specFromFile(f.State)
	}
}

func joinRecords(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += n
	}
	return out
}

// GetConfigFilePath returns the config file path from DDNSD_CONFIG, or the
// empty string if unset.
func GetConfigFilePath() string {
	return os.Getenv("DDNSD_CONFIG")
}
