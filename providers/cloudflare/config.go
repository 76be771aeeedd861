package cloudflare

import (
	"strconv"
	"strings"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
)

// DefaultTTL is the default TTL for Cloudflare DNS records.
// Cloudflare's minimum TTL is 60 seconds (1 = "automatic").
const DefaultTTL = 300

// Config holds Cloudflare-specific configuration, parsed from a
// ddns.ProviderSpec's Options map. The loader that produces Options is
// responsible for _FILE-suffix secret resolution (internal/config); by the
// time it reaches here Token is already the literal bearer token.
type Config struct {
	Token   string // API token (Bearer authentication)
	ZoneID  string // Zone ID (optional if Zone is set)
	Zone    string // Zone name for lookup (used if ZoneID is empty)
	TTL     int    // Record TTL (defaults to DefaultTTL)
	Proxied bool   // Whether to proxy records through Cloudflare
	DryRun  bool   // Skip write verbs; read-only verification only
}

// ParseConfig builds a Config from a ProviderSpec's Options map.
func ParseConfig(opts map[string]string) (*Config, error) {
	cfg := &Config{
		Token:   opts["TOKEN"],
		ZoneID:  opts["ZONE_ID"],
		Zone:    opts["ZONE"],
		TTL:     DefaultTTL,
		Proxied: false,
	}

	if v := opts["TTL"]; v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil {
			return nil, ddns.Newf(ddns.KindConfig, "cloudflare: invalid TTL %q", v)
		}
		cfg.TTL = ttl
	}
	if v := opts["PROXIED"]; v != "" {
		cfg.Proxied = parseBool(v)
	}
	if v := opts["DRY_RUN"]; v != "" {
		cfg.DryRun = parseBool(v)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.Token == "" {
		return ddns.New(ddns.KindConfig, "cloudflare: TOKEN is required")
	}
	if c.ZoneID == "" && c.Zone == "" {
		return ddns.New(ddns.KindConfig, "cloudflare: ZONE_ID or ZONE is required")
	}
	if c.TTL < 0 {
		return ddns.New(ddns.KindConfig, "cloudflare: TTL must be non-negative")
	}
	if c.TTL > 0 && c.TTL < 60 && c.TTL != 1 {
		return ddns.New(ddns.KindConfig, "cloudflare: TTL must be at least 60 seconds, or 1 for automatic")
	}
	return nil
}

// parseBool parses a boolean string. true, 1, yes and on (case-insensitive)
// are true; anything else is false.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
