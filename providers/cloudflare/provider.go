package cloudflare

import (
	"context"
	"log/slog"
	"net/netip"
	"strings"
	"sync"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
)

// Record types the provider writes. UpdateRecord picks one per call from
// newIP's address family (see addressRecordType); GetRecord tries both.
const (
	recordTypeA    = "A"
	recordTypeAAAA = "AAAA"
)

// Provider implements ddns.DnsProvider against the Cloudflare DNS API.
type Provider struct {
	name    string
	zone    string
	ttl     int
	proxied bool
	client  *Client
	logger  *slog.Logger

	zoneIDOnce sync.Once
	zoneID     string
	zoneIDErr  error
}

var _ ddns.DnsProvider = (*Provider)(nil)

// ProviderOption configures a Provider at construction time.
type ProviderOption func(*Provider)

// WithProviderLogger sets a custom logger for the provider and its client.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New builds a Provider from a parsed Config. name identifies the instance
// for logs and metrics labels.
func New(name string, cfg *Config, opts ...ProviderOption) (*Provider, error) {
	if cfg == nil {
		return nil, ddns.New(ddns.KindConfig, "cloudflare: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		name:    name,
		zone:    cfg.Zone,
		zoneID:  cfg.ZoneID,
		ttl:     cfg.TTL,
		proxied: cfg.Proxied,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client = NewClient(cfg.Token, WithLogger(p.logger), WithDryRun(cfg.DryRun))
	return p, nil
}

// resolveZoneID returns the configured or looked-up zone ID, caching the
// lookup for the provider's lifetime.
func (p *Provider) resolveZoneID(ctx context.Context) (string, error) {
	if p.zoneID != "" {
		return p.zoneID, nil
	}
	p.zoneIDOnce.Do(func() {
		p.zoneID, p.zoneIDErr = p.client.GetZoneID(ctx, p.zone)
	})
	return p.zoneID, p.zoneIDErr
}

func (p *Provider) addressRecordType(newIP netip.Addr) string {
	if newIP.Is4() || newIP.Is4In6() {
		return recordTypeA
	}
	return recordTypeAAAA
}

// GetRecord fetches the current value of name from Cloudflare.
func (p *Provider) GetRecord(ctx context.Context, name ddns.DomainName) (ddns.RecordMetadata, error) {
	zoneID, err := p.resolveZoneID(ctx)
	if err != nil {
		return ddns.RecordMetadata{}, err
	}

	for _, rt := range []string{recordTypeA, recordTypeAAAA} {
		rec, err := p.client.FindRecord(ctx, zoneID, rt, string(name))
		if err != nil {
			return ddns.RecordMetadata{}, err
		}
		if rec == nil {
			continue
		}
		addr, perr := netip.ParseAddr(rec.Content)
		if perr != nil {
			return ddns.RecordMetadata{}, ddns.Newf(ddns.KindInternal, "cloudflare: record %s has unparseable content %q", name, rec.Content)
		}
		ttl := rec.TTL
		id := rec.ID
		return ddns.RecordMetadata{RecordName: name, CurrentIP: addr, TTL: &ttl, ProviderID: &id}, nil
	}
	return ddns.RecordMetadata{}, ddns.Wrap(ddns.KindNotFound, "cloudflare: record "+string(name)+" not found", ddns.ErrNotFound)
}

// UpdateRecord converges name to newIP, creating the record if absent and
// returning Unchanged without writing if Cloudflare already holds newIP.
func (p *Provider) UpdateRecord(ctx context.Context, name ddns.DomainName, newIP netip.Addr) (ddns.UpdateResult, error) {
	zoneID, err := p.resolveZoneID(ctx)
	if err != nil {
		return ddns.UpdateResult{}, err
	}

	recordType := p.addressRecordType(newIP)
	existing, err := p.client.FindRecord(ctx, zoneID, recordType, string(name))
	if err != nil {
		return ddns.UpdateResult{}, err
	}

	ttl := p.effectiveTTL()

	if existing == nil {
		if err := p.client.CreateRecord(ctx, zoneID, recordType, string(name), newIP.String(), ttl, p.proxied); err != nil {
			return ddns.UpdateResult{}, err
		}
		if p.client.dryRun {
			// Dry-run never creates a record; report the record as Updated
			// from no known previous value rather than claiming a Created
			// record that doesn't exist at Cloudflare.
			return ddns.Updated(name, newIP, nil, map[string]string{"zone_id": zoneID}), nil
		}
		p.logger.Info("created record", slog.String("provider", p.name), slog.String("record", string(name)), slog.String("ip", newIP.String()))
		return ddns.Created(name, newIP, map[string]string{"zone_id": zoneID}), nil
	}

	if existing.Content == newIP.String() {
		return ddns.Unchanged(name, newIP), nil
	}

	previous, perr := netip.ParseAddr(existing.Content)
	var previousPtr *netip.Addr
	if perr == nil {
		previousPtr = &previous
	}

	if err := p.client.UpdateRecord(ctx, zoneID, existing.ID, recordType, string(name), newIP.String(), ttl, p.proxied); err != nil {
		return ddns.UpdateResult{}, err
	}
	p.logger.Info("updated record", slog.String("provider", p.name), slog.String("record", string(name)), slog.String("ip", newIP.String()))
	return ddns.Updated(name, newIP, previousPtr, map[string]string{"zone_id": zoneID, "record_id": existing.ID}), nil
}

func (p *Provider) effectiveTTL() int {
	ttl := p.ttl
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if p.proxied {
		ttl = 1
	}
	return ttl
}

// SupportsRecord reports whether name falls within this provider's zone.
func (p *Provider) SupportsRecord(name ddns.DomainName) bool {
	if p.zone == "" {
		return true // zone resolved purely by ID; accept everything configured to this instance
	}
	n := strings.ToLower(string(name))
	zone := strings.ToLower(p.zone)
	return n == zone || strings.HasSuffix(n, "."+zone)
}

// Name identifies the provider instance for logs and metrics labels.
func (p *Provider) Name() string {
	return p.name
}
