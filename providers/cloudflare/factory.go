package cloudflare

import "gitlab.bluewillows.net/root/ddnsd/pkg/ddns"

// Factory returns a ddns.Factory for creating Cloudflare provider
// instances, for registration with a ddns.DnsProviderRegistry under the
// type name "cloudflare".
func Factory() ddns.Factory[ddns.DnsProvider] {
	return func(spec ddns.ProviderSpec) (ddns.DnsProvider, error) {
		cfg, err := ParseConfig(spec.Options)
		if err != nil {
			return nil, err
		}
		return New(spec.Name, cfg)
	}
}
