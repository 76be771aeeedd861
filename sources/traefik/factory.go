package traefik

import (
	"strconv"
	"time"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
)

// Factory returns a ddns.Factory for creating hint-file IP sources, for
// registration with a ddns.IpSourceRegistry under the type name "traefik".
// The spec's Options map supplies PATH (required) and POLL_INTERVAL_SECONDS
// (optional).
func Factory() ddns.Factory[ddns.IpSource] {
	return func(spec ddns.ProviderSpec) (ddns.IpSource, error) {
		path := spec.Options["PATH"]
		if path == "" {
			return nil, ddns.New(ddns.KindConfig, "traefik: PATH option is required")
		}
		var opts []Option
		if v := spec.Options["POLL_INTERVAL_SECONDS"]; v != "" {
			secs, err := parseSeconds(v)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithPollInterval(secs))
		}
		return New(path, opts...)
	}
}

func parseSeconds(v string) (time.Duration, error) {
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, ddns.Newf(ddns.KindConfig, "traefik: invalid POLL_INTERVAL_SECONDS %q", v)
	}
	return time.Duration(secs) * time.Second, nil
}
