package httpip

import (
	"strconv"
	"time"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
)

// Factory returns a ddns.Factory for creating HTTP-polling IP sources, for
// registration with a ddns.IpSourceRegistry under the type name "httpip".
// The spec's Options map supplies URL (optional, defaults to DefaultURL) and
// POLL_INTERVAL_SECONDS (optional).
func Factory() ddns.Factory[ddns.IpSource] {
	return func(spec ddns.ProviderSpec) (ddns.IpSource, error) {
		var opts []Option
		if v := spec.Options["POLL_INTERVAL_SECONDS"]; v != "" {
			secs, err := strconv.Atoi(v)
			if err != nil {
				return nil, ddns.Newf(ddns.KindConfig, "httpip: invalid POLL_INTERVAL_SECONDS %q", v)
			}
			opts = append(opts, WithPollInterval(time.Duration(secs)*time.Second))
		}
		return New(spec.Options["URL"], opts...)
	}
}
