// Package httpip implements a ddns.IpSource that polls a configurable "what's
// my IP" HTTP endpoint on a fixed interval. It is the low-frequency fallback
// sweep for hosts that have no event-driven signal of their own: absent a
// kernel-level interface-change notifier, this is the source that eventually
// notices an address rotation, at the cost of detection latency bounded by
// the poll interval rather than by the change itself.
//
// The polling and single-slot publish loop follows the producer/poller shape
// used elsewhere for IP observation: one goroutine owns a ticker, fetches a
// snapshot, and publishes only when the snapshot differs from the last one
// seen.
package httpip

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/ddnsd/pkg/httputil"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
)

// DefaultPollInterval is how often the endpoint is queried when no interval
// is configured.
const DefaultPollInterval = 5 * time.Minute

// DefaultURL is queried when no endpoint is configured. It returns the
// caller's IPv4 address as plain text.
const DefaultURL = "https://api.ipify.org"

// maxBodySize bounds how much of the response body is read; a well-behaved
// "what's my IP" endpoint returns a handful of bytes.
const maxBodySize = 256

// Source polls an HTTP endpoint for the caller's public address on a fixed
// interval and emits an IpChangeEvent whenever the parsed address differs
// from the last one observed. It runs exactly one poller goroutine, started
// by Watch.
type Source struct {
	url          string
	pollInterval time.Duration
	version      ddns.IPVersion
	logger       *slog.Logger
	httpClient   *http.Client

	ch     chan ddns.IpChangeEvent
	cancel context.CancelFunc
	done   chan struct{}
}

var _ ddns.IpSource = (*Source)(nil)

// Option configures a Source at construction time.
type Option func(*Source)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithVersion restricts the addresses this source will report. The
// underlying endpoint must itself answer with the requested family; httpip
// does not dial separate v4/v6-only endpoints.
func WithVersion(v ddns.IPVersion) Option {
	return func(s *Source) { s.version = v }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHTTPClient overrides the default HTTP client, e.g. to set a custom
// timeout or transport.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// New builds a Source that polls the given URL for the caller's address. An
// empty url falls back to DefaultURL.
func New(url string, opts ...Option) (*Source, error) {
	if url == "" {
		url = DefaultURL
	}
	s := &Source{
		url:          url,
		pollInterval: DefaultPollInterval,
		version:      ddns.IPAny,
		logger:       slog.Default(),
		httpClient:   httputil.NewClient(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Source) fetch(ctx context.Context) (netip.Addr, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return netip.Addr{}, ddns.Wrap(ddns.KindConfig, "httpip: building request", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return netip.Addr{}, ddns.Wrap(ddns.KindTransient, "httpip: fetching address", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return netip.Addr{}, ddns.Newf(ddns.KindTransient, "httpip: endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(bufio.NewReader(resp.Body), maxBodySize))
	if err != nil {
		return netip.Addr{}, ddns.Wrap(ddns.KindTransient, "httpip: reading response body", err)
	}
	text := strings.TrimSpace(string(body))
	addr, err := netip.ParseAddr(text)
	if err != nil {
		return netip.Addr{}, ddns.Newf(ddns.KindTransient, "httpip: endpoint returned an unparseable address %q", text)
	}
	if !addressMatchesVersion(addr, s.version) {
		return netip.Addr{}, ddns.Newf(ddns.KindTransient, "httpip: endpoint returned %v, which does not match the configured address family", addr)
	}
	return addr, nil
}

func addressMatchesVersion(addr netip.Addr, v ddns.IPVersion) bool {
	switch v {
	case ddns.IPv4Only:
		return addr.Is4()
	case ddns.IPv6Only:
		return addr.Is6() && !addr.Is4In6()
	default:
		return true
	}
}

// Current fetches the endpoint once and returns the parsed address.
func (s *Source) Current(ctx context.Context) (netip.Addr, error) {
	return s.fetch(ctx)
}

// Watch starts the poller goroutine and returns the channel it publishes
// changes on. Calling Watch more than once returns an error.
func (s *Source) Watch(ctx context.Context) (<-chan ddns.IpChangeEvent, error) {
	if s.ch != nil {
		return nil, ddns.New(ddns.KindInternal, "httpip: Watch already called")
	}
	s.ch = make(chan ddns.IpChangeEvent, 1)
	s.done = make(chan struct{})

	pollCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.poll(pollCtx)
	return s.ch, nil
}

func (s *Source) poll(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var last netip.Addr
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			addr, err := s.fetch(ctx)
			if err != nil {
				s.logger.Warn("httpip: poll failed", slog.String("error", err.Error()))
				continue
			}
			if addr == last {
				continue
			}
			var previous *netip.Addr
			if last.IsValid() {
				p := last
				previous = &p
			}
			ev := ddns.IpChangeEvent{NewIP: addr, PreviousIP: previous, ObservedAt: time.Now().UTC()}
			last = addr
			select {
			case s.ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Version advertises this source's address-family filter.
func (s *Source) Version() ddns.IPVersion {
	return s.version
}

// Close stops the poller goroutine, waiting up to 1 second for it to exit.
func (s *Source) Close() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(1 * time.Second):
		return fmt.Errorf("httpip: poller did not stop within 1s")
	}
	return nil
}
