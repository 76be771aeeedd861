// Package traefik implements a ddns.IpSource that watches a small
// operator-maintained TOML fragment for an external-IP hint, rather than
// discovering hostnames from Traefik's own dynamic configuration. It exists
// for air-gapped or firewalled hosts that cannot self-probe their public
// address: an operator (or a sidecar script with real network visibility)
// drops the current address into the hint file, and this source picks it
// up on its next poll.
//
// This is deliberately not a hostname-discovery source: it never touches a
// ddns.StateStore or ddns.DnsProvider, honoring the IpSource contract's
// prohibition on reaching into the rest of the pipeline.
package traefik

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
)

// DefaultPollInterval is how often the hint file is re-read when no
// interval is configured.
const DefaultPollInterval = 30 * time.Second

// hintFile is the on-disk shape of the hint TOML fragment:
//
//	external_ip = "203.0.113.7"
type hintFile struct {
	ExternalIP string `toml:"external_ip"`
}

// Source polls a TOML hint file on a fixed interval and emits an
// IpChangeEvent whenever the parsed address differs from the last one
// observed. It runs exactly one poller goroutine, started by Watch.
type Source struct {
	path         string
	pollInterval time.Duration
	version      ddns.IPVersion
	logger       *slog.Logger

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

// WithVersion restricts the addresses this source will report.
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

// New builds a Source that watches the hint file at path.
func New(path string, opts ...Option) (*Source, error) {
	if path == "" {
		return nil, ddns.New(ddns.KindConfig, "traefik: path must not be empty")
	}
	s := &Source{
		path:         path,
		pollInterval: DefaultPollInterval,
		version:      ddns.IPAny,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Source) readHint() (netip.Addr, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return netip.Addr{}, ddns.Wrap(ddns.KindTransient, "traefik: reading hint file", err)
	}
	var hint hintFile
	if err := toml.Unmarshal(data, &hint); err != nil {
		return netip.Addr{}, ddns.Wrap(ddns.KindConfig, "traefik: parsing hint file", err)
	}
	if hint.ExternalIP == "" {
		return netip.Addr{}, ddns.New(ddns.KindConfig, "traefik: hint file has no external_ip")
	}
	addr, err := netip.ParseAddr(hint.ExternalIP)
	if err != nil {
		return netip.Addr{}, ddns.Newf(ddns.KindConfig, "traefik: external_ip %q is not a valid address", hint.ExternalIP)
	}
	return addr, nil
}

// Current reads the hint file once and returns the parsed address.
func (s *Source) Current(ctx context.Context) (netip.Addr, error) {
	return s.readHint()
}

// Watch starts the poller goroutine and returns the channel it publishes
// changes on. Calling Watch more than once returns an error.
func (s *Source) Watch(ctx context.Context) (<-chan ddns.IpChangeEvent, error) {
	if s.ch != nil {
		return nil, ddns.New(ddns.KindInternal, "traefik: Watch already called")
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
			addr, err := s.readHint()
			if err != nil {
				s.logger.Warn("traefik: hint file read failed", slog.String("error", err.Error()))
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
		return fmt.Errorf("traefik: poller did not stop within 1s")
	}
	return nil
}
