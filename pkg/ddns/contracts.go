package ddns

import (
	"context"
	"net/netip"
)

// IPVersion selects which address family a component cares about.
type IPVersion int

const (
	IPv4Only IPVersion = iota
	IPv6Only
	IPAny
)

func (v IPVersion) String() string {
	switch v {
	case IPv4Only:
		return "ipv4"
	case IPv6Only:
		return "ipv6"
	case IPAny:
		return "any"
	default:
		return "unknown"
	}
}

// IpSource observes the public IP address the engine should publish and
// reports it as a stream of IpChangeEvent values.
//
// No method may touch a StateStore or DnsProvider, retry internally, or
// poll on a fixed sleep as its primary mechanism; a low-frequency fallback
// sweep is permitted only when documented as such (sources/httpip). A
// source may run at most one internal observer goroutine, and its lifetime
// must be tied to the stream Watch returns.
type IpSource interface {
	// Current returns a single snapshot. The engine calls this once at
	// startup with a 5-second deadline; implementations should answer
	// promptly rather than waiting for the next scheduled observation.
	Current(ctx context.Context) (netip.Addr, error)

	// Watch returns a channel the engine reads until it closes. Closure is
	// the source's one-time, unrecoverable terminal signal ("None" in the
	// spec's sequence model): the source must stop sending after closing,
	// and the engine treats closure as cause to stop the whole subsystem
	// that source feeds, emitting Stopped with reason "ip source
	// terminated". A source that can recover
	// from a transient failure (a timed-out poll, say) must swallow it
	// internally and keep the channel open, not close and restart.
	//
	// Watch must return promptly when ctx is cancelled, closing its channel
	// as part of doing so, and must stop the observer goroutine within 1
	// second of cancellation.
	Watch(ctx context.Context) (<-chan IpChangeEvent, error)

	// Version advertises which address families this source produces, as
	// an advisory filter; IPAny means no filtering is possible.
	Version() IPVersion

	// Close releases any resources held by the source. Safe to call more
	// than once.
	Close() error
}

// DnsProvider performs authenticated reads and writes against one DNS
// hosting API on behalf of the records the engine has been configured to
// manage.
//
// All methods must return a *Error (see Classify) so the engine can decide
// whether to retry. Implementations must never let an API token or other
// secret reach a returned error's message, nor any log line they emit
// themselves.
type DnsProvider interface {
	// GetRecord fetches the current value of name, or a KindNotFound error
	// wrapping ErrNotFound if it does not exist at the provider. Used for observability and validation, not
	// required on the hot update path.
	GetRecord(ctx context.Context, name DomainName) (RecordMetadata, error)

	// UpdateRecord converges name to newIP, creating the record if absent.
	// Exactly one logical attempt: no internal retries, no backoff, no
	// sleeping, no task spawning. If the provider already holds newIP for
	// name, it returns Unchanged without writing.
	UpdateRecord(ctx context.Context, name DomainName, newIP netip.Addr) (UpdateResult, error)

	// SupportsRecord is a synchronous filter letting the provider decline
	// records outside its authority (the wrong zone, say) before the engine
	// spends a rate-limit slot or state lookup on it.
	SupportsRecord(name DomainName) bool

	// Name identifies the provider instance for logs and metrics labels.
	Name() string
}

// StateStore persists the engine's convergence state so that a restart does
// not re-issue updates the provider already has. The engine is the sole
// writer; a store need only serialize its own read-modify-write-persist
// sequence internally, not defend against a second concurrent writer.
type StateStore interface {
	// GetLastIP returns the last confirmed IP for name, or the zero Addr
	// (IsValid() == false) if no StateRecord exists for it yet.
	GetLastIP(ctx context.Context, name DomainName) (netip.Addr, error)

	// GetRecord returns the full StateRecord for name, or ok == false if
	// none exists yet.
	GetRecord(ctx context.Context, name DomainName) (StateRecord, bool, error)

	// SetLastIP is a convenience equivalent to SetRecord with LastUpdated
	// set to now and the prior ProviderMetadata preserved.
	SetLastIP(ctx context.Context, name DomainName, ip netip.Addr) error

	// SetRecord replaces the StateRecord for name.
	SetRecord(ctx context.Context, name DomainName, record StateRecord) error

	// DeleteRecord removes any StateRecord held for name. Deleting a name
	// with no record is not an error.
	DeleteRecord(ctx context.Context, name DomainName) error

	// ListRecords returns every known record name. Order is unspecified
	// unless a concrete implementation documents otherwise.
	ListRecords(ctx context.Context) ([]DomainName, error)

	// Flush persists all pending writes to durable storage. The engine
	// calls this with a 5-second deadline before shutdown; a store backed
	// purely by memory treats this as a no-op.
	Flush(ctx context.Context) error

	// Close releases any resources held by the store. Safe to call more
	// than once.
	Close() error
}
