package ddns

import (
	"fmt"
	"net/netip"
	"time"
)

// IpChangeEvent is produced by an IpSource and consumed by the engine.
// PreviousIP is advisory and may be absent. Ordering within a single stream
// from one IpSource is FIFO.
type IpChangeEvent struct {
	NewIP      netip.Addr
	PreviousIP *netip.Addr
	ObservedAt time.Time
}

// RecordConfig names one DNS record the engine manages and whether it is
// currently active. Update order for a batch of records follows the order
// records appear in EngineConfig.Records.
type RecordConfig struct {
	Name    DomainName
	Enabled bool
}

// EngineConfig carries the tunables the caller supplies to construct an
// engine. Construction is pure; Validate must be called before use.
type EngineConfig struct {
	Records              []RecordConfig
	MaxRetries           int
	RetryDelay           time.Duration
	MinUpdateInterval    time.Duration
	EventChannelCapacity int
	UpdateTimeout        time.Duration
}

// Validate checks EngineConfig invariants and returns a KindConfig Error
// describing the first violation found, or nil.
func (c EngineConfig) Validate() error {
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return Newf(KindConfig, "max_retries must be between 0 and 10, got %d", c.MaxRetries)
	}
	if c.RetryDelay < 0 {
		return New(KindConfig, "retry_delay must not be negative")
	}
	if c.MinUpdateInterval < 0 {
		return New(KindConfig, "min_update_interval must not be negative")
	}
	if c.EventChannelCapacity < 0 {
		return New(KindConfig, "event_channel_capacity must not be negative")
	}
	if c.UpdateTimeout <= 0 {
		return New(KindConfig, "update_timeout must be positive")
	}
	seen := make(map[DomainName]struct{}, len(c.Records))
	for _, r := range c.Records {
		if err := r.Name.Validate(); err != nil {
			return err
		}
		if _, dup := seen[r.Name]; dup {
			return Newf(KindConfig, "record %q configured more than once", r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	return nil
}

// StateRecord is the durable convergence record for exactly one managed
// DNS name: the IP last confirmed by a successful provider update, when
// that update happened, and opaque provider bookkeeping.
type StateRecord struct {
	LastIP           netip.Addr        `json:"last_ip"`
	LastUpdated      time.Time         `json:"last_updated"`
	ProviderMetadata map[string]string `json:"provider_metadata,omitempty"`
}

// PersistedState is the top-level on-disk document written by the file
// state store. The version field is mandatory on load.
type PersistedState struct {
	Version string                     `json:"version"`
	Records map[DomainName]StateRecord `json:"records"`
}

// CurrentStateVersion is the version string this implementation writes.
// Unknown versions on load produce a warning but are still loaded.
const CurrentStateVersion = "1.0"

// NewPersistedState returns an empty, current-version PersistedState.
func NewPersistedState() *PersistedState {
	return &PersistedState{Version: CurrentStateVersion, Records: make(map[DomainName]StateRecord)}
}

// UpdateOutcome discriminates the variant of an UpdateResult.
type UpdateOutcome int

const (
	// UpdateOutcomeUpdated means the provider wrote a previously-existing record.
	UpdateOutcomeUpdated UpdateOutcome = iota
	// UpdateOutcomeUnchanged means the provider already held the desired value.
	UpdateOutcomeUnchanged
	// UpdateOutcomeCreated means the record did not exist before this call.
	UpdateOutcomeCreated
)

func (o UpdateOutcome) String() string {
	switch o {
	case UpdateOutcomeUpdated:
		return "updated"
	case UpdateOutcomeUnchanged:
		return "unchanged"
	case UpdateOutcomeCreated:
		return "created"
	default:
		return "unknown"
	}
}

// UpdateResult is the tagged variant a DnsProvider returns from UpdateRecord.
type UpdateResult struct {
	Outcome          UpdateOutcome
	RecordName       DomainName
	NewIP            netip.Addr  // set for Updated and Created
	PreviousIP       *netip.Addr // optional, set for Updated
	CurrentIP        netip.Addr  // set for Unchanged
	ProviderMetadata map[string]string
}

// Updated builds an UpdateOutcomeUpdated result.
func Updated(name DomainName, newIP netip.Addr, previousIP *netip.Addr, meta map[string]string) UpdateResult {
	return UpdateResult{Outcome: UpdateOutcomeUpdated, RecordName: name, NewIP: newIP, PreviousIP: previousIP, ProviderMetadata: meta}
}

// Unchanged builds an UpdateOutcomeUnchanged result.
func Unchanged(name DomainName, currentIP netip.Addr) UpdateResult {
	return UpdateResult{Outcome: UpdateOutcomeUnchanged, RecordName: name, CurrentIP: currentIP}
}

// Created builds an UpdateOutcomeCreated result.
func Created(name DomainName, newIP netip.Addr, meta map[string]string) UpdateResult {
	return UpdateResult{Outcome: UpdateOutcomeCreated, RecordName: name, NewIP: newIP, ProviderMetadata: meta}
}

// RecordMetadata is what a provider reports back from GetRecord, used for
// observability and validation rather than the hot update path.
type RecordMetadata struct {
	RecordName DomainName
	CurrentIP  netip.Addr
	TTL        *int
	ProviderID *string
}

// EventKind discriminates the variant of an EngineEvent.
type EventKind int

const (
	EventStarted EventKind = iota
	EventStopped
	EventIpChangeDetected
	EventUpdateStarted
	EventUpdateSucceeded
	EventUpdateSkipped
	EventUpdateFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventIpChangeDetected:
		return "ip_change_detected"
	case EventUpdateStarted:
		return "update_started"
	case EventUpdateSucceeded:
		return "update_succeeded"
	case EventUpdateSkipped:
		return "update_skipped"
	case EventUpdateFailed:
		return "update_failed"
	default:
		return "unknown"
	}
}

// EngineEvent is emitted on the engine's outbound, non-blocking event channel.
type EngineEvent struct {
	Kind EventKind
	At   time.Time

	RecordsCount int    // EventStarted
	Reason       string // EventStopped, EventUpdateSkipped

	RecordName DomainName  // most variants
	NewIP      netip.Addr  // EventIpChangeDetected, EventUpdateStarted, EventUpdateSucceeded
	PreviousIP *netip.Addr // EventUpdateSucceeded, optional
	CurrentIP  netip.Addr  // EventUpdateSkipped

	Error      string // EventUpdateFailed
	RetryCount int    // EventUpdateFailed
}

// String renders a one-line summary suitable for a log message.
func (e EngineEvent) String() string {
	switch e.Kind {
	case EventStarted:
		return fmt.Sprintf("started records=%d", e.RecordsCount)
	case EventStopped:
		return fmt.Sprintf("stopped reason=%q", e.Reason)
	case EventIpChangeDetected:
		return fmt.Sprintf("ip_change_detected record=%s new_ip=%s", e.RecordName, e.NewIP)
	case EventUpdateStarted:
		return fmt.Sprintf("update_started record=%s new_ip=%s", e.RecordName, e.NewIP)
	case EventUpdateSucceeded:
		return fmt.Sprintf("update_succeeded record=%s new_ip=%s", e.RecordName, e.NewIP)
	case EventUpdateSkipped:
		return fmt.Sprintf("update_skipped record=%s reason=%q", e.RecordName, e.Reason)
	case EventUpdateFailed:
		return fmt.Sprintf("update_failed record=%s retry_count=%d error=%q", e.RecordName, e.RetryCount, e.Error)
	default:
		return "unknown event"
	}
}
