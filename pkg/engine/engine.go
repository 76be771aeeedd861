// Package engine implements the ddnsd orchestration core: the event loop
// that turns IpChangeEvent values from a ddns.IpSource into converged DNS
// records through a ddns.DnsProvider, durable through a ddns.StateStore.
//
// The engine is the only component allowed to mutate the state store,
// decide whether an update is due, or retry a provider call. It owns all
// three subsystem instances for its lifetime and is itself single-writer:
// at most one call to DnsProvider.UpdateRecord is ever in flight.
package engine

import (
	"context"
	"log/slog"
	"time"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
)

// Engine is the single-writer orchestrator that turns IpChangeEvent values
// into converged DNS records. Construction is pure: New performs no I/O
// and returns immediately.
type Engine struct {
	provider ddns.DnsProvider
	source   ddns.IpSource
	state    ddns.StateStore
	config   ddns.EngineConfig
	logger   *slog.Logger
	metrics  Recorder

	events chan ddns.EngineEvent
	limits *rateLimiters
}

// Recorder receives counters the engine updates as it runs. A noopRecorder
// is used when the caller doesn't supply one (WithRecorder ignores nil);
// internal/metrics.Recorder satisfies this interface.
type Recorder interface {
	IPChange()
	UpdateAttempt(record, outcome string)
	UpdateDuration(record string, d time.Duration)
	RecordsState(n int)
	EventDropped()
	StateStoreError()
}

type noopRecorder struct{}

func (noopRecorder) IPChange() {}
func (noopRecorder) UpdateAttempt(record, outcome string) {}
func (noopRecorder) UpdateDuration(record string, d time.Duration) {}
func (noopRecorder) RecordsState(n int) {}
func (noopRecorder) EventDropped() {}
func (noopRecorder) StateStoreError() {}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRecorder sets a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.metrics = r
		}
	}
}

// New constructs an Engine and its outbound event channel. cfg must already
// have passed Validate. The engine reloads every record's last-accepted-
// update timestamp from the state store's StateRecord.LastUpdated at the
// start of Run, before the first event is handled, rather than during New,
// since New must not perform I/O.
func New(source ddns.IpSource, provider ddns.DnsProvider, state ddns.StateStore, cfg ddns.EngineConfig, opts ...Option) (*Engine, <-chan ddns.EngineEvent) {
	events := make(chan ddns.EngineEvent, cfg.EventChannelCapacity)
	e := &Engine{
		provider: provider,
		source:   source,
		state:    state,
		config:   cfg,
		logger:   slog.Default(),
		metrics:  noopRecorder{},
		events:   events,
		limits:   newRateLimiters(cfg.MinUpdateInterval),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, events
}

func (e *Engine) emit(ev ddns.EngineEvent) {
	ev.At = time.Now().UTC()
	select {
	case e.events <- ev:
	default:
		e.metrics.EventDropped()
		e.logger.Warn("engine event channel full; event dropped", slog.String("kind", ev.Kind.String()))
	}
}

// Run executes the startup sequence and event loop until ctx is cancelled
// or the IP source's stream terminates. It always returns nil; failures
// during the run are reported per-record and per-subsystem through
// emitted events and log records instead of a returned error.
func (e *Engine) Run(ctx context.Context) error {
	e.emit(ddns.EngineEvent{Kind: ddns.EventStarted, RecordsCount: len(e.config.Records)})

	e.seedRateLimiters(ctx)
	e.reportRecordsState(ctx)

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	initial, err := e.source.Current(startCtx)
	cancel()
	if err != nil {
		e.logger.Warn("ip source current() failed at startup; waiting for stream", slog.String("error", err.Error()))
	} else if verr := ddns.ValidateIP(initial); verr != nil {
		e.logger.Warn("ip source current() returned an invalid address", slog.String("error", verr.Error()))
	} else {
		e.processEvent(ctx, ddns.IpChangeEvent{NewIP: initial, ObservedAt: time.Now().UTC()})
	}

	stream, err := e.source.Watch(ctx)
	if err != nil {
		e.shutdown(ctx, "ip source watch failed: "+err.Error())
		return nil
	}

	reason := "shutdown requested"
	for {
		select {
		case <-ctx.Done():
			goto stopped
		case ev, ok := <-stream:
			if !ok {
				reason = "ip source terminated"
				goto stopped
			}
			e.processEvent(ctx, ev)
		}
	}

stopped:
	e.shutdown(ctx, reason)
	return nil
}

func (e *Engine) processEvent(ctx context.Context, ev ddns.IpChangeEvent) {
	if err := ddns.ValidateIP(ev.NewIP); err != nil {
		e.logger.Warn("discarding invalid IP change event", slog.String("error", err.Error()))
		return
	}
	e.metrics.IPChange()

	for _, record := range e.config.Records {
		e.emit(ddns.EngineEvent{Kind: ddns.EventIpChangeDetected, RecordName: record.Name, NewIP: ev.NewIP})
	}
	for _, record := range e.config.Records {
		e.handleRecord(ctx, record, ev.NewIP)
	}
}

// reportRecordsState sets the records-state gauge to the state store's
// current record count. Called at startup and after every write that
// changes which records the store holds.
func (e *Engine) reportRecordsState(ctx context.Context) {
	names, err := e.state.ListRecords(ctx)
	if err != nil {
		e.logger.Warn("state store list failed while reporting records state", slog.String("error", err.Error()))
		return
	}
	e.metrics.RecordsState(len(names))
}

func (e *Engine) shutdown(ctx context.Context, reason string) {
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.state.Flush(flushCtx); err != nil {
		e.logger.Error("state store flush failed during shutdown", slog.String("error", err.Error()))
	}
	e.emit(ddns.EngineEvent{Kind: ddns.EventStopped, Reason: reason})
	_ = e.source.Close()
	_ = e.state.Close()
}
