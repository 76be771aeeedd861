package engine

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
	"gitlab.bluewillows.net/root/ddnsd/statestores/memstate"
)

// fakeSource is a minimal ddns.IpSource whose Current value and Watch
// channel are driven directly by the test.
type fakeSource struct {
	current netip.Addr
	currErr error
	ch      chan ddns.IpChangeEvent
}

func newFakeSource(current netip.Addr) *fakeSource {
	return &fakeSource{current: current, ch: make(chan ddns.IpChangeEvent, 8)}
}

func (s *fakeSource) Current(ctx context.Context) (netip.Addr, error) { return s.current, s.currErr }
func (s *fakeSource) Watch(ctx context.Context) (<-chan ddns.IpChangeEvent, error) {
	return s.ch, nil
}
func (s *fakeSource) Version() ddns.IPVersion { return ddns.IPAny }
func (s *fakeSource) Close() error            { close(s.ch); return nil }

// fakeProvider returns a scripted sequence of (result, error) pairs, one
// per call to UpdateRecord, repeating the last entry once exhausted.
type fakeProvider struct {
	mu      sync.Mutex
	script  []scriptedCall
	calls   int
	support func(ddns.DomainName) bool
}

type scriptedCall struct {
	result ddns.UpdateResult
	err    error
}

func newFakeProvider(script ...scriptedCall) *fakeProvider {
	return &fakeProvider{script: script, support: func(ddns.DomainName) bool { return true }}
}

func (p *fakeProvider) UpdateRecord(ctx context.Context, name ddns.DomainName, newIP netip.Addr) (ddns.UpdateResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	p.calls++
	return p.script[idx].result, p.script[idx].err
}
func (p *fakeProvider) GetRecord(ctx context.Context, name ddns.DomainName) (ddns.RecordMetadata, error) {
	return ddns.RecordMetadata{}, ddns.ErrNotFound
}
func (p *fakeProvider) SupportsRecord(name ddns.DomainName) bool { return p.support(name) }
func (p *fakeProvider) Name() string                             { return "fake" }
func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func testConfig(records ...ddns.RecordConfig) ddns.EngineConfig {
	return ddns.EngineConfig{
		Records:              records,
		MaxRetries:           3,
		RetryDelay:           10 * time.Millisecond,
		MinUpdateInterval:    time.Minute,
		EventChannelCapacity: 16,
		UpdateTimeout:        time.Second,
	}
}

func drainUntil(t *testing.T, events <-chan ddns.EngineEvent, kind ddns.EventKind, timeout time.Duration) ddns.EngineEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %s", kind)
		}
	}
}

// Scenario A: first successful update.
func TestEngineScenarioA_FirstUpdate(t *testing.T) {
	ip := netip.MustParseAddr("203.0.113.4")
	src := newFakeSource(netip.Addr{})
	src.currErr = ddns.New(ddns.KindTransient, "no snapshot yet")
	prov := newFakeProvider(scriptedCall{result: ddns.Updated("example.com", ip, nil, nil)})
	state := memstate.New()

	cfg := testConfig(ddns.RecordConfig{Name: "example.com", Enabled: true})
	e, events := New(src, prov, state, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	started := drainUntil(t, events, ddns.EventStarted, time.Second)
	if started.RecordsCount != 1 {
		t.Fatalf("expected RecordsCount=1, got %d", started.RecordsCount)
	}

	src.ch <- ddns.IpChangeEvent{NewIP: ip, ObservedAt: time.Now()}

	succ := drainUntil(t, events, ddns.EventUpdateSucceeded, time.Second)
	if succ.NewIP != ip {
		t.Fatalf("expected NewIP %v, got %v", ip, succ.NewIP)
	}

	got, err := state.GetLastIP(context.Background(), "example.com")
	if err != nil || got != ip {
		t.Fatalf("state not updated: got=%v err=%v", got, err)
	}
}

// Scenario B: idempotent re-observation: provider must not be called.
func TestEngineScenarioB_Idempotent(t *testing.T) {
	ip := netip.MustParseAddr("203.0.113.4")
	src := newFakeSource(netip.Addr{})
	src.currErr = ddns.New(ddns.KindTransient, "no snapshot yet")
	prov := newFakeProvider(scriptedCall{result: ddns.Updated("example.com", ip, nil, nil)})
	state := memstate.New()
	_ = state.SetRecord(context.Background(), "example.com", ddns.StateRecord{LastIP: ip, LastUpdated: time.Now().Add(-time.Hour)})

	cfg := testConfig(ddns.RecordConfig{Name: "example.com", Enabled: true})
	e, events := New(src, prov, state, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	drainUntil(t, events, ddns.EventStarted, time.Second)
	src.ch <- ddns.IpChangeEvent{NewIP: ip, ObservedAt: time.Now()}

	skip := drainUntil(t, events, ddns.EventUpdateSkipped, time.Second)
	if skip.Reason != "unchanged" {
		t.Fatalf("expected reason=unchanged, got %q", skip.Reason)
	}
	if prov.callCount() != 0 {
		t.Fatalf("expected 0 provider calls, got %d", prov.callCount())
	}
}

// Scenario C: transient then success, and bounded retry (#5).
func TestEngineScenarioC_TransientThenSuccess(t *testing.T) {
	ip := netip.MustParseAddr("203.0.113.4")
	src := newFakeSource(netip.Addr{})
	src.currErr = ddns.New(ddns.KindTransient, "no snapshot yet")
	prov := newFakeProvider(
		scriptedCall{err: ddns.New(ddns.KindTransient, "timeout")},
		scriptedCall{err: ddns.New(ddns.KindTransient, "timeout")},
		scriptedCall{result: ddns.Updated("example.com", ip, nil, nil)},
	)
	state := memstate.New()

	cfg := testConfig(ddns.RecordConfig{Name: "example.com", Enabled: true})
	cfg.RetryDelay = 5 * time.Millisecond
	e, events := New(src, prov, state, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	drainUntil(t, events, ddns.EventStarted, time.Second)
	src.ch <- ddns.IpChangeEvent{NewIP: ip, ObservedAt: time.Now()}

	drainUntil(t, events, ddns.EventUpdateSucceeded, time.Second)
	if prov.callCount() != 3 {
		t.Fatalf("expected exactly 3 provider calls, got %d", prov.callCount())
	}
}

// Scenario D: authentication failure: no retry, one UpdateFailed.
func TestEngineScenarioD_AuthFailureNoRetry(t *testing.T) {
	ip := netip.MustParseAddr("203.0.113.4")
	src := newFakeSource(netip.Addr{})
	src.currErr = ddns.New(ddns.KindTransient, "no snapshot yet")
	prov := newFakeProvider(scriptedCall{err: ddns.New(ddns.KindAuthentication, "bad token")})
	state := memstate.New()

	cfg := testConfig(ddns.RecordConfig{Name: "example.com", Enabled: true})
	e, events := New(src, prov, state, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	drainUntil(t, events, ddns.EventStarted, time.Second)
	src.ch <- ddns.IpChangeEvent{NewIP: ip, ObservedAt: time.Now()}

	failed := drainUntil(t, events, ddns.EventUpdateFailed, time.Second)
	if failed.RetryCount != 0 {
		t.Fatalf("expected RetryCount=0, got %d", failed.RetryCount)
	}
	if prov.callCount() != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", prov.callCount())
	}
}

// Scenario E: IP flap within min_update_interval: exactly one provider call.
func TestEngineScenarioE_RateLimited(t *testing.T) {
	src := newFakeSource(netip.Addr{})
	src.currErr = ddns.New(ddns.KindTransient, "no snapshot yet")
	prov := newFakeProvider(scriptedCall{result: ddns.Updated("example.com", netip.MustParseAddr("203.0.113.1"), nil, nil)})
	state := memstate.New()

	cfg := testConfig(ddns.RecordConfig{Name: "example.com", Enabled: true})
	cfg.MinUpdateInterval = time.Minute
	e, events := New(src, prov, state, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	drainUntil(t, events, ddns.EventStarted, time.Second)

	ips := []string{"203.0.113.1", "203.0.113.2", "203.0.113.3", "203.0.113.4", "203.0.113.5"}
	for _, s := range ips {
		src.ch <- ddns.IpChangeEvent{NewIP: netip.MustParseAddr(s), ObservedAt: time.Now()}
	}

	drainUntil(t, events, ddns.EventUpdateSucceeded, time.Second)
	for i := 0; i < len(ips)-1; i++ {
		drainUntil(t, events, ddns.EventUpdateSkipped, time.Second)
	}
	if prov.callCount() != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", prov.callCount())
	}
}
