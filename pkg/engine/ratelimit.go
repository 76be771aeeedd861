package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
)

// rateLimiters tracks one golang.org/x/time/rate.Limiter per record name,
// each admitting one event per MinUpdateInterval. A fresh limiter's first
// reservation always succeeds, because x/time/rate treats an unseeded
// limiter's first call as occurring after infinite elapsed time, which
// matches the rule that updates must be separated by at least
// MinUpdateInterval except for the very first one.
//
// handle_record's rate-limit check comes before the idempotency check and
// the retry loop, but only a record that reaches a successful outcome
// should actually spend its slot: an idempotent skip or an exhausted retry
// must not cost the next real change a turn. reserve therefore hands back
// a cancellable reservation rather than committing outright.
type rateLimiters struct {
	mu       sync.Mutex
	interval time.Duration
	byRecord map[ddns.DomainName]*rate.Limiter
}

func newRateLimiters(interval time.Duration) *rateLimiters {
	return &rateLimiters{
		interval: interval,
		byRecord: make(map[ddns.DomainName]*rate.Limiter),
	}
}

func (rl *rateLimiters) limiterFor(name ddns.DomainName) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.byRecord[name]
	if !ok {
		l = rate.NewLimiter(rateLimit(rl.interval), 1)
		rl.byRecord[name] = l
	}
	return l
}

func rateLimit(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

// seed consumes the limiter's initial slot at lastUpdated, so a record's
// first real check after a restart correctly measures elapsed time from
// the last accepted update that happened in a prior process, instead of
// treating the restart as a fresh grace period. lastUpdated is reloaded
// from StateRecord.LastUpdated rather than a separately persisted
// timestamp.
func (rl *rateLimiters) seed(name ddns.DomainName, lastUpdated time.Time) {
	rl.limiterFor(name).AllowN(lastUpdated, 1)
}

// reservation wraps a *rate.Reservation so call sites that decide not to
// spend it (idempotent skip, exhausted retry) can give the slot back.
type reservation struct {
	r *rate.Reservation
}

func (res *reservation) cancel() {
	if res != nil && res.r != nil {
		res.r.Cancel()
	}
}

// reserve reports whether name is due for an update now, and if so returns
// a reservation the caller must either let stand (on a successful outcome)
// or cancel (on any other outcome).
func (rl *rateLimiters) reserve(name ddns.DomainName) (*reservation, bool) {
	r := rl.limiterFor(name).ReserveN(time.Now(), 1)
	if r.Delay() > 0 {
		r.Cancel()
		return nil, false
	}
	return &reservation{r: r}, true
}

func (e *Engine) seedRateLimiters(ctx context.Context) {
	for _, record := range e.config.Records {
		rec, ok, err := e.state.GetRecord(ctx, record.Name)
		if err != nil {
			e.logger.Error("state store read failed while seeding rate limiter", "record", record.Name, "error", err.Error())
			e.metrics.StateStoreError()
			continue
		}
		if ok {
			e.limits.seed(record.Name, rec.LastUpdated)
		}
	}
}
