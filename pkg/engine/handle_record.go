package engine

import (
	"context"
	"log/slog"
	"net/netip"
	"time"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
)

// handleRecord converges a single record to newIP. A disabled record is
// ignored without an event; every later step that can short-circuit emits
// UpdateSkipped and returns before spending a provider call or a
// rate-limit slot on work that isn't due.
func (e *Engine) handleRecord(ctx context.Context, record ddns.RecordConfig, newIP netip.Addr) {
	if !record.Enabled {
		return
	}

	if !e.provider.SupportsRecord(record.Name) {
		e.emit(ddns.EngineEvent{Kind: ddns.EventUpdateSkipped, RecordName: record.Name, Reason: "unsupported", CurrentIP: newIP})
		return
	}

	res, ready := e.limits.reserve(record.Name)
	if !ready {
		e.emit(ddns.EngineEvent{Kind: ddns.EventUpdateSkipped, RecordName: record.Name, Reason: "rate-limited", CurrentIP: newIP})
		return
	}
	committed := false
	defer func() {
		if !committed {
			res.cancel()
		}
	}()

	current, err := e.state.GetLastIP(ctx, record.Name)
	if err != nil {
		e.logger.Error("state store read failed", slog.String("record", string(record.Name)), slog.String("error", err.Error()))
		e.metrics.StateStoreError()
	} else if current == newIP {
		e.emit(ddns.EngineEvent{Kind: ddns.EventUpdateSkipped, RecordName: record.Name, Reason: "unchanged", CurrentIP: newIP})
		return
	}

	e.emit(ddns.EngineEvent{Kind: ddns.EventUpdateStarted, RecordName: record.Name, NewIP: newIP})

	start := time.Now()
	result, retries, updateErr := e.retryUpdate(ctx, record.Name, newIP)
	e.metrics.UpdateDuration(string(record.Name), time.Since(start))

	if updateErr != nil {
		e.metrics.UpdateAttempt(string(record.Name), "failed")
		e.emit(ddns.EngineEvent{Kind: ddns.EventUpdateFailed, RecordName: record.Name, Error: updateErr.Error(), RetryCount: retries})
		return
	}
	committed = true

	meta := result.ProviderMetadata
	if result.Outcome != ddns.UpdateOutcomeUnchanged {
		rec := ddns.StateRecord{LastIP: newIP, LastUpdated: time.Now().UTC(), ProviderMetadata: meta}
		if setErr := e.state.SetRecord(ctx, record.Name, rec); setErr != nil {
			e.logger.Error("state store write failed; continuing with in-memory state",
				slog.String("record", string(record.Name)), slog.String("error", setErr.Error()))
			e.metrics.StateStoreError()
		} else {
			e.reportRecordsState(ctx)
		}
	}

	e.metrics.UpdateAttempt(string(record.Name), result.Outcome.String())
	e.emit(ddns.EngineEvent{Kind: ddns.EventUpdateSucceeded, RecordName: record.Name, NewIP: newIP, PreviousIP: result.PreviousIP})
}

// retryUpdate drives the bounded retry loop around a single provider
// update call. It returns the final UpdateResult on success, or the last
// error and the number of retries (attempts beyond the first) spent once
// the budget is exhausted or a fatal-disposition error is returned.
func (e *Engine) retryUpdate(ctx context.Context, name ddns.DomainName, newIP netip.Addr) (ddns.UpdateResult, int, error) {
	var lastErr error
	sawConflict := false

	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.config.UpdateTimeout)
		result, err := e.provider.UpdateRecord(callCtx, name, newIP)
		cancel()

		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		kind := ddns.Classify(err)
		switch kind {
		case ddns.KindAuthentication, ddns.KindNotFound, ddns.KindConfig:
			return ddns.UpdateResult{}, attempt, err
		case ddns.KindConflict:
			if sawConflict {
				return ddns.UpdateResult{}, attempt, err
			}
			sawConflict = true
		case ddns.KindTransient, ddns.KindRateLimited:
			// fall through to retry budget check below
		default:
			return ddns.UpdateResult{}, attempt, err
		}

		if attempt >= e.config.MaxRetries {
			return ddns.UpdateResult{}, attempt, lastErr
		}

		delay := e.config.RetryDelay * time.Duration(1<<attempt)
		if provided, ok := ddns.RetryAfterOf(err); ok && provided > delay {
			delay = provided
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ddns.UpdateResult{}, attempt, ctx.Err()
		case <-timer.C:
		}
	}
}
