// ddnsd watches a public IP address and converges one or more DNS records
// to match it, persisting convergence state across restarts.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"gitlab.bluewillows.net/root/ddnsd/internal/config"
	"gitlab.bluewillows.net/root/ddnsd/internal/health"
	"gitlab.bluewillows.net/root/ddnsd/internal/metrics"
	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
	"gitlab.bluewillows.net/root/ddnsd/pkg/engine"
	"gitlab.bluewillows.net/root/ddnsd/providers/cloudflare"
	"gitlab.bluewillows.net/root/ddnsd/sources/httpip"
	"gitlab.bluewillows.net/root/ddnsd/sources/traefik"
	"gitlab.bluewillows.net/root/ddnsd/statestores/filestate"
	"gitlab.bluewillows.net/root/ddnsd/statestores/memstate"
)

// Version and BuildDate are set via ldflags during build.
// Example: -ldflags="-X main.Version=v1.0.0 -X main.BuildDate=2026-01-03"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// forceExitDelay bounds graceful shutdown: ddnsd force-exits if the engine
// hasn't stopped within this window of a signal.
const forceExitDelay = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.GetConfigFilePath())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
	recorder.SetBuildInfo(Version, runtime.Version())

	logger.Info("ddnsd starting",
		slog.String("version", Version),
		slog.String("build_date", BuildDate),
		slog.String("go_version", runtime.Version()),
		slog.Int("records", len(cfg.Engine.Records)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sources := ddns.NewIpSourceRegistry()
	sources.RegisterFactory("httpip", httpip.Factory())
	sources.RegisterFactory("traefik", traefik.Factory())

	providers := ddns.NewDnsProviderRegistry()
	providers.RegisterFactory("cloudflare", cloudflare.Factory())

	stores := ddns.NewStateStoreRegistry()
	stores.RegisterFactory("memory", memstate.Factory())
	stores.RegisterFactory("file", filestate.Factory())

	buildCtx, buildCancel := context.WithTimeout(ctx, 30*time.Second)
	subsystems, err := engine.BuildSubsystems(buildCtx, sources, providers, stores, cfg.Source, cfg.Provider, cfg.State)
	buildCancel()
	if err != nil {
		return fmt.Errorf("constructing subsystems: %w", err)
	}

	logger.Info("subsystems constructed",
		slog.String("source", cfg.Source.Name),
		slog.String("provider", cfg.Provider.Name),
		slog.String("state", cfg.State.Name),
	)

	eng, events := engine.New(subsystems.Source, subsystems.Provider, subsystems.State, cfg.Engine,
		engine.WithLogger(logger),
		engine.WithRecorder(recorder),
	)

	healthServer := health.New(cfg.HealthPort, health.WithLogger(logger))
	healthServer.RegisterChecker("provider:"+subsystems.Provider.Name(), func(ctx context.Context) error {
		_, err := subsystems.Provider.GetRecord(ctx, cfg.Engine.Records[0].Name)
		if err != nil && ddns.Classify(err) != ddns.KindNotFound {
			return err
		}
		return nil
	})
	healthServer.SetSubsystems(cfg.Source.Name, cfg.Provider.Name, cfg.State.Name, len(cfg.Engine.Records))

	failures := newFailureTracker(consecutiveFailureThreshold)
	healthServer.RegisterDegradedChecker("record-update-failures", failures.Degraded)

	if err := healthServer.Start(); err != nil {
		return fmt.Errorf("starting health server: %w", err)
	}

	go drainEvents(events, logger, healthServer, failures)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- eng.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-runErrCh:
		if err != nil {
			logger.Error("engine run returned an error", slog.String("error", err.Error()))
		}
		cancel()
		return shutdownHealthServer(healthServer, logger)
	}

	cancel()

	select {
	case <-runErrCh:
	case <-time.After(forceExitDelay):
		logger.Error("engine did not stop within the shutdown deadline; forcing exit",
			slog.Duration("deadline", forceExitDelay))
		os.Exit(1)
	}

	return shutdownHealthServer(healthServer, logger)
}

func shutdownHealthServer(s *health.Server, logger *slog.Logger) error {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("ddnsd shutdown complete")
	return nil
}

// drainEvents turns every EngineEvent into a structured log line for the
// lifetime of the process; this is the "external observer" the engine
// itself has no knowledge of. It also feeds the health server's snapshot,
// so /health reflects the engine's most recent activity, and the failure
// tracker, so /ready can report degraded without failing outright.
func drainEvents(events <-chan ddns.EngineEvent, logger *slog.Logger, healthServer *health.Server, failures *failureTracker) {
	for ev := range events {
		healthServer.ObserveEvent(ev.Kind.String(), ev.At)
		failures.Observe(ev)

		attrs := []any{slog.String("kind", ev.Kind.String())}
		if ev.RecordName != "" {
			attrs = append(attrs, slog.String("record", string(ev.RecordName)))
		}
		switch ev.Kind {
		case ddns.EventUpdateFailed:
			logger.Error(ev.String(), attrs...)
		case ddns.EventUpdateSkipped, ddns.EventStopped:
			logger.Warn(ev.String(), attrs...)
		default:
			logger.Info(ev.String(), attrs...)
		}
	}
}

// consecutiveFailureThreshold is how many back-to-back EventUpdateFailed
// events for the same record the engine keeps emitting before
// failureTracker reports that record as degraded. The engine already
// retries within a single update attempt; this tracks failures across
// separate IP-change events, which only accumulate when a provider or
// network problem outlives a single attempt's retry budget.
const consecutiveFailureThreshold = 3

// failureTracker turns a stream of EngineEvent values into a degraded-state
// signal for health.Server: a record that has failed to update
// consecutively, without an intervening success, is reported as degraded
// rather than failing /ready outright, since the engine is still running
// and will keep retrying on the next IP change.
type failureTracker struct {
	threshold int

	mu    sync.Mutex
	fails map[ddns.DomainName]int
}

func newFailureTracker(threshold int) *failureTracker {
	return &failureTracker{threshold: threshold, fails: make(map[ddns.DomainName]int)}
}

// Observe updates the per-record consecutive-failure count from ev.
func (f *failureTracker) Observe(ev ddns.EngineEvent) {
	if ev.RecordName == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch ev.Kind {
	case ddns.EventUpdateFailed:
		f.fails[ev.RecordName]++
	case ddns.EventUpdateSucceeded:
		delete(f.fails, ev.RecordName)
	}
}

// Degraded satisfies health.DegradedChecker: it reports degraded once any
// record has reached the tracker's consecutive-failure threshold.
func (f *failureTracker) Degraded(_ context.Context) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var degraded []string
	for name, count := range f.fails {
		if count >= f.threshold {
			degraded = append(degraded, fmt.Sprintf("%s (%d consecutive failures)", name, count))
		}
	}
	if len(degraded) == 0 {
		return false, ""
	}
	sort.Strings(degraded)
	return true, "records failing updates: " + strings.Join(degraded, ", ")
}

func setupLogger(level, format string) *slog.Logger {
	logLevel := parseLogLevel(level)

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
