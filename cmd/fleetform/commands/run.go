package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetform/fleetform/pkg/engine"
	"github.com/fleetform/fleetform/pkg/inventory"
	"github.com/fleetform/fleetform/pkg/telemetry"
)

// runTelemetry is the bundle for the command in flight; commands run one
// at a time, and disconnectAll shuts it down.
var runTelemetry *telemetry.Telemetry

// newTelemetry builds the telemetry bundle from the global flags.
func newTelemetry() (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if metricsListen != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = metricsListen
	}
	if traceExporter != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = traceExporter
		cfg.Tracing.Endpoint = traceEndpoint
	}
	return telemetry.NewTelemetry(cfg)
}

// setupRun loads the inventory, builds the run state and materializes
// the hosts every remote-facing command operates on, honoring the
// --limit group filter. The inventory file is watched for the duration
// of ctx so edits made mid-run are picked up.
func setupRun(ctx context.Context) (*engine.RunState, []*engine.Host, error) {
	inv, err := inventory.Load(inventoryPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading inventory %s: %w", inventoryPath, err)
	}

	tel, err := newTelemetry()
	if err != nil {
		return nil, nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	runTelemetry = tel
	if err := tel.Metrics.StartMetricsServer(); err != nil {
		return nil, nil, fmt.Errorf("starting metrics server: %w", err)
	}

	go func() {
		if err := inv.Watch(ctx, inventoryPath); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("inventory watcher stopped")
		}
	}()

	cfg := engine.DefaultRunConfig()
	cfg.Parallel = parallel
	state := engine.NewRunState(inv,
		engine.WithConfig(cfg),
		engine.WithLogger(log.Logger),
		engine.WithMetrics(tel.Metrics),
		engine.WithEvents(tel.Events),
		engine.WithTracer(tel.Tracer),
	)

	hosts, err := engine.HostsFromInventory(inv)
	if err != nil {
		return nil, nil, err
	}

	if limitGroup != "" {
		filtered := hosts[:0]
		for _, h := range hosts {
			if slices.Contains(h.Groups(), limitGroup) {
				filtered = append(filtered, h)
			}
		}
		hosts = filtered
		if len(hosts) == 0 {
			return nil, nil, fmt.Errorf("no hosts in group %q", limitGroup)
		}
	}

	for _, h := range hosts {
		h.BindState(state)
	}

	return state, hosts, nil
}

// connectAll connects the given hosts with the run's parallelism and
// returns only the ones that came up. Failures are already reported on
// the run log by the connect path.
func connectAll(ctx context.Context, state *engine.RunState, hosts []*engine.Host) []*engine.Host {
	engine.ForEachHost(ctx, state, hosts, func(ctx context.Context, h *engine.Host) error {
		_, err := h.Connect(ctx)
		return err
	})

	connected := make([]*engine.Host, 0, len(hosts))
	for _, h := range hosts {
		if h.Connected() {
			connected = append(connected, h)
		}
	}
	return connected
}

// disconnectAll tears down every open connection and flushes the run's
// telemetry, bounded so a hung transport cannot wedge shutdown.
func disconnectAll(state *engine.RunState, hosts []*engine.Host) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	engine.ForEachHost(ctx, state, hosts, func(ctx context.Context, h *engine.Host) error {
		if err := h.Disconnect(ctx); err != nil {
			log.Warn().Err(err).Str("host", h.Name()).Msg("Disconnect failed")
		}
		return nil
	})

	if runTelemetry != nil {
		if err := runTelemetry.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown failed")
		}
		runTelemetry = nil
	}
}
