package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fleetform/fleetform/pkg/facts"
	"github.com/fleetform/fleetform/pkg/inventory"
	"github.com/fleetform/fleetform/pkg/telemetry"
)

// RunConfig carries the tunables shared by every host in a run.
type RunConfig struct {
	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration

	// CommandTimeout bounds a single dispatched command. Zero means no
	// bound beyond the caller's context.
	CommandTimeout time.Duration

	// Parallel is the number of hosts operated on concurrently.
	Parallel int
}

// DefaultRunConfig returns the config used when no option overrides it.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		ConnectTimeout: 30 * time.Second,
		CommandTimeout: 0,
		Parallel:       4,
	}
}

// RunState is the shared context of one execution run. Hosts must be
// bound to a run state before any remote operation; the state carries
// the inventory, the fact registry and cache, and the run's telemetry.
type RunState struct {
	// ID uniquely identifies this run.
	ID string

	// Inventory is the host catalog for this run.
	Inventory *inventory.Inventory

	// Registry resolves fact names to descriptors.
	Registry *facts.Registry

	// Cache holds resolved fact values for the run's lifetime.
	Cache *facts.Cache

	// Config carries run-wide tunables.
	Config RunConfig

	// Logger emits the run's structured output, including the per-host
	// connection status lines.
	Logger zerolog.Logger

	// Metrics collects run counters; always usable, no-op when disabled.
	Metrics *telemetry.Metrics

	// Events publishes run lifecycle events; nil-safe.
	Events *telemetry.EventPublisher

	// Tracer opens spans around connect attempts and fact resolutions;
	// nil-safe.
	Tracer *telemetry.Tracer
}

// RunStateOption customizes a RunState at construction.
type RunStateOption func(*RunState)

// WithConfig overrides the default run config.
func WithConfig(cfg RunConfig) RunStateOption {
	return func(s *RunState) { s.Config = cfg }
}

// WithLogger sets the run's logger.
func WithLogger(logger zerolog.Logger) RunStateOption {
	return func(s *RunState) { s.Logger = logger }
}

// WithRegistry overrides the default fact registry.
func WithRegistry(registry *facts.Registry) RunStateOption {
	return func(s *RunState) { s.Registry = registry }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(metrics *telemetry.Metrics) RunStateOption {
	return func(s *RunState) { s.Metrics = metrics }
}

// WithEvents attaches an event publisher.
func WithEvents(events *telemetry.EventPublisher) RunStateOption {
	return func(s *RunState) { s.Events = events }
}

// WithTracer attaches a tracer.
func WithTracer(tracer *telemetry.Tracer) RunStateOption {
	return func(s *RunState) { s.Tracer = tracer }
}

// NewRunState creates a run state over the given inventory. The fact
// cache starts empty; the registry defaults to the built-in facts.
func NewRunState(inv *inventory.Inventory, opts ...RunStateOption) *RunState {
	s := &RunState{
		ID:        uuid.New().String(),
		Inventory: inv,
		Registry:  facts.Default,
		Cache:     facts.NewCache(),
		Config:    DefaultRunConfig(),
		Logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
