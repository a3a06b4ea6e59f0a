package engine

import (
	"context"

	"github.com/fleetform/fleetform/pkg/facts"
	"github.com/fleetform/fleetform/pkg/telemetry"
)

// FactFacade is a host's window onto the fact system. Fact names are
// resolved against the run's registry at call time, so facts registered
// after the host was built are still reachable by name.
type FactFacade struct {
	host *Host
}

func newFactFacade(h *Host) *FactFacade {
	return &FactFacade{host: h}
}

// Read resolves the named fact for the facade's host.
//
// The host must have a run state bound and the name must be registered;
// an unknown name fails before any connection attempt. The host is then
// connected on demand (errors reported on the run log); a failed
// connection is fatal to the read since there is no fallback value.
// Values are cached per (host, fact, args) for the run, so a second Read
// with the same arguments performs no remote I/O.
func (f *FactFacade) Read(ctx context.Context, name string, args facts.Args) (any, error) {
	h := f.host

	state := h.runState()
	if state == nil {
		return nil, NewPreconditionError(h.name, "cannot read facts from a host with no run state bound")
	}

	fact, ok := state.Registry.Get(name)
	if !ok {
		return nil, NewUnknownFactError(h.name, name)
	}

	// The connect span nests under the fact span when a connection has
	// to be established for this read.
	ctx, span := state.Tracer.StartFactSpan(ctx, h.name, name)
	defer span.End()

	conn, err := h.Connect(ctx, ForFact(name))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if conn == nil {
		err := NewFactUnavailableError(h.name, name)
		telemetry.RecordError(span, err)
		return nil, err
	}

	key := facts.Key(h.name, name, args)
	value, cached, err := state.Cache.Resolve(key, func() (any, error) {
		timer := telemetry.NewTimer()
		value, err := fact.Fetch(ctx, h, args)
		status := "success"
		if err != nil {
			status = "error"
		}
		state.Metrics.RecordFactResolution(name, status, timer.Duration())
		return value, err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.RecordSuccess(span)
	if cached {
		state.Metrics.RecordFactCacheHit()
	} else {
		state.Metrics.RecordFactCacheMiss()
	}
	state.Events.PublishFactResolved(state.ID, h.name, name, cached)

	return value, nil
}

// Create asserts the state the named fact describes, for facts with the
// mutable capability. The cached Read value for the same (fact, args) is
// invalidated so subsequent reads observe the mutation. Connection
// handling is left to the fact's own dispatch.
func (f *FactFacade) Create(ctx context.Context, name string, data any, args facts.Args) error {
	fact, err := f.mutable(name, "create")
	if err != nil {
		return err
	}

	if err := fact.Create(ctx, f.host, data, args); err != nil {
		return err
	}

	f.invalidate(name, args)
	return nil
}

// Delete removes the state the named fact describes, for facts with the
// mutable capability. The cached Read value for the same (fact, args) is
// invalidated.
func (f *FactFacade) Delete(ctx context.Context, name string, args facts.Args) error {
	fact, err := f.mutable(name, "delete")
	if err != nil {
		return err
	}

	if err := fact.Delete(ctx, f.host, args); err != nil {
		return err
	}

	f.invalidate(name, args)
	return nil
}

// mutable runs the shared precondition and capability checks for
// Create/Delete.
func (f *FactFacade) mutable(name, operation string) (facts.MutableFact, error) {
	h := f.host

	state := h.runState()
	if state == nil {
		return nil, NewPreconditionError(h.name, "cannot mutate facts on a host with no run state bound")
	}

	fact, ok := state.Registry.Get(name)
	if !ok {
		return nil, NewUnknownFactError(h.name, name)
	}

	mutable, ok := fact.(facts.MutableFact)
	if !ok {
		return nil, NewUnsupportedError(h.name, name, operation)
	}

	return mutable, nil
}

func (f *FactFacade) invalidate(name string, args facts.Args) {
	h := f.host
	state := h.runState()
	state.Cache.Invalidate(facts.Key(h.name, name, args))
	state.Events.Publish(telemetry.Event{
		Type:    telemetry.EventTypeFactInvalidated,
		Source:  "facts",
		RunID:   state.ID,
		Host:    h.name,
		Message: "Cached fact " + name + " invalidated after mutation",
		Level:   telemetry.EventLevelInfo,
		Data:    map[string]interface{}{"fact": name},
	})
}

// Names returns the identifiers of every fact in the host's registry, or
// the built-in set when the host has no run state bound yet. Pure
// introspection, no I/O.
func (f *FactFacade) Names() []string {
	state := f.host.runState()
	if state == nil {
		return facts.Names()
	}
	return state.Registry.Names()
}
