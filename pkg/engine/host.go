package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fleetform/fleetform/pkg/connectors"
	"github.com/fleetform/fleetform/pkg/inventory"
	"github.com/fleetform/fleetform/pkg/telemetry"
)

// DataConnector is the inventory data key naming the connector a host
// uses. Hosts without it use the default connector.
const DataConnector = "connector"

// Host is the engine's view of one inventory target. It owns the
// connection lifecycle for that target and dispatches every remote
// operation through its connector. All methods are safe for concurrent
// use; concurrent Connect calls collapse into a single attempt.
type Host struct {
	name      string
	inv       *inventory.Inventory
	connector connectors.Connector

	// state is set by BindState before the host takes part in a run.
	// Atomic so binding may race with in-flight dispatch checks.
	state atomic.Pointer[RunState]

	// connectMu serializes connect and disconnect attempts. connMu
	// guards the connection handle separately so connectors reading
	// Connection() during dispatch never contend with an in-flight
	// connect's bookkeeping.
	connectMu  sync.Mutex
	connMu     sync.RWMutex
	connection connectors.Connection

	// scratch is connector-private storage, written only during Connect
	// and Disconnect which connectMu serializes.
	scratch map[string]any

	// Facts resolves named facts against this host through the run's
	// registry and cache.
	Facts *FactFacade
}

var _ connectors.Target = (*Host)(nil)

// NewHost creates a host for the named inventory entry. A nil connector
// selects by the host's "connector" data key, falling back to the
// default transport; an unknown connector name is an error.
func NewHost(name string, inv *inventory.Inventory, connector connectors.Connector) (*Host, error) {
	h := &Host{
		name:      name,
		inv:       inv,
		connector: connector,
		scratch:   make(map[string]any),
	}
	if h.connector == nil {
		if connectorName := h.Data().String(DataConnector); connectorName != "" {
			c, err := connectors.Get(connectorName)
			if err != nil {
				return nil, fmt.Errorf("host %s: %w", name, err)
			}
			h.connector = c
		} else {
			h.connector = connectors.Default()
		}
	}
	h.Facts = newFactFacade(h)
	return h, nil
}

// HostsFromInventory creates a host for every inventory entry, sorted by
// name.
func HostsFromInventory(inv *inventory.Inventory) ([]*Host, error) {
	entries := inv.Hosts()
	hosts := make([]*Host, 0, len(entries))
	for _, entry := range entries {
		h, err := NewHost(entry.Name, inv, nil)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// BindState attaches the host to a run. Remote operations fail with a
// precondition error until a state is bound.
func (h *Host) BindState(state *RunState) {
	h.state.Store(state)
}

// runState returns the bound run state, or nil before BindState.
func (h *Host) runState() *RunState {
	return h.state.Load()
}

// Name returns the inventory name of the host.
func (h *Host) Name() string { return h.name }

// Connector returns the transport this host dispatches through.
func (h *Host) Connector() connectors.Connector { return h.connector }

// Groups returns the groups the host belongs to, in inventory order.
func (h *Host) Groups() []string {
	entry := h.inv.Host(h.name)
	if entry == nil {
		return nil
	}
	return entry.Groups
}

// Data returns the host's effective data: group data in declaration
// order overlaid by host-specific data. It reads the live inventory, so
// inventory updates are visible to subsequent calls.
func (h *Host) Data() inventory.Data {
	return h.GroupData().Merge(h.HostData())
}

// GroupData returns only the merged group-level data for the host.
func (h *Host) GroupData() inventory.Data {
	return h.inv.GetGroupsData(h.Groups())
}

// HostData returns only the host-specific data, without group overlay.
func (h *Host) HostData() inventory.Data {
	return h.inv.GetHostData(h.name)
}

// Scratch returns the connector-private storage for this host.
func (h *Host) Scratch() map[string]any { return h.scratch }

// Connection returns the current connection handle, or nil when the
// host is not connected.
func (h *Host) Connection() connectors.Connection {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	return h.connection
}

// Connected reports whether the host currently holds a connection.
func (h *Host) Connected() bool { return h.Connection() != nil }

// PrintPrefix is the per-host prefix on status output lines.
func (h *Host) PrintPrefix() string {
	return h.name + "[ ] "
}

// ConnectOption customizes a Connect call.
type ConnectOption func(*connectOptions)

type connectOptions struct {
	forFact string
	quiet   bool
}

// ForFact annotates the connection attempt with the fact that required
// it, so status lines say what triggered the connect.
func ForFact(name string) ConnectOption {
	return func(o *connectOptions) { o.forFact = name }
}

// QuietErrors demotes connection failures from error lines to debug
// output. The attempt still returns no connection.
func QuietErrors() ConnectOption {
	return func(o *connectOptions) { o.quiet = true }
}

// Connect establishes the host's connection if not already connected.
// It is idempotent: an existing connection is returned as-is with no
// further logging, and concurrent callers share one attempt.
//
// A connection failure is not an error to the caller: it is reported on
// the run's log (one line, "<name>[ ] <reason>") and Connect returns a
// nil connection with a nil error. Errors are returned only for misuse,
// such as connecting a host with no run state bound.
func (h *Host) Connect(ctx context.Context, opts ...ConnectOption) (connectors.Connection, error) {
	var options connectOptions
	for _, opt := range opts {
		opt(&options)
	}

	h.connectMu.Lock()
	defer h.connectMu.Unlock()

	state := h.runState()
	if state == nil {
		return nil, NewPreconditionError(h.name, "cannot connect a host with no run state bound")
	}

	if conn := h.Connection(); conn != nil {
		return conn, nil
	}

	return h.connect(ctx, state, options.forFact, !options.quiet)
}

// connect runs a single connection attempt. Caller holds connectMu.
func (h *Host) connect(ctx context.Context, state *RunState, forFact string, showErrors bool) (connectors.Connection, error) {
	suffix := ""
	if forFact != "" {
		suffix = fmt.Sprintf(" (for %s fact)", forFact)
	}

	ctx, span := state.Tracer.StartConnectSpan(ctx, h.name, h.connector.Name())
	defer span.End()

	connectCtx := ctx
	if timeout := state.Config.ConnectTimeout; timeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	timer := telemetry.NewTimer()
	conn, err := h.connector.Connect(connectCtx, h)
	duration := timer.Duration()

	if err != nil {
		telemetry.RecordError(span, err)
		var connectErr *connectors.ConnectError
		if errors.As(err, &connectErr) {
			state.Metrics.RecordConnectAttempt(h.connector.Name(), "failure", duration)
			state.Events.PublishHostConnectError(state.ID, h.name, connectErr.Reason)
			event := state.Logger.Error()
			if !showErrors {
				event = state.Logger.Debug()
			}
			event.Msg(h.PrintPrefix() + connectErr.Reason + suffix)
			return nil, nil
		}
		state.Metrics.RecordConnectAttempt(h.connector.Name(), "error", duration)
		return nil, err
	}

	h.connMu.Lock()
	h.connection = conn
	h.connMu.Unlock()

	telemetry.RecordSuccess(span)
	state.Metrics.RecordConnectAttempt(h.connector.Name(), "success", duration)
	state.Events.PublishHostConnected(state.ID, h.name, h.connector.Name())
	state.Logger.Info().Msg(h.PrintPrefix() + "Connected" + suffix)

	return conn, nil
}

// Disconnect closes the host's connection if one is open. Connectors
// without teardown make this a no-op beyond clearing the handle.
func (h *Host) Disconnect(ctx context.Context) error {
	h.connectMu.Lock()
	defer h.connectMu.Unlock()

	if h.Connection() == nil {
		return nil
	}

	err := h.connector.Disconnect(ctx, h)

	h.connMu.Lock()
	h.connection = nil
	h.connMu.Unlock()

	if state := h.runState(); state != nil {
		state.Metrics.RecordDisconnect()
		state.Events.PublishHostDisconnected(state.ID, h.name)
	}

	return err
}

// dispatchCheck validates the host is ready for a remote operation and
// returns the bound run state. Connection presence is not checked here:
// connectors may self-establish from the host scratch.
func (h *Host) dispatchCheck() (*RunState, error) {
	state := h.runState()
	if state == nil {
		return nil, NewPreconditionError(h.name, "cannot operate on a host with no run state bound")
	}
	return state, nil
}

// commandContext applies the run's command timeout to ctx.
func commandContext(ctx context.Context, state *RunState) (context.Context, context.CancelFunc) {
	if timeout := state.Config.CommandTimeout; timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}

// RunShellCommand executes a shell command on the host through its
// connector. A non-zero exit is carried in the result, not in err.
func (h *Host) RunShellCommand(ctx context.Context, command string, opts ...connectors.CommandOption) (*connectors.Result, error) {
	state, err := h.dispatchCheck()
	if err != nil {
		return nil, err
	}
	ctx, cancel := commandContext(ctx, state)
	defer cancel()

	timer := telemetry.NewTimer()
	result, err := h.connector.RunShellCommand(ctx, h, command, opts...)
	h.recordCommand(state, result, err, timer.Duration())
	return result, err
}

func (h *Host) recordCommand(state *RunState, result *connectors.Result, err error, duration time.Duration) {
	status := "success"
	switch {
	case err != nil:
		status = "error"
	case result != nil && !result.Success():
		status = "nonzero_exit"
	}
	state.Metrics.RecordCommand(h.connector.Name(), status, duration)
}

// PutFile uploads a local file to the host.
func (h *Host) PutFile(ctx context.Context, localPath, remotePath string, opts ...connectors.FileOption) error {
	state, err := h.dispatchCheck()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(ctx, state)
	defer cancel()

	err = h.connector.PutFile(ctx, h, localPath, remotePath, opts...)
	state.Metrics.RecordFileTransfer("upload", transferStatus(err))
	return err
}

// GetFile downloads a remote file from the host.
func (h *Host) GetFile(ctx context.Context, remotePath, localPath string, opts ...connectors.FileOption) error {
	state, err := h.dispatchCheck()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(ctx, state)
	defer cancel()

	err = h.connector.GetFile(ctx, h, remotePath, localPath, opts...)
	state.Metrics.RecordFileTransfer("download", transferStatus(err))
	return err
}

func transferStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ForEachHost runs fn against every host with the run's configured
// parallelism. The first error cancels the remaining hosts.
func ForEachHost(ctx context.Context, state *RunState, hosts []*Host, fn func(ctx context.Context, h *Host) error) error {
	g, ctx := errgroup.WithContext(ctx)
	limit := state.Config.Parallel
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, h := range hosts {
		g.Go(func() error {
			return fn(ctx, h)
		})
	}

	return g.Wait()
}
