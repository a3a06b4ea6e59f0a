// Package connectors defines the transport contract between a host and
// the machine it represents, plus the built-in transport variants: ssh
// (the default), local, and docker. A connector is shared by every host
// configured for the same backend; all per-host bookkeeping lives in the
// host's scratch map and the connection handle the host owns.
package connectors

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fleetform/fleetform/pkg/inventory"
)

// Target is the view of a host a connector operates on. Connectors must
// not mutate anything behind it except the scratch map.
type Target interface {
	// Name is the inventory name of the host.
	Name() string

	// Data is the host's merged configuration record, recomputed by the
	// host on every call.
	Data() inventory.Data

	// Scratch is a free-form map for connector-private bookkeeping, for
	// example multiplexed session handles. It is exclusively owned by one
	// host and never shared.
	Scratch() map[string]any

	// Connection is the handle from the last successful Connect, or nil.
	Connection() Connection
}

// Connection is an opaque handle to an established transport session.
// The host stores it; only the connector that produced it interprets it.
type Connection interface {
	String() string
}

// Result holds the outcome of a remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports whether the command exited zero.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Connector is the capability set every transport backend implements.
// Connect failures are reported as *ConnectError so callers can separate
// "host unreachable" from programming errors. RunShellCommand, PutFile
// and GetFile may self-establish a session on demand; the deadline and
// cancellation signal of the surrounding run arrive through ctx.
type Connector interface {
	// Name is the registry name of this transport ("ssh", "local", ...).
	Name() string

	// Connect establishes a session and returns its handle. Failure to
	// reach or authenticate against the target is a *ConnectError.
	Connect(ctx context.Context, target Target) (Connection, error)

	// Disconnect tears the session down. Transports without teardown
	// semantics embed NopDisconnect.
	Disconnect(ctx context.Context, target Target) error

	// RunShellCommand executes command under the target's shell and
	// returns its captured output and exit status.
	RunShellCommand(ctx context.Context, target Target, command string, opts ...CommandOption) (*Result, error)

	// PutFile uploads localPath to remotePath on the target.
	PutFile(ctx context.Context, target Target, localPath, remotePath string, opts ...FileOption) error

	// GetFile downloads remotePath from the target to localPath.
	GetFile(ctx context.Context, target Target, remotePath, localPath string, opts ...FileOption) error
}

// NopDisconnect is the contract's default teardown for transports that
// hold no persistent session.
type NopDisconnect struct{}

// Disconnect implements the optional teardown as a no-op.
func (NopDisconnect) Disconnect(ctx context.Context, target Target) error {
	return nil
}

// ConnectError reports a failed connection attempt. Reason is the short,
// user-facing explanation surfaced in host-prefixed log lines.
type ConnectError struct {
	Target string
	Reason string
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// CommandOption adjusts a single RunShellCommand call.
type CommandOption func(*commandOptions)

type commandOptions struct {
	sudo     bool
	sudoUser string
	env      map[string]string
}

// WithSudo wraps the command with sudo, optionally as a specific user.
func WithSudo(user string) CommandOption {
	return func(o *commandOptions) {
		o.sudo = true
		o.sudoUser = user
	}
}

// WithEnv sets an environment variable for the command.
func WithEnv(key, value string) CommandOption {
	return func(o *commandOptions) {
		if o.env == nil {
			o.env = make(map[string]string)
		}
		o.env[key] = value
	}
}

func buildCommandOptions(opts []CommandOption) commandOptions {
	var o commandOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// wrapCommand applies the sudo and env options to a shell command string.
func (o commandOptions) wrapCommand(command string) string {
	for key, value := range o.env {
		command = fmt.Sprintf("%s=%s %s", key, value, command)
	}
	if o.sudo {
		if o.sudoUser != "" {
			return fmt.Sprintf("sudo -H -n -u %s sh -c '%s'", o.sudoUser, command)
		}
		return fmt.Sprintf("sudo -H -n sh -c '%s'", command)
	}
	return command
}

// FileOption adjusts a single PutFile or GetFile call.
type FileOption func(*fileOptions)

type fileOptions struct {
	mode uint32
}

// WithMode sets the permission bits applied to an uploaded file.
func WithMode(mode uint32) FileOption {
	return func(o *fileOptions) {
		o.mode = mode
	}
}

func buildFileOptions(opts []FileOption) fileOptions {
	o := fileOptions{mode: 0o644}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Transport registry. Inventory data selects a transport by name via the
// "connector" key; hosts without one use the default.

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func() Connector)
)

// DefaultName is the transport used when a host does not pick one.
const DefaultName = "ssh"

// Register makes a transport constructor available under name. Built-in
// transports self-register; additional backends may be added at startup.
func Register(name string, factory func() Connector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get constructs the transport registered under name.
func Get(name string) (Connector, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown connector %q (available: %v)", name, Names())
	}
	return factory(), nil
}

// Default constructs the default transport.
func Default() Connector {
	connector, err := Get(DefaultName)
	if err != nil {
		// The ssh transport registers itself in this package; a missing
		// default is unreachable short of build breakage.
		panic(err)
	}
	return connector
}

// Names returns the registered transport names sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
