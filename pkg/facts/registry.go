// Package facts catalogs the pieces of discoverable machine state a run
// can ask a host for. Facts are resolved dynamically by name through a
// registry, so new kinds can be added without touching the host type;
// query results are cached per run keyed by (host, fact, arguments).
package facts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fleetform/fleetform/pkg/connectors"
)

// Args parameterize a fact lookup, for example the path of a file fact.
// Two lookups with equal Args share one cache slot.
type Args map[string]string

// Canonical renders args as a stable string usable in cache keys.
func (a Args) Canonical() string {
	if len(a) == 0 {
		return ""
	}
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+a[k])
	}
	return strings.Join(parts, ",")
}

// Key builds the cache key for one (host, fact, args) combination.
func Key(host, fact string, args Args) string {
	return host + "\x00" + fact + "\x00" + args.Canonical()
}

// Runner is the slice of a host a fact needs to query it: built-in facts
// shell out through the host's connector dispatch.
type Runner interface {
	Name() string
	RunShellCommand(ctx context.Context, command string, opts ...connectors.CommandOption) (*connectors.Result, error)
}

// Fact describes one queryable piece of machine state.
type Fact interface {
	// Name is the registry identifier.
	Name() string

	// Fetch queries the live value from the host.
	Fetch(ctx context.Context, host Runner, args Args) (any, error)
}

// MutableFact additionally supports asserting and removing the state it
// describes, for facts representing files, directories or packages whose
// presence can be created and deleted.
type MutableFact interface {
	Fact

	Create(ctx context.Context, host Runner, data any, args Args) error
	Delete(ctx context.Context, host Runner, args Args) error
}

// Registry is a catalog of fact descriptors. It is read-mostly after
// startup and safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	facts map[string]Fact
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{facts: make(map[string]Fact)}
}

// Register adds a fact descriptor. Re-registering a name is a
// programming error and rejected.
func (r *Registry) Register(fact Fact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.facts[fact.Name()]; exists {
		return fmt.Errorf("fact %q is already registered", fact.Name())
	}
	r.facts[fact.Name()] = fact
	return nil
}

// MustRegister is Register for static initialization.
func (r *Registry) MustRegister(fact Fact) {
	if err := r.Register(fact); err != nil {
		panic(err)
	}
}

// IsRegistered reports whether name is a known fact identifier.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.facts[name]
	return ok
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (Fact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fact, ok := r.facts[name]
	return fact, ok
}

// Names returns all registered identifiers sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.facts))
	for name := range r.facts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default is the process-wide registry carrying the built-in facts.
var Default = NewRegistry()

// IsRegistered reports whether name is known to the default registry.
func IsRegistered(name string) bool { return Default.IsRegistered(name) }

// Names lists the default registry's identifiers; callable without any
// host, for introspection and completion tooling.
func Names() []string { return Default.Names() }

// Register adds a fact to the default registry.
func Register(fact Fact) error { return Default.Register(fact) }
