// Package inventory holds the target inventory: hosts, the groups they
// belong to, and the configuration data attached to each. The merged view
// of a host's data is recomputed on every access so that mutations made
// mid-run (for example by a reloaded inventory file) are observed
// immediately by later lookups.
package inventory

import (
	"sort"
	"sync"
)

// Data is a configuration record attached to a host or group.
type Data map[string]any

// String returns the value for key as a string, or "" when the key is
// absent or not a string.
func (d Data) String(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// Int returns the value for key as an int, or def when the key is absent
// or not numeric. YAML integers decode as int, but JSON round-trips
// produce float64, so both are accepted.
func (d Data) Int(key string, def int) int {
	switch v := d[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Bool returns the value for key as a bool, or false when absent.
func (d Data) Bool(key string) bool {
	v, _ := d[key].(bool)
	return v
}

// Merge returns a copy of d with overlay applied on top.
func (d Data) Merge(overlay Data) Data {
	merged := make(Data, len(d)+len(overlay))
	for k, v := range d {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// Entry is one host in the inventory.
type Entry struct {
	Name   string
	Groups []string
	Data   Data
}

// Group is a named collection of hosts with shared default data.
type Group struct {
	Name string
	Data Data
}

// Inventory is the live host/group catalog. It is safe for concurrent use;
// reads never cache derived data.
type Inventory struct {
	mu     sync.RWMutex
	hosts  map[string]*Entry
	groups map[string]*Group
}

// New returns an empty inventory.
func New() *Inventory {
	return &Inventory{
		hosts:  make(map[string]*Entry),
		groups: make(map[string]*Group),
	}
}

// AddHost adds or replaces a host entry.
func (inv *Inventory) AddHost(entry *Entry) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if entry.Data == nil {
		entry.Data = Data{}
	}
	inv.hosts[entry.Name] = entry
}

// AddGroup adds or replaces a group.
func (inv *Inventory) AddGroup(group *Group) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if group.Data == nil {
		group.Data = Data{}
	}
	inv.groups[group.Name] = group
}

// SetHostData sets one data key on a host, creating the entry if needed.
// Deploy logic uses this to feed discovered values back into configuration.
func (inv *Inventory) SetHostData(name, key string, value any) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	entry, ok := inv.hosts[name]
	if !ok {
		entry = &Entry{Name: name, Data: Data{}}
		inv.hosts[name] = entry
	}
	entry.Data[key] = value
}

// GetHostData returns a copy of the host-level data for name. Unknown
// hosts yield an empty record.
func (inv *Inventory) GetHostData(name string) Data {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	entry, ok := inv.hosts[name]
	if !ok {
		return Data{}
	}
	return Data{}.Merge(entry.Data)
}

// GetGroupsData returns the group-level defaults for an ordered group
// set. Later groups override earlier ones, matching the order hosts
// declare their membership in.
func (inv *Inventory) GetGroupsData(groups []string) Data {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	merged := Data{}
	for _, name := range groups {
		if group, ok := inv.groups[name]; ok {
			merged = merged.Merge(group.Data)
		}
	}
	return merged
}

// Host returns the entry for name, or nil when unknown.
func (inv *Inventory) Host(name string) *Entry {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.hosts[name]
}

// Hosts returns all entries sorted by name.
func (inv *Inventory) Hosts() []*Entry {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	entries := make([]*Entry, 0, len(inv.hosts))
	for _, entry := range inv.hosts {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// GroupNames returns all group names sorted.
func (inv *Inventory) GroupNames() []string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	names := make([]string, 0, len(inv.groups))
	for name := range inv.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// replace swaps the full host/group catalog, used by the file watcher on
// reload.
func (inv *Inventory) replace(hosts map[string]*Entry, groups map[string]*Group) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.hosts = hosts
	inv.groups = groups
}
