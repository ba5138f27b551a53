package inventory

import (
	"encoding/json"
	"fmt"
)

// metaKey is the reserved top-level key holding hostvars
const metaKey = "_meta"

// Group is one inventory group
type Group struct {
	Hosts []string `json:"hosts"`
}

// Document is the dynamic-inventory output: named groups plus the
// _meta.hostvars map. Hostvars are recorded once per host regardless of how
// many groups the host lands in.
type Document struct {
	groups   map[string]*Group
	hostvars map[string]map[string]any
}

// NewDocument returns an empty document
func NewDocument() *Document {
	return &Document{
		groups:   make(map[string]*Group),
		hostvars: make(map[string]map[string]any),
	}
}

// AddHost appends a host to a group, creating the group on first use.
// Hosts are kept in encounter order.
func (d *Document) AddHost(group, host string) {
	g, ok := d.groups[group]
	if !ok {
		g = &Group{Hosts: []string{}}
		d.groups[group] = g
	}
	g.Hosts = append(g.Hosts, host)
}

// SetHostVars records the variable map for a host. Setting the same host
// again replaces the previous entry, so re-encounters are idempotent.
func (d *Document) SetHostVars(host string, vars map[string]any) {
	d.hostvars[host] = vars
}

// HostVars returns the variable map for one host. Unknown hosts get an
// empty map, per the dynamic-inventory script contract for --host.
func (d *Document) HostVars(host string) map[string]any {
	if vars, ok := d.hostvars[host]; ok {
		return vars
	}
	return map[string]any{}
}

// HostCount returns the number of hosts with recorded hostvars
func (d *Document) HostCount() int {
	return len(d.hostvars)
}

// GroupSizes returns the number of hosts in each group
func (d *Document) GroupSizes() map[string]int {
	sizes := make(map[string]int, len(d.groups))
	for name, g := range d.groups {
		sizes[name] = len(g.Hosts)
	}
	return sizes
}

// MarshalJSON flattens groups and _meta into one object. Map marshaling
// sorts keys, so identical input always yields byte-identical output.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.groups)+1)
	for name, g := range d.groups {
		out[name] = g
	}
	out[metaKey] = map[string]any{"hostvars": d.hostvars}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds a document from its serialized form, used when
// loading cached snapshots.
func (d *Document) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	d.groups = make(map[string]*Group)
	d.hostvars = make(map[string]map[string]any)

	for name, raw := range fields {
		if name == metaKey {
			var meta struct {
				Hostvars map[string]map[string]any `json:"hostvars"`
			}
			if err := json.Unmarshal(raw, &meta); err != nil {
				return fmt.Errorf("decoding %s: %w", metaKey, err)
			}
			if meta.Hostvars != nil {
				d.hostvars = meta.Hostvars
			}
			continue
		}
		var g Group
		if err := json.Unmarshal(raw, &g); err != nil {
			return fmt.Errorf("decoding group %q: %w", name, err)
		}
		d.groups[name] = &g
	}
	return nil
}
