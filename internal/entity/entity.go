// Package entity provides a read-only view over raw NetBox records.
//
// Devices and virtual machines share almost all of their shape; the
// differences (role field name, role hostvar key, listing endpoint) live in
// a per-kind descriptor so one adapter serves both.
package entity

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Undefined is the value attributes fall back to when the source field is
// null or missing. Grouping keys never use it; see GroupKey.
const Undefined = "undefined"

// Record is the raw payload of one NetBox object, as decoded from the API.
// It is never mutated.
type Record map[string]any

// Kind describes one NetBox entity kind
type Kind struct {
	Name       string // human-readable kind name, used in logs
	APIPath    string // listing endpoint for pagination
	roleField  string // source field holding the role object
	roleVarKey string // hostvar key the role is emitted under
}

var (
	// Device is a NetBox DCIM device
	Device = Kind{
		Name:       "device",
		APIPath:    "/api/dcim/devices/",
		roleField:  "device_role",
		roleVarKey: "netbox_device_role",
	}

	// VirtualMachine is a NetBox virtualization VM
	VirtualMachine = Kind{
		Name:       "virtual-machine",
		APIPath:    "/api/virtualization/virtual-machines/",
		roleField:  "role",
		roleVarKey: "netbox_role",
	}
)

// Kinds lists all entity kinds in pagination order. Devices come first;
// the order only affects host ordering within groups.
var Kinds = []Kind{Device, VirtualMachine}

// VarOptions controls hostvar emission
type VarOptions struct {
	LegacyVars bool // emit ansible_port/ansible_user
	SSHPort    int
	SSHUser    string
}

// Entity is a read-only view over one raw record
type Entity struct {
	kind   Kind
	record Record
}

// New wraps a decoded record
func New(kind Kind, record Record) Entity {
	return Entity{kind: kind, record: record}
}

// Decode unmarshals a raw API result into an Entity. A result that is not
// a JSON object is a malformed response.
func Decode(kind Kind, raw json.RawMessage) (Entity, error) {
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Entity{}, fmt.Errorf("decoding %s record: %w", kind.Name, err)
	}
	return Entity{kind: kind, record: record}, nil
}

// Kind returns the entity's kind descriptor
func (e Entity) Kind() Kind { return e.kind }

// Name returns the record's name, used as the host's FQDN in the inventory
func (e Entity) Name() string {
	name, _ := e.record["name"].(string)
	return name
}

// Address returns the bare IP of the primary address, without the prefix
// length, or Undefined when the record has no primary IP.
func (e Entity) Address() string {
	ip, ok := e.object("primary_ip")
	if !ok {
		return Undefined
	}
	addr, ok := ip["address"].(string)
	if !ok {
		return Undefined
	}
	return strings.SplitN(addr, "/", 2)[0]
}

// Platform returns the platform slug, or Undefined when absent
func (e Entity) Platform() string {
	if slug, ok := e.slug("platform"); ok {
		return slug
	}
	return Undefined
}

// Role returns the role slug, or Undefined when absent. The source field
// differs per kind (device_role for devices, role for VMs).
func (e Entity) Role() string {
	if slug, ok := e.slug(e.kind.roleField); ok {
		return slug
	}
	return Undefined
}

// Status returns the status value, or Undefined when absent. A missing
// status should not occur in well-formed NetBox data.
func (e Entity) Status() string {
	obj, ok := e.object("status")
	if !ok {
		return Undefined
	}
	value, ok := obj["value"].(string)
	if !ok {
		return Undefined
	}
	return value
}

// Tags returns the slugs of all tags on the record, in source order.
// Older NetBox versions return tags as plain strings; both forms are
// accepted.
func (e Entity) Tags() []string {
	tags := []string{}
	list, ok := e.record["tags"].([]any)
	if !ok {
		return tags
	}
	for _, item := range list {
		switch t := item.(type) {
		case string:
			tags = append(tags, t)
		case map[string]any:
			if slug, ok := t["slug"].(string); ok {
				tags = append(tags, slug)
			}
		}
	}
	return tags
}

// GroupKey resolves a grouping dimension (e.g. "site", "platform") to its
// slug. The second return is false when the record has no such attribute,
// so callers can tell "no group" from "empty group". Unlike the attribute
// accessors, grouping keys never fall back to Undefined.
func (e Entity) GroupKey(dimension string) (string, bool) {
	return e.slug(dimension)
}

// HostVars returns the flat variable map for this host, keyed the way
// Ansible Tower expects.
func (e Entity) HostVars(opts VarOptions) map[string]any {
	vars := map[string]any{
		"ansible_host":    e.Address(),
		e.kind.roleVarKey: e.Role(),
		"netbox_platform": e.Platform(),
		"netbox_tags":     e.Tags(),
		"netbox_status":   e.Status(),
	}
	if opts.LegacyVars {
		vars["ansible_port"] = opts.SSHPort
		vars["ansible_user"] = opts.SSHUser
	}
	return vars
}

// Field returns the raw value of an arbitrary record field
func (e Entity) Field(name string) (any, bool) {
	v, ok := e.record[name]
	return v, ok
}

// object fetches a field as a nested JSON object. Null and missing fields
// both come back as absent.
func (e Entity) object(field string) (map[string]any, bool) {
	v, ok := e.record[field]
	if !ok || v == nil {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

// slug fetches the "slug" value of a nested object field
func (e Entity) slug(field string) (string, bool) {
	obj, ok := e.object(field)
	if !ok {
		return "", false
	}
	s, ok := obj["slug"].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
