package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/mhagberg/towerbox/internal/entity"
	"github.com/mhagberg/towerbox/internal/netbox"
)

// genRecord draws one device record with a unique name. Status, address,
// site and platform are independently present, absent or off-filter so
// every combination of the filter and grouping rules gets exercised.
func genRecord(t *rapid.T, index int) (json.RawMessage, bool) {
	record := map[string]any{"name": fmt.Sprintf("host%03d", index)}

	status := rapid.SampledFrom([]string{"active", "planned", "offline", "none"}).Draw(t, "status")
	if status != "none" {
		record["status"] = map[string]any{"value": status}
	}

	hasAddress := rapid.Bool().Draw(t, "hasAddress")
	if hasAddress {
		record["primary_ip"] = map[string]any{
			"address": fmt.Sprintf("10.0.%d.%d/24", index/250, index%250+1),
		}
	} else {
		record["primary_ip"] = nil
	}

	if site := rapid.SampledFrom([]string{"", "nyc1", "ams1", "fra2"}).Draw(t, "site"); site != "" {
		record["site"] = map[string]any{"slug": site}
	}
	if platform := rapid.SampledFrom([]string{"", "linux", "ios"}).Draw(t, "platform"); platform != "" {
		record["platform"] = map[string]any{"slug": platform}
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshaling generated record: %v", err)
	}
	passesFilter := status == "active" && hasAddress
	return data, passesFilter
}

func TestBuilder_GroupingProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(0, 30).Draw(t, "count")

		results := []json.RawMessage{}
		wantHosts := map[string]bool{}
		for i := 0; i < count; i++ {
			record, passes := genRecord(t, i)
			results = append(results, record)
			if passes {
				wantHosts[fmt.Sprintf("host%03d", i)] = true
			}
		}

		pages := emptyKinds()
		pages[entity.Device.APIPath] = &netbox.Page{Count: count, Results: results}

		builder := newTestBuilder(&fakeFetcher{pages: pages})
		doc, err := builder.Build(context.Background())
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}

		// Hostvars exist exactly for the filter-passing hosts
		if doc.HostCount() != len(wantHosts) {
			t.Fatalf("HostCount() = %d, want %d", doc.HostCount(), len(wantHosts))
		}
		for name := range wantHosts {
			if vars := doc.HostVars(name); len(vars) == 0 {
				t.Fatalf("host %s passed the filter but has no hostvars", name)
			}
		}

		// Every group member has a hostvars entry and passed the filter
		data, err := json.Marshal(doc)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		var decoded map[string]json.RawMessage
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		for name, raw := range decoded {
			if name == "_meta" {
				continue
			}
			var group Group
			if err := json.Unmarshal(raw, &group); err != nil {
				t.Fatalf("decoding group %q: %v", name, err)
			}
			if len(group.Hosts) == 0 {
				t.Fatalf("group %q exists with zero hosts", name)
			}
			seen := map[string]bool{}
			for _, host := range group.Hosts {
				if !wantHosts[host] {
					t.Fatalf("group %q contains filtered-out host %q", name, host)
				}
				if seen[host] {
					t.Fatalf("group %q lists host %q twice", name, host)
				}
				seen[host] = true
			}
		}

		// Rebuilding over identical input is byte-identical
		again, err := builder.Build(context.Background())
		if err != nil {
			t.Fatalf("second Build() error = %v", err)
		}
		data2, _ := json.Marshal(again)
		if !bytes.Equal(data, data2) {
			t.Fatalf("rebuild differs:\n%s\n%s", data, data2)
		}
	})
}
