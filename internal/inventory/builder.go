// Package inventory builds the grouped host inventory document from
// paginated NetBox listings.
package inventory

import (
	"context"
	"fmt"

	"github.com/mhagberg/towerbox/internal/entity"
	"github.com/mhagberg/towerbox/internal/log"
	"github.com/mhagberg/towerbox/internal/netbox"
)

// activeStatus is the only status included in the inventory
const activeStatus = "active"

// Fetcher fetches one page of a listing endpoint. *netbox.Client
// implements it; tests inject canned pages.
type Fetcher interface {
	GetPage(ctx context.Context, pathOrURL string, params map[string]string) (*netbox.Page, error)
}

// Options configures a Builder
type Options struct {
	Kinds     []entity.Kind // defaults to entity.Kinds
	Groupings []string      // grouping dimensions, e.g. site, platform
	Vars      entity.VarOptions
}

// Builder drives pagination across the entity kinds and accumulates the
// inventory document. A builder owns its document exclusively during a
// run; each Build is a fresh pagination pass.
type Builder struct {
	fetcher   Fetcher
	kinds     []entity.Kind
	groupings []string
	vars      entity.VarOptions
}

// NewBuilder creates a builder over the given fetcher
func NewBuilder(fetcher Fetcher, opts Options) *Builder {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = entity.Kinds
	}
	return &Builder{
		fetcher:   fetcher,
		kinds:     kinds,
		groupings: opts.Groupings,
		vars:      opts.Vars,
	}
}

// Build pages through every configured kind and returns the assembled
// document. Any transport or decoding failure aborts the whole run;
// there is no partial-result mode.
func (b *Builder) Build(ctx context.Context) (*Document, error) {
	doc := NewDocument()
	for _, kind := range b.kinds {
		if err := b.collectKind(ctx, doc, kind); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// collectKind follows the kind's pagination cursor until it is exhausted
func (b *Builder) collectKind(ctx context.Context, doc *Document, kind entity.Kind) error {
	next := kind.APIPath
	pages := 0
	for next != "" {
		page, err := b.fetcher.GetPage(ctx, next, nil)
		if err != nil {
			return fmt.Errorf("listing %s page %d: %w", kind.Name, pages+1, err)
		}
		pages++
		for _, raw := range page.Results {
			ent, err := entity.Decode(kind, raw)
			if err != nil {
				return fmt.Errorf("%w: %v", netbox.ErrMalformedPage, err)
			}
			b.add(doc, ent)
		}
		if page.Next == nil {
			next = ""
		} else {
			next = *page.Next
		}
	}
	log.Debug("kind collected", "kind", kind.Name, "pages", pages)
	return nil
}

// add filters one entity and folds it into the document
func (b *Builder) add(doc *Document, ent entity.Entity) {
	name := ent.Name()
	status := ent.Status()
	address := ent.Address()

	if status == entity.Undefined {
		log.Warn("record has no status", "kind", ent.Kind().Name, "name", name)
	}
	if status != activeStatus || address == entity.Undefined {
		log.Debug("skipping record", "kind", ent.Kind().Name, "name", name,
			"status", status, "address", address)
		return
	}

	// Hostvars are recorded for every filtered-in host, whether or not a
	// grouping dimension resolves for it.
	doc.SetHostVars(name, ent.HostVars(b.vars))

	for _, dimension := range b.groupings {
		group, ok := ent.GroupKey(dimension)
		if !ok {
			continue
		}
		doc.AddHost(group, name)
	}
}
