package serve

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/mhagberg/towerbox/internal/cache"
	"github.com/mhagberg/towerbox/internal/inventory"
	"github.com/mhagberg/towerbox/internal/log"
	"github.com/mhagberg/towerbox/internal/metrics"
)

// snapshotsKept bounds the cache in serve mode; each refresh prunes down
// to this many snapshots.
const snapshotsKept = 10

// refresher rebuilds the inventory and hands out the latest document.
// It implements mcp.Source.
type refresher struct {
	builder *inventory.Builder
	store   cache.Store // nil when the cache is disabled

	mu  sync.RWMutex
	doc *inventory.Document
}

func newRefresher(builder *inventory.Builder) *refresher {
	return &refresher{builder: builder}
}

// refresh runs one full pagination pass and swaps in the new document
func (r *refresher) refresh(ctx context.Context) error {
	start := time.Now()
	doc, err := r.builder.Build(ctx)
	if err != nil {
		metrics.RecordRefreshError()
		return err
	}
	elapsed := time.Since(start)
	metrics.ObserveRefresh(elapsed)
	metrics.SetInventory(doc)

	r.mu.Lock()
	r.doc = doc
	r.mu.Unlock()

	log.Info("Inventory refreshed", "hosts", doc.HostCount(),
		"groups", len(doc.GroupSizes()), "duration", elapsed)

	if r.store != nil {
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if _, err := r.store.Save(data); err != nil {
			log.Warn("Saving snapshot failed", "error", err)
		} else if err := r.store.Prune(snapshotsKept); err != nil {
			log.Warn("Pruning snapshots failed", "error", err)
		}
	}
	return nil
}

// Current returns the latest built document, or nil before the first
// successful refresh.
func (r *refresher) Current() *inventory.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc
}

// handleInventory serves the latest document as JSON
func (r *refresher) handleInventory(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	doc := r.Current()
	if doc == nil {
		http.Error(w, "inventory not built yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		log.Error("Writing inventory response failed", "error", err)
	}
}

// handleHealthz reports readiness: healthy once a document exists
func (r *refresher) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if r.Current() == nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
