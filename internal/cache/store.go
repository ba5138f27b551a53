// Package cache persists built inventory documents as snapshots so a
// --list within the TTL can skip the network entirely. The cache is
// opt-in; with it disabled every run fetches fresh data.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoSnapshot is returned when the store holds no snapshots
var ErrNoSnapshot = errors.New("no snapshot available")

// Snapshot is one stored inventory document
type Snapshot struct {
	ID       string          `json:"id"`
	TakenAt  time.Time       `json:"taken_at"`
	Document json.RawMessage `json:"document"`
}

// Age returns how old the snapshot is
func (s *Snapshot) Age() time.Duration {
	return time.Since(s.TakenAt)
}

// Store persists inventory snapshots
type Store interface {
	Save(document json.RawMessage) (*Snapshot, error)
	Latest() (*Snapshot, error)
	Prune(keep int) error
	Close() error
}

// NewStore creates a snapshot store with the given backend ("file" or
// "sqlite", default sqlite) under dir.
func NewStore(backend, dir string) (Store, error) {
	switch backend {
	case "file":
		return NewFileStore(dir)
	default:
		return NewSQLiteStore(dir)
	}
}

// FileStore keeps one JSON file per snapshot in a directory
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates a file-backed store, creating dir if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Save writes a new snapshot file
func (fs *FileStore) Save(document json.RawMessage) (*Snapshot, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	snap := &Snapshot{
		ID:       uuid.New().String(),
		TakenAt:  time.Now().UTC(),
		Document: document,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	// Filename sorts by time so Latest and Prune can work lexically
	name := fmt.Sprintf("%020d-%s.json", snap.TakenAt.UnixNano(), snap.ID)
	if err := os.WriteFile(filepath.Join(fs.dir, name), data, 0644); err != nil {
		return nil, err
	}
	return snap, nil
}

// Latest returns the most recent snapshot
func (fs *FileStore) Latest() (*Snapshot, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	names, err := fs.snapshotFiles()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrNoSnapshot
	}

	data, err := os.ReadFile(filepath.Join(fs.dir, names[len(names)-1]))
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", names[len(names)-1], err)
	}
	return &snap, nil
}

// Prune removes all but the newest keep snapshots
func (fs *FileStore) Prune(keep int) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	names, err := fs.snapshotFiles()
	if err != nil {
		return err
	}
	if keep < 0 {
		keep = 0
	}
	if len(names) <= keep {
		return nil
	}
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(fs.dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op for the file backend
func (fs *FileStore) Close() error { return nil }

// snapshotFiles lists snapshot files sorted oldest first
func (fs *FileStore) snapshotFiles() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
