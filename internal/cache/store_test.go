package cache

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// setupStore creates a store of the given backend in a temp directory
func setupStore(t *testing.T, backend string) Store {
	t.Helper()
	store, err := NewStore(backend, t.TempDir())
	if err != nil {
		t.Fatalf("NewStore(%s) error = %v", backend, err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SaveAndLatest(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			store := setupStore(t, backend)

			doc := json.RawMessage(`{"_meta":{"hostvars":{}}}`)
			snap, err := store.Save(doc)
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if snap.ID == "" {
				t.Error("Save() returned a snapshot without an ID")
			}
			if snap.TakenAt.IsZero() {
				t.Error("Save() returned a snapshot without a timestamp")
			}

			latest, err := store.Latest()
			if err != nil {
				t.Fatalf("Latest() error = %v", err)
			}
			if latest.ID != snap.ID {
				t.Errorf("Latest().ID = %q, want %q", latest.ID, snap.ID)
			}
			if string(latest.Document) != string(doc) {
				t.Errorf("Latest().Document = %s, want %s", latest.Document, doc)
			}
		})
	}
}

func TestStore_LatestPicksNewest(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			store := setupStore(t, backend)

			if _, err := store.Save(json.RawMessage(`{"v":1}`)); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			// Timestamps must differ for ordering to be observable
			time.Sleep(2 * time.Millisecond)
			second, err := store.Save(json.RawMessage(`{"v":2}`))
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			latest, err := store.Latest()
			if err != nil {
				t.Fatalf("Latest() error = %v", err)
			}
			if latest.ID != second.ID {
				t.Errorf("Latest().ID = %q, want newest %q", latest.ID, second.ID)
			}
		})
	}
}

func TestStore_LatestEmpty(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			store := setupStore(t, backend)
			if _, err := store.Latest(); !errors.Is(err, ErrNoSnapshot) {
				t.Errorf("Latest() error = %v, want ErrNoSnapshot", err)
			}
		})
	}
}

func TestStore_Prune(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			store := setupStore(t, backend)

			var lastID string
			for i := 0; i < 5; i++ {
				snap, err := store.Save(json.RawMessage(`{}`))
				if err != nil {
					t.Fatalf("Save() error = %v", err)
				}
				lastID = snap.ID
				time.Sleep(2 * time.Millisecond)
			}

			if err := store.Prune(2); err != nil {
				t.Fatalf("Prune() error = %v", err)
			}

			latest, err := store.Latest()
			if err != nil {
				t.Fatalf("Latest() after prune error = %v", err)
			}
			if latest.ID != lastID {
				t.Errorf("Prune removed the newest snapshot: got %q, want %q", latest.ID, lastID)
			}
		})
	}
}

func TestSnapshot_Age(t *testing.T) {
	snap := &Snapshot{TakenAt: time.Now().Add(-time.Hour)}
	if age := snap.Age(); age < 59*time.Minute || age > 61*time.Minute {
		t.Errorf("Age() = %v, want about an hour", age)
	}
}

func TestNewStore_DefaultsToSQLite(t *testing.T) {
	store := setupStore(t, "anything-else")
	if _, ok := store.(*SQLiteStore); !ok {
		t.Errorf("NewStore with unknown backend returned %T, want *SQLiteStore", store)
	}
}
