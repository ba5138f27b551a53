package cache

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLiteStore keeps snapshots in a SQLite database
type SQLiteStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a SQLite-backed store under dir
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "snapshots.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ss := &SQLiteStore{db: db, path: dbPath}
	if err := ss.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return ss, nil
}

// initSchema creates the database schema
func (ss *SQLiteStore) initSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}
	_, err = ss.db.Exec(string(schema))
	return err
}

// Save inserts a new snapshot row
func (ss *SQLiteStore) Save(document json.RawMessage) (*Snapshot, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	snap := &Snapshot{
		ID:       uuid.New().String(),
		TakenAt:  time.Now().UTC(),
		Document: document,
	}
	_, err := ss.db.Exec(
		`INSERT INTO snapshots (id, taken_at, document) VALUES (?, ?, ?)`,
		snap.ID, snap.TakenAt.Format(time.RFC3339Nano), string(document),
	)
	if err != nil {
		return nil, fmt.Errorf("saving snapshot: %w", err)
	}
	return snap, nil
}

// Latest returns the most recent snapshot
func (ss *SQLiteStore) Latest() (*Snapshot, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	row := ss.db.QueryRow(
		`SELECT id, taken_at, document FROM snapshots ORDER BY taken_at DESC LIMIT 1`)

	var snap Snapshot
	var takenAt, document string
	if err := row.Scan(&snap.ID, &takenAt, &document); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, takenAt)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot timestamp: %w", err)
	}
	snap.TakenAt = t
	snap.Document = json.RawMessage(document)
	return &snap, nil
}

// Prune removes all but the newest keep snapshots
func (ss *SQLiteStore) Prune(keep int) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	_, err := ss.db.Exec(
		`DELETE FROM snapshots WHERE id NOT IN
		   (SELECT id FROM snapshots ORDER BY taken_at DESC LIMIT ?)`, keep)
	return err
}

// Close closes the database connection
func (ss *SQLiteStore) Close() error {
	return ss.db.Close()
}
