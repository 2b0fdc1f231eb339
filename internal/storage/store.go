package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	// ErrStoreUnavailable means the database file is locked by another
	// process for longer than the open timeout.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrConflict is returned when inserting a key that already exists.
	ErrConflict = errors.New("key already exists")
	// ErrNotFound is returned by updates of absent keys. Plain reads of
	// absent keys return a nil value and no error.
	ErrNotFound = errors.New("not found")
)

type Options struct {
	Timeout time.Duration
}

// Store is the durable local store. The underlying database is opened on
// first use; Open itself performs no I/O.
type Store struct {
	path string
	opts Options

	mu sync.Mutex
	db *bolt.DB
}

func Open(dbPath string, opts Options) *Store {
	if opts.Timeout <= 0 {
		opts.Timeout = 1 * time.Second
	}
	return &Store{path: dbPath, opts: opts}
}

// NewStore opens the store at dbPath and initializes it immediately.
func NewStore(dbPath string) (*Store, error) {
	s := Open(dbPath, Options{})
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

// Init opens the database and applies pending schema migrations. It is
// idempotent; every other operation calls it implicitly.
func (s *Store) Init() error {
	_, err := s.handle()
	return err
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) handle() (*bolt.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: s.opts.Timeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s is locked: %v", ErrStoreUnavailable, s.path, err)
		}
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	s.db = db
	return db, nil
}

func (s *Store) update(fn func(tx *bolt.Tx) error) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	return db.Update(fn)
}

func (s *Store) view(fn func(tx *bolt.Tx) error) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	return db.View(fn)
}

// Close releases the database file. A later operation reopens it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// SchemaVersion reports the schema version recorded in the database.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.view(func(tx *bolt.Tx) error {
		v = readSchemaVersion(tx)
		return nil
	})
	return v, err
}

// ClearAll empties the four collections. Cache partitions are untouched.
func (s *Store) ClearAll() error {
	return s.update(func(tx *bolt.Tx) error {
		if err := stories.clear(tx); err != nil {
			return err
		}
		if err := favorites.clear(tx); err != nil {
			return err
		}
		if err := pendingActions.clear(tx); err != nil {
			return err
		}
		return preferences.clear(tx)
	})
}
