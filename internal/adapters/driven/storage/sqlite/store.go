// Package sqlite implements the document store on SQLite, one database
// file per logical database. Writes are serialised in-process so commit
// sequences are dense and the change feed observes commit order.
package sqlite

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ludex-app/ludex/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/ludex-app/ludex/internal/core/domain"
	"github.com/ludex-app/ludex/internal/core/ports/driven"
	"github.com/ludex-app/ludex/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.DocumentStore = (*Store)(nil)

// changeBuffer bounds the in-flight change queue between committers and
// the dispatcher goroutine.
const changeBuffer = 256

// Store is one logical database.
type Store struct {
	name string
	path string
	db   *sql.DB

	// writeMu serialises writers so sequence assignment and change
	// emission observe the same order.
	writeMu sync.Mutex

	subMu   sync.RWMutex
	subs    map[int]func(domain.Change)
	nextSub int

	changes chan domain.Change
	stop    chan struct{}
	wg      sync.WaitGroup

	closeMu sync.Mutex
	closed  bool
}

// Open creates or opens the logical database under dir.
func Open(name, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	dbPath := filepath.Join(dir, name+".db")

	// WAL for concurrent readers alongside the single writer.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		name:    name,
		path:    dbPath,
		db:      db,
		subs:    make(map[int]func(domain.Change)),
		changes: make(chan domain.Change, changeBuffer),
		stop:    make(chan struct{}),
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.wg.Add(1)
	go s.dispatch()

	logger.WithFields(logger.Fields{"db": name, "path": dbPath}).Debug("database opened")
	return s, nil
}

// Name returns the logical database name.
func (s *Store) Name() string { return s.name }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close stops change dispatch and releases the database.
func (s *Store) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	s.closeMu.Unlock()

	s.wg.Wait()
	return s.db.Close()
}

// Subscribe registers a post-commit change callback.
func (s *Store) Subscribe(fn func(domain.Change)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// emit queues a committed change for ordered dispatch. Called with writeMu
// held so queue order matches commit order.
func (s *Store) emit(c domain.Change) {
	select {
	case s.changes <- c:
	case <-s.stop:
	}
}

// dispatch delivers changes to subscribers in commit order.
func (s *Store) dispatch() {
	defer s.wg.Done()
	for {
		select {
		case c := <-s.changes:
			s.deliver(c)
		case <-s.stop:
			// Drain what committers already queued.
			for {
				select {
				case c := <-s.changes:
					s.deliver(c)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) deliver(c domain.Change) {
	s.subMu.RLock()
	fns := make([]func(domain.Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

// newRev mints a revision token for a generation. The token is opaque to
// callers; only this package relies on its shape.
func newRev(generation int64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d-%s", generation, suffix)
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}
