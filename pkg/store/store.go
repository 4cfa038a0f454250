// Package store implements the revision repository (the append-only
// DocumentRecord log and its version queries), the vault access checker, and
// the pending-upload tracker on top of SQLite.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cuemby/vaultsync/pkg/log"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS db_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	password_salt TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS user_tokens (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL REFERENCES users(id),
	token      TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_user_tokens_token ON user_tokens(token);

CREATE TABLE IF NOT EXISTS vaults (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id   INTEGER NOT NULL REFERENCES users(id),
	name       TEXT NOT NULL,
	password   TEXT NOT NULL,
	key_hash   TEXT NOT NULL,
	salt       TEXT NOT NULL,
	deleted    INTEGER NOT NULL DEFAULT 0,
	deleted_at INTEGER,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vaults_deleted ON vaults(deleted);

CREATE TABLE IF NOT EXISTS vault_shares (
	vault_id INTEGER NOT NULL REFERENCES vaults(id),
	user_id  INTEGER NOT NULL REFERENCES users(id),
	PRIMARY KEY (vault_id, user_id)
);

CREATE TABLE IF NOT EXISTS document_records (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	vault_id    INTEGER NOT NULL REFERENCES vaults(id),
	path        TEXT NOT NULL,
	relatedpath TEXT NOT NULL DEFAULT '',
	hash        TEXT NOT NULL DEFAULT '',
	folder      INTEGER NOT NULL DEFAULT 0,
	deleted     INTEGER NOT NULL DEFAULT 0,
	size        INTEGER NOT NULL DEFAULT 0,
	device      TEXT NOT NULL DEFAULT '',
	ctime       INTEGER NOT NULL DEFAULT 0,
	mtime       INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_vault_path_id ON document_records(vault_id, path, id);
CREATE INDEX IF NOT EXISTS idx_records_vault_hash ON document_records(vault_id, hash);

CREATE TABLE IF NOT EXISTS pending_files (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	vault_id   INTEGER NOT NULL REFERENCES vaults(id),
	hash       TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT 'upload',
	created_at INTEGER NOT NULL,
	UNIQUE (vault_id, hash)
);
`

// Store is the shared handle to the SQLite-backed revision repository.
// SQLite allows only one writer at a time; we hold conn open with a single
// connection and serialize writes with mu rather than let database/sql's
// pool hand out concurrent connections that would collide on the same file.
type Store struct {
	conn *sql.DB
	mu   sync.Mutex
	echo bool
}

// Config controls how the store opens its underlying SQLite file.
type Config struct {
	// Path is the SQLite database file path.
	Path string
	// Echo turns on verbose statement logging, mirroring the `echo`
	// configuration flag.
	Echo bool
}

// Open opens (creating if absent) the SQLite database at cfg.Path and
// applies the schema and any pending migrations.
func Open(cfg Config) (*Store, error) {
	conn, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn, echo: cfg.Echo}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var count int
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM db_version").Scan(&count); err != nil {
		return fmt.Errorf("read db_version: %w", err)
	}
	if count == 0 {
		if _, err := s.conn.Exec("INSERT INTO db_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("seed db_version: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Vacuum reclaims disk space after a purger pass has freed rows.
func (s *Store) Vacuum() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

func (s *Store) logQuery(query string, args ...interface{}) {
	if !s.echo {
		return
	}
	logger := log.WithComponent("store")
	logger.Debug().
		Str("query", query).
		Interface("args", args).
		Msg("executing statement")
}
