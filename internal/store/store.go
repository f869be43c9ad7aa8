package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id          TEXT PRIMARY KEY,
	username    TEXT NOT NULL UNIQUE,
	account_key TEXT NOT NULL,
	api_key     TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS artifacts (
	file_id      TEXT NOT NULL,
	owner_id     TEXT NOT NULL,
	filename     TEXT NOT NULL,
	content_type TEXT NOT NULL,
	purpose      TEXT NOT NULL,
	data         BLOB NOT NULL,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL,
	PRIMARY KEY (file_id, owner_id)
);

CREATE TABLE IF NOT EXISTS vector_stores (
	id             TEXT NOT NULL,
	owner_id       TEXT NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	usage_bytes    INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT '',
	file_counts    TEXT NOT NULL DEFAULT '{}',
	expires_after  TEXT,
	expires_at     INTEGER,
	last_active_at INTEGER,
	metadata       TEXT,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL,
	PRIMARY KEY (id, owner_id)
);
`

// Store is the local mirror of remote resources, owner-scoped and keyed by
// the remote identifiers. All writes are idempotent upserts.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the sqlite database at path and applies the schema
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// modernc sqlite serializes writes; one connection avoids lock contention
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Local mirror store ready")
	return &Store{db: db}, nil
}

// OpenInMemory opens a throwaway in-memory store, used by tests
func OpenInMemory() (*Store, error) {
	return Open(":memory:")
}

func (s *Store) Close() error {
	return s.db.Close()
}
