// Package store persists the daemon's registration, job, token-reference,
// and tombstone state in a SQLCipher-encrypted database, the way
// internal/database persists the GUI app's job state.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mutecomm/go-sqlcipher/v4"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps the daemon's encrypted SQLite connection.
type Store struct {
	conn *sql.DB
}

// Config configures Open.
type Config struct {
	Path          string
	EncryptionKey string
}

// Open opens or creates the encrypted database at cfg.Path, applying the
// schema if the file is new.
func Open(cfg Config) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma_key=%s&_pragma_cipher_page_size=4096",
		cfg.Path, cfg.EncryptionKey)

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect to store: %w", err)
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply store schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn exposes the raw connection for callers that need transactions spanning
// more than one of this package's helpers.
func (s *Store) Conn() *sql.DB {
	return s.conn
}
