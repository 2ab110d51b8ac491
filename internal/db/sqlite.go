package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const DefaultPath = "./database.db"

// Schema is applied on every InitDB and must stay idempotent.
const Schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT UNIQUE,
    email TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS posts (
    id TEXT PRIMARY KEY,
    title TEXT,
    description TEXT DEFAULT '',
    content BLOB,
    slides BLOB,
    published INTEGER NOT NULL DEFAULT 0,
    md_content_hash TEXT,
    modified_at DATETIME,
    user_id TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

type SQLite struct {
	path string
	conn *sql.DB
}

func NewSQLite() *SQLite {
	return NewSQLiteAt(DefaultPath)
}

// NewSQLiteAt opens the database at path on InitDB. ":memory:" is accepted.
func NewSQLiteAt(path string) *SQLite {
	return &SQLite{
		path: path,
		conn: nil,
	}
}

func (s *SQLite) InitDB() error {
	var err error
	s.conn, err = sql.Open("sqlite3", s.dsn())
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}

	if s.path == ":memory:" {
		// Every pooled connection to :memory: is a separate database.
		s.conn.SetMaxOpenConns(1)
	}

	if _, err := s.conn.Exec(Schema); err != nil {
		return fmt.Errorf("error applying schema: %w", err)
	}

	dbLogger.Info().Str("path", s.path).Msg("Database initialized")
	return nil
}

func (s *SQLite) dsn() string {
	if s.path == ":memory:" || strings.HasPrefix(s.path, "file:") {
		return s.path
	}
	return "file:" + s.path + "?_busy_timeout=5000"
}

func (s *SQLite) Get() *sql.DB {
	return s.conn
}

func (s *SQLite) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *SQLite) Query(query string, args ...interface{}) (*sql.Rows, error) {
	dbLogger.Debug().Str("query", query).Msg("Query")
	return s.conn.Query(query, args...)
}

func (s *SQLite) QueryRow(query string, args ...interface{}) *sql.Row {
	dbLogger.Debug().Str("query", query).Msg("QueryRow")
	return s.conn.QueryRow(query, args...)
}

func (s *SQLite) Exec(query string, args ...interface{}) (sql.Result, error) {
	dbLogger.Debug().Str("query", query).Msg("Exec")
	return s.conn.Exec(query, args...)
}
