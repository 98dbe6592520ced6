package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const settingsSchema = `CREATE TABLE IF NOT EXISTS settings (
	scope TEXT NOT NULL,
	key   TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (scope, key)
)`

// SQLite keeps settings in a SQLite database.
type SQLite struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (creating when needed) the database at path. The path
// ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := ":memory:"
	if path != dsn {
		dsn = "file:" + filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		sqlDB.SetMaxOpenConns(1)
	}
	if err = sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err = sqlDB.Exec(settingsSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create settings table: %w", err)
	}
	return &SQLite{sqlDB: sqlDB}, nil
}

// Close releases the underlying connection.
func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLite) Get(ctx context.Context, scope, key string) (string, bool, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT value FROM settings WHERE scope = ? AND key = ?`, scope, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get setting %s/%s: %w", scope, key, err)
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, scope, key, value string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO settings (scope, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(scope, key) DO UPDATE SET value = excluded.value`,
		scope, key, value)
	if err != nil {
		return fmt.Errorf("put setting %s/%s: %w", scope, key, err)
	}
	return nil
}
