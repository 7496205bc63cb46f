package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const DefaultPath = "issue_tracker.db"

type Config struct {
	// Path is a filesystem path or a sqlite:/// URL.
	Path string
}

// ResolvePath turns a configured location into a filesystem path.
// sqlite:///relative.db and sqlite:////abs/path.db are accepted for compatibility with DATABASE_URL.
func ResolvePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return DefaultPath
	}
	if rest, ok := strings.CutPrefix(p, "sqlite:///"); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(p, "sqlite://"); ok {
		return rest
	}
	return p
}

// Open opens the SQLite database with foreign keys on, WAL journaling and
// immediate write transactions so concurrent writers serialize instead of failing.
func Open(cfg Config) (*sql.DB, error) {
	path := ResolvePath(cfg.Path)
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return conn, nil
}
