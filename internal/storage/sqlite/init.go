package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// OpenReadOnly opens an existing SQLite store without ever writing to it.
func OpenReadOnly(ctx context.Context, path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat store: %w", err)
	}

	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=ro&_query_only=1"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}

	return db, nil
}
