package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/store"
)

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// ensureSQLiteDir creates the parent directory of a file-backed SQLite
// database. Memory and URI DSNs are left alone.
func ensureSQLiteDir(cfg model.DatabaseConfig) error {
	if cfg.Driver != "" && cfg.Driver != store.DriverSQLite {
		return nil
	}
	if cfg.DSN == "" || cfg.DSN == ":memory:" || strings.HasPrefix(cfg.DSN, "file:") {
		return nil
	}
	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}
