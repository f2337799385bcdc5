// Package state provides the key/value persistence substrate (file and
// SQLite drivers) and the conversation store built on top of it.
package state

import (
	"fmt"
	"path/filepath"

	"github.com/user/genie/internal/types"
)

// Compile-time interface compliance checks.
var _ types.KeyValueStore = (*FileKV)(nil)
var _ types.KeyValueStore = (*SQLiteKV)(nil)

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open returns the key/value store for driver rooted at dataDir.
func Open(driver, dataDir string) (types.KeyValueStore, error) {
	switch driver {
	case "", DriverFile:
		return NewFileKV(dataDir), nil
	case DriverSQLite:
		return NewSQLiteKV(filepath.Join(dataDir, "genie.db"))
	default:
		return nil, fmt.Errorf("unknown store driver: %s", driver)
	}
}
