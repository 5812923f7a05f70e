package main

import (
	"database/sql"
	"os"
	"path/filepath"

	"helmsman/internal/config"
	"helmsman/internal/store"
)

func openDB(cfg config.Config) (*sql.DB, func(), error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = defaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, func() {}, err
	}
	dbPath := filepath.Join(dataDir, "helmsman.db")
	storeDB, err := store.Open(dbPath)
	if err != nil {
		return nil, func() {}, err
	}
	return storeDB, func() { _ = storeDB.Close() }, nil
}
