package storage

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// NewSQLiteStorage opens (or creates) a SQLite database file. It suits
// single-host deployments where a PostgreSQL server is overkill.
func NewSQLiteStorage(path string, logger *zap.Logger) (*SQLStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite database: %w", err)
	}
	// SQLite allows a single writer at a time.
	db.SetMaxOpenConns(1)

	storage := &SQLStorage{
		db:          db,
		placeholder: func(int) string { return "?" },
		logger:      logger,
	}
	if err := storage.init(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Opened SQLite storage", zap.String("path", path))
	return storage, nil
}
