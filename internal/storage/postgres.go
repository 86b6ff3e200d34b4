package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// SQLStorage keeps the key-value pairs in a single kv_store table. It backs
// both the PostgreSQL and the SQLite drivers; only the placeholder syntax
// differs.
type SQLStorage struct {
	db          *sql.DB
	placeholder func(n int) string
	logger      *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*SQLStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	storage := &SQLStorage{
		db:          db,
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		logger:      logger,
	}
	if err := storage.init(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("dbname", config.DBName))
	return storage, nil
}

func (s *SQLStorage) init() error {
	// Test the connection
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("error connecting to the database: %w", err)
	}

	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *SQLStorage) Get(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT value FROM kv_store WHERE key = %s`, s.placeholder(1))

	var value string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error reading key %q: %w", key, err)
	}

	return value, true, nil
}

func (s *SQLStorage) Set(ctx context.Context, key, value string) error {
	query := fmt.Sprintf(`
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (%s, %s, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP`,
		s.placeholder(1), s.placeholder(2))

	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("error writing key %q: %w", key, err)
	}

	return nil
}

func (s *SQLStorage) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM kv_store WHERE key = %s`, s.placeholder(1))

	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("error deleting key %q: %w", key, err)
	}

	return nil
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}
