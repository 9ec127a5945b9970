package db

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// sqlDriverName maps a store driver to the database/sql driver it registers.
func sqlDriverName(driver string) (string, error) {
	switch driver {
	case DriverSQLite:
		return "sqlite", nil
	case DriverPostgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// Connect opens a connection pool for the given driver and verifies it.
func Connect(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	name, err := sqlDriverName(driver)
	if err != nil {
		return nil, err
	}
	pool, err := sqlx.ConnectContext(ctx, name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database connection: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite serializes writers; one connection also keeps :memory: databases intact.
		pool.SetMaxOpenConns(1)
	}
	slog.Info("connected to sql database", "driver", driver)
	return pool, nil
}

const userSchema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	profile_image TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);`

const bookSchema = `
CREATE TABLE IF NOT EXISTS books (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	cover_image TEXT NOT NULL,
	rating DOUBLE PRECISION NOT NULL,
	user_id TEXT NOT NULL REFERENCES users(id),
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

var bookIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_books_created_at ON books (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_books_user_created_at ON books (user_id, created_at)`,
}

// InitializeDB creates the tables and indexes if they do not exist.
func InitializeDB(ctx context.Context, DB *sqlx.DB) error {
	if DB.DriverName() == "sqlite" {
		if _, err := DB.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	if _, err := DB.ExecContext(ctx, userSchema); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	if _, err := DB.ExecContext(ctx, bookSchema); err != nil {
		return fmt.Errorf("failed to create books table: %w", err)
	}
	for _, stmt := range bookIndexes {
		if _, err := DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create books index: %w", err)
		}
	}

	slog.Info("DB connection initialized and schema verified.")

	return nil
}
