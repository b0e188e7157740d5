// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

// Package db implements the database-backed authorization store. It
// supports SQLite, PostgreSQL and MySQL behind the same store.Loader
// contract as the authfile backend, so a fleet can keep its entities in
// the database that is already its source of truth.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/toeirei/gatehouse/internal/logging"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	// SQL drivers required for runtime backend selection.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// sqlOpenFunc allows tests to override database opening behavior.
var sqlOpenFunc = sql.Open

// New opens a sql.DB for the given DSN, runs migrations, and returns a
// Store backed by a long-lived *bun.DB.
func New(dbType, dsn string) (*Store, error) {
	driverName := dbType
	// The pgx stdlib registers driver name "pgx"; map "postgres" to that driver.
	if dbType == "postgres" {
		driverName = "pgx"
	}
	if _, err := dialectFor(dbType); err != nil {
		return nil, err
	}

	sqlDB, err := sqlOpenFunc(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	// In-memory SQLite is per-connection; force a single connection so the
	// migrated schema stays visible. Tests rely on this.
	if dbType == "sqlite" && dsn == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	if err := runMigrations(sqlDB, dbType); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logging.Debugf("db: opened %s store", dbType)

	return &Store{bun: createBunDB(sqlDB, dbType)}, nil
}

// dialectFor validates dbType before any connection is opened.
func dialectFor(dbType string) (string, error) {
	switch dbType {
	case "sqlite", "postgres", "mysql":
		return dbType, nil
	}
	return "", fmt.Errorf("unsupported database type: '%s'", dbType)
}

// createBunDB constructs a *bun.DB for the provided *sql.DB and dbType.
func createBunDB(sqlDB *sql.DB, dbType string) *bun.DB {
	switch dbType {
	case "postgres":
		return bun.NewDB(sqlDB, pgdialect.New())
	case "mysql":
		return bun.NewDB(sqlDB, mysqldialect.New())
	default:
		return bun.NewDB(sqlDB, sqlitedialect.New())
	}
}

// runMigrations creates the entities table if it does not exist yet.
func runMigrations(sqlDB *sql.DB, dbType string) error {
	var ddl string
	switch dbType {
	case "mysql":
		// MySQL wants explicit lengths on indexed VARCHAR columns.
		ddl = `CREATE TABLE IF NOT EXISTS entities (
			id INTEGER NOT NULL PRIMARY KEY AUTO_INCREMENT,
			name VARCHAR(255) NOT NULL,
			role VARCHAR(32) NOT NULL,
			algorithm VARCHAR(64) NOT NULL,
			key_data TEXT NOT NULL,
			comment TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`
	case "postgres":
		ddl = `CREATE TABLE IF NOT EXISTS entities (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			key_data TEXT NOT NULL,
			comment TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`
	default: // sqlite
		ddl = `CREATE TABLE IF NOT EXISTS entities (
			id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			key_data TEXT NOT NULL,
			comment TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1
		)`
	}
	if _, err := sqlDB.Exec(ddl); err != nil {
		return fmt.Errorf("entities table migration failed: %w", err)
	}
	return nil
}
