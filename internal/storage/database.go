package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"intizar/internal/config"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Open connects to the configured SQL catalog database. Connections are
// wrapped with otelsql so every query produces a span.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		driverName string
		dsn        string
		system     attribute.KeyValue
	)
	switch strings.ToLower(dbType) {
	case "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		driverName, dsn, system = "sqlite3", dbCfg.DSN, semconv.DBSystemSqlite
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
	case "mysql":
		dsn = dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				dbCfg.Params,
			)
		}
		driverName, system = "mysql", semconv.DBSystemMySQL
	case "postgres":
		dsn = dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				dbCfg.Params,
			)
		}
		driverName, system = "pgx", semconv.DBSystemPostgreSQL
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	db, err := otelsql.Open(driverName, dsn, otelsql.WithAttributes(system))
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dbType, err)
	}
	if driverName == "sqlite3" {
		// one writer; also keeps :memory: databases on a single connection
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the documents table is present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS documents (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				author TEXT NOT NULL,
				type TEXT NOT NULL,
				date_added TEXT NOT NULL,
				file_ref TEXT NOT NULL,
				file_url TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_documents_date_added ON documents(date_added DESC)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS documents (
				id VARCHAR(64) PRIMARY KEY,
				title VARCHAR(255) NOT NULL,
				author VARCHAR(128) NOT NULL,
				type VARCHAR(32) NOT NULL,
				date_added VARCHAR(40) NOT NULL,
				file_ref VARCHAR(512) NOT NULL,
				file_url TEXT NOT NULL,
				INDEX idx_documents_date_added (date_added)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	case "postgres":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS documents (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				author TEXT NOT NULL,
				type TEXT NOT NULL,
				date_added TEXT NOT NULL,
				file_ref TEXT NOT NULL,
				file_url TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_documents_date_added ON documents(date_added DESC)`,
		}
	default:
		return fmt.Errorf("unsupported driver: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
