// Package postgres opens the deploy history database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/animus-labs/apideploy/internal/platform/env"
)

// Config configures the history database. An empty URL disables history.
type Config struct {
	URL             string
	PingTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func ConfigFromEnv() (Config, error) {
	pingTimeout, err := env.Duration(env.Key("HISTORY_PING_TIMEOUT"), 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	maxOpenConns, err := env.Int(env.Key("HISTORY_MAX_OPEN_CONNS"), 4)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := env.Int(env.Key("HISTORY_MAX_IDLE_CONNS"), 2)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := env.Duration(env.Key("HISTORY_CONN_MAX_LIFETIME"), 30*time.Minute)
	if err != nil {
		return Config{}, err
	}
	connMaxIdleTime, err := env.Duration(env.Key("HISTORY_CONN_MAX_IDLE_TIME"), 5*time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		URL:             strings.TrimSpace(env.String(env.Key("HISTORY_DATABASE_URL"), "")),
		PingTimeout:     pingTimeout,
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxLifetime: connMaxLifetime,
		ConnMaxIdleTime: connMaxIdleTime,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Enabled reports whether a database is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

func (c Config) Validate() error {
	if c.URL != "" && !strings.HasPrefix(c.URL, "postgres://") && !strings.HasPrefix(c.URL, "postgresql://") {
		return errors.New("APIDEPLOY_HISTORY_DATABASE_URL must be a postgres:// URL")
	}
	if c.PingTimeout <= 0 {
		return errors.New("APIDEPLOY_HISTORY_PING_TIMEOUT must be positive")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("APIDEPLOY_HISTORY_MAX_OPEN_CONNS must be >= 1")
	}
	if c.MaxIdleConns < 0 {
		return errors.New("APIDEPLOY_HISTORY_MAX_IDLE_CONNS must be >= 0")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("APIDEPLOY_HISTORY_MAX_IDLE_CONNS must be <= APIDEPLOY_HISTORY_MAX_OPEN_CONNS")
	}
	if c.ConnMaxLifetime < 0 {
		return errors.New("APIDEPLOY_HISTORY_CONN_MAX_LIFETIME must be >= 0")
	}
	if c.ConnMaxIdleTime < 0 {
		return errors.New("APIDEPLOY_HISTORY_CONN_MAX_IDLE_TIME must be >= 0")
	}
	return nil
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, errors.New("history database is not configured")
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// Schema creates the history table when it does not exist.
const Schema = `CREATE TABLE IF NOT EXISTS deploy_events (
	event_id         BIGSERIAL PRIMARY KEY,
	occurred_at      TIMESTAMPTZ NOT NULL,
	deploy_id        TEXT NOT NULL,
	environment      TEXT NOT NULL,
	stage            TEXT NOT NULL DEFAULT '',
	region           TEXT NOT NULL,
	kind             TEXT NOT NULL,
	entity_id        TEXT NOT NULL,
	operation        TEXT NOT NULL DEFAULT '',
	outcome          TEXT NOT NULL,
	error_code       TEXT,
	payload          JSONB NOT NULL,
	integrity_sha256 TEXT NOT NULL
)`

// Execer runs statements without returning rows.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db Execer) error {
	if db == nil {
		return errors.New("database is required")
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
