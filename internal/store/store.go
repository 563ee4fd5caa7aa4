package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store wraps the Postgres connection pool and every query this gateway
// issues against targets/devices/mo_messages/mt_messages.
type Store struct {
	db *sql.DB
}

// Config configures pool sizing with fixed max-open/idle counts rather
// than a dynamic pool.
type Config struct {
	URL         string
	MaxOpenConn int
	MaxIdleConn int
}

// Open opens the pool, pings it, and runs pending migrations before
// returning — migrations are a blocking startup step.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	if cfg.MaxOpenConn > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.MaxIdleConn > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the pool is reachable, used by the operations healthz
// route.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
