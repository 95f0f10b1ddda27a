// Package postgres persists the conversion ledger in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/levelport/internal/config"
)

// Pool wraps a pgx connection pool with health-check and lifecycle methods.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool creates a new PostgreSQL connection pool from the given configuration.
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: Returns a connected Pool or a non-nil error.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Pool{pool: pool}, nil
}

// Health checks that the database is reachable within the given timeout.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.pool.Ping(ctx)
}

// Close releases all pool resources. It returns nil so a Pool can be
// closed like any other lifecycle resource.
func (p *Pool) Close() error {
	p.pool.Close()
	return nil
}

// DB returns the underlying pgxpool.Pool for use by repositories.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}

// MigrationResult describes the schema state after Migrate.
type MigrationResult struct {
	Version  uint
	Dirty    bool
	NoChange bool
}

// Migrate applies the migrations in dir to the database at dsn. steps > 0
// moves that many versions, steps < 0 moves back, and 0 migrates all the
// way up (or down when down is set).
//
// Postcondition: migrate.ErrNoChange is reported as NoChange, not as an error.
func Migrate(dsn, dir string, steps int, down bool) (MigrationResult, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("resolving migrations directory: %w", err)
	}
	m, err := migrate.New("file://"+filepath.ToSlash(abs), dsn)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	switch {
	case steps != 0:
		err = m.Steps(steps)
	case down:
		err = m.Down()
	default:
		err = m.Up()
	}
	var res MigrationResult
	if errors.Is(err, migrate.ErrNoChange) {
		res.NoChange = true
		err = nil
	}
	if err != nil {
		return res, fmt.Errorf("migrating: %w", err)
	}
	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return res, fmt.Errorf("reading schema version: %w", verr)
	}
	res.Version, res.Dirty = version, dirty
	return res, nil
}
