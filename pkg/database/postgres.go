package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"go.uber.org/zap"
)

// DB is the tenant-guarded connection pool. The underlying pgxpool is kept
// private: every checkout goes through Acquire, which binds the caller's
// tenant to the session before any statement can run.
type DB struct {
	pool   *pgxpool.Pool
	source connSource
	logger *zap.Logger

	onViolation func(stage string)
}

// Config holds database connection configuration.
type Config struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// OnIsolationViolation is invoked (if set) whenever a session cannot be
	// bound to or reset from a tenant. stage is "bind" or "reset".
	OnIsolationViolation func(stage string)
}

// NewConnection creates a new guarded connection pool.
func NewConnection(ctx context.Context, cfg *Config, logger *zap.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 25
	}

	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	if poolConfig.MaxConnLifetime == 0 {
		poolConfig.MaxConnLifetime = time.Hour
	}

	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	if poolConfig.MaxConnIdleTime == 0 {
		poolConfig.MaxConnIdleTime = time.Minute * 30
	}

	// Fresh connections start explicitly bound to "no tenant".
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, bindSQL, "")
		return err
	}
	// A connection that comes back closed or inside a transaction cannot be
	// trusted to have been reset; drop it instead of pooling it.
	poolConfig.AfterRelease = func(conn *pgx.Conn) bool {
		if conn.IsClosed() {
			return false
		}
		return conn.PgConn().TxStatus() == 'I'
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := newDB(pgxSource{pool: pool}, logger, cfg.OnIsolationViolation)
	db.pool = pool
	return db, nil
}

func newDB(source connSource, logger *zap.Logger, onViolation func(string)) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{
		source:      source,
		logger:      logger.Named("database"),
		onViolation: onViolation,
	}
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if db.pool == nil {
		return nil
	}
	return db.pool.Ping(ctx)
}

// OpenMigrationDB opens a dedicated database/sql handle for golang-migrate.
// A statement_timeout is set on the URL so a migration blocked on
// permissions or locks fails instead of hanging startup.
func OpenMigrationDB(url string, timeout time.Duration) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	sqlDB, err := sql.Open("pgx", fmt.Sprintf("%s%sstatement_timeout=%d", url, sep, timeout.Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}
	return sqlDB, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// pgxSource checks connections out of a real pgxpool.
type pgxSource struct {
	pool *pgxpool.Pool
}

func (s pgxSource) acquire(ctx context.Context) (sessionConn, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return pgxConn{Conn: conn}, nil
}

type pgxConn struct {
	*pgxpool.Conn
}

// destroy takes the connection away from the pool and closes it.
func (c pgxConn) destroy(ctx context.Context) {
	_ = c.Conn.Hijack().Close(ctx)
}
