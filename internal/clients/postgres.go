package clients

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/config"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/health"
)

const postgresProbeName = "postgres"

// DB abstracts the pgxpool.Pool methods used by the user directory, the
// schema phase and Probe, so tests can inject a fake without a database.
type DB interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresClient owns a lazily opened pgx pool guarded by a circuit breaker.
type PostgresClient struct {
	cfg     config.PostgresConfig
	cb      *gobreaker.CircuitBreaker
	connect func(ctx context.Context, cfg config.PostgresConfig) (DB, error)

	mu sync.Mutex
	db DB
}

// NewPostgresClient creates a PostgresClient. No connection is made at
// construction time; the pool opens on first use.
func NewPostgresClient(cfg config.PostgresConfig, cb *gobreaker.CircuitBreaker) *PostgresClient {
	return &PostgresClient{
		cfg:     cfg,
		cb:      cb,
		connect: realConnect,
	}
}

// DB returns the shared pool, opening it on first call.
func (c *PostgresClient) DB(ctx context.Context) (DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db, nil
	}
	db, err := c.connect(ctx, c.cfg)
	if err != nil {
		return nil, err
	}
	c.db = db
	return db, nil
}

// Breaker returns the circuit breaker shared by every Postgres call.
func (c *PostgresClient) Breaker() *gobreaker.CircuitBreaker {
	return c.cb
}

// Probe pings the Postgres server through the circuit breaker.
func (c *PostgresClient) Probe(ctx context.Context) health.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		db, err := c.DB(ctx)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
		return nil, nil
	})

	return probeResult(postgresProbeName, start, err)
}

// Close releases the pool if it was opened.
func (c *PostgresClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		c.db.Close()
		c.db = nil
	}
	return nil
}

// realConnect opens a pgxpool.Pool using the provided PostgresConfig.
func realConnect(ctx context.Context, cfg config.PostgresConfig) (DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}

	return pool, nil
}
