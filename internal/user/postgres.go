package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sony/gobreaker"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/clients"
)

// Schema creates the users table. It is idempotent.
const Schema = `CREATE TABLE IF NOT EXISTS users (
	uid   TEXT PRIMARY KEY,
	name  TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT ''
)`

const (
	selectUser = `SELECT uid, name, email FROM users WHERE uid = $1`
	upsertUser = `INSERT INTO users (uid, name, email) VALUES ($1, $2, $3)
ON CONFLICT (uid) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email`
)

// dbSource is satisfied by *clients.PostgresClient.
type dbSource interface {
	DB(ctx context.Context) (clients.DB, error)
}

// PostgresDirectory reads users from Postgres through the shared pool.
type PostgresDirectory struct {
	src dbSource
	cb  *gobreaker.CircuitBreaker
}

// NewPostgresDirectory returns a directory over src. cb should be the
// breaker shared with the Postgres probe.
func NewPostgresDirectory(src dbSource, cb *gobreaker.CircuitBreaker) *PostgresDirectory {
	return &PostgresDirectory{src: src, cb: cb}
}

// Lookup selects one user. A missing row is a successful query as far as
// the breaker is concerned.
func (d *PostgresDirectory) Lookup(ctx context.Context, uid string) (Info, error) {
	var (
		info  Info
		found bool
	)
	_, err := d.cb.Execute(func() (any, error) {
		db, err := d.src.DB(ctx)
		if err != nil {
			return nil, err
		}
		err = db.QueryRow(ctx, selectUser, uid).Scan(&info.UID, &info.Name, &info.Email)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("select user: %w", err)
		}
		found = true
		return nil, nil
	})
	if err != nil {
		return Info{}, err
	}
	if !found {
		return Info{}, fmt.Errorf("%s: %w", uid, ErrNotFound)
	}
	return info, nil
}

// EnsureSchema creates the users table if it does not exist.
func (d *PostgresDirectory) EnsureSchema(ctx context.Context) error {
	_, err := d.cb.Execute(func() (any, error) {
		db, err := d.src.DB(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := db.Exec(ctx, Schema); err != nil {
			return nil, fmt.Errorf("create users table: %w", err)
		}
		return nil, nil
	})
	return err
}

// Upsert inserts or replaces a user.
func (d *PostgresDirectory) Upsert(ctx context.Context, info Info) error {
	_, err := d.cb.Execute(func() (any, error) {
		db, err := d.src.DB(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := db.Exec(ctx, upsertUser, info.UID, info.Name, info.Email); err != nil {
			return nil, fmt.Errorf("upsert user %s: %w", info.UID, err)
		}
		return nil, nil
	})
	return err
}

// Seed ensures the schema and upserts every user in order.
func (d *PostgresDirectory) Seed(ctx context.Context, users []Info) error {
	if err := d.EnsureSchema(ctx); err != nil {
		return err
	}
	for _, info := range users {
		if err := d.Upsert(ctx, info); err != nil {
			return err
		}
	}
	return nil
}
